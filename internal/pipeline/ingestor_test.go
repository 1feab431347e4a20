package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptovista/forecast-go/internal/config"
	"github.com/cryptovista/forecast-go/internal/models"
)

func newTestIngestor() *Ingestor {
	return NewIngestor(config.IngestConfig{Delimiter: ",", HeaderLines: 2}, testLogger())
}

func TestIngestTextParsesOrderedBars(t *testing.T) {
	in := newTestIngestor()

	bars, dropped, err := in.IngestText(context.Background(), syntheticCSV(increasingCloses(5)))
	require.NoError(t, err)
	assert.Zero(t, dropped)
	require.Len(t, bars, 5)

	assert.Equal(t, "1INCHBTC", bars[0].Symbol)
	assert.Equal(t, "2021-01-01", bars[0].Date)
	assert.InDelta(t, 1.0, bars[0].Close, 1e-9)
	assert.InDelta(t, 5.0, bars[4].Close, 1e-9)
	assert.Equal(t, int64(100), bars[0].TradeCount)

	// Chronological file order is preserved.
	for i := 1; i < len(bars); i++ {
		assert.Greater(t, bars[i].Unix, bars[i-1].Unix)
	}
}

func TestIngestDropsMalformedRows(t *testing.T) {
	in := newTestIngestor()

	// Ten rows where row 5 has eight columns instead of ten.
	lines := strings.Split(strings.TrimSpace(syntheticCSV(increasingCloses(10))), "\n")
	lines[2+4] = "1609804800,2021-01-05,1INCHBTC,4.5,6,4,5"
	csv := strings.Join(lines, "\n")

	bars, dropped, err := in.IngestText(context.Background(), csv)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	assert.Len(t, bars, 9)
}

func TestIngestDropsNonNumericTimestamp(t *testing.T) {
	in := newTestIngestor()

	csv := csvHeader + "not-a-timestamp,2021-01-01,1INCHBTC,1,2,0.5,1.5,100,10,5\n" +
		"1609459200,2021-01-01,1INCHBTC,1,2,0.5,1.5,100,10,5\n"

	bars, dropped, err := in.IngestText(context.Background(), csv)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	assert.Len(t, bars, 1)
}

func TestIngestAcceptsNonFiniteValues(t *testing.T) {
	in := newTestIngestor()

	// Non-finite numerics are the sanitizer's problem, not a parse
	// failure.
	csv := csvHeader + "1609459200,2021-01-01,1INCHBTC,NaN,2,0.5,Inf,100,10,5\n"

	bars, dropped, err := in.IngestText(context.Background(), csv)
	require.NoError(t, err)
	assert.Zero(t, dropped)
	require.Len(t, bars, 1)
	assert.False(t, bars[0].IsFinite())
}

func TestIngestSkipsBlankLines(t *testing.T) {
	in := newTestIngestor()

	csv := csvHeader + "\n1609459200,2021-01-01,1INCHBTC,1,2,0.5,1.5,100,10,5\n\n"
	bars, dropped, err := in.IngestText(context.Background(), csv)
	require.NoError(t, err)
	assert.Zero(t, dropped)
	assert.Len(t, bars, 1)
}

func TestIngestFileMissingIsIngestError(t *testing.T) {
	in := newTestIngestor()

	_, _, err := in.IngestFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Equal(t, models.ErrKindIngest, models.KindOf(err))
}

func TestIngestFileRoundTrip(t *testing.T) {
	in := newTestIngestor()

	path := filepath.Join(t.TempDir(), "bars.csv")
	writeFile(t, path, syntheticCSV(increasingCloses(3)))

	bars, dropped, err := in.IngestFile(context.Background(), path)
	require.NoError(t, err)
	assert.Zero(t, dropped)
	assert.Len(t, bars, 3)
}
