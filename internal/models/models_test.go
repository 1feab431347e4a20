package models

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarIsFinite(t *testing.T) {
	bar := Bar{Open: 1, High: 2, Low: 0.5, Close: 1.5, VolumeBase: 100, VolumeQuote: 10}
	assert.True(t, bar.IsFinite())

	bar.VolumeQuote = math.NaN()
	assert.False(t, bar.IsFinite())

	bar.VolumeQuote = math.Inf(-1)
	assert.False(t, bar.IsFinite())
}

func TestPipelineErrorKinds(t *testing.T) {
	err := NewError(ErrKindParse, "bad row %d", 7)
	assert.Equal(t, "parse: bad row 7", err.Error())
	assert.Equal(t, ErrKindParse, KindOf(err))
	assert.True(t, IsKind(err, ErrKindParse))
	assert.False(t, IsKind(err, ErrKindIngest))

	// Foreign errors carry no kind.
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

func TestWrapErrorUnwraps(t *testing.T) {
	cause := errors.New("disk gone")
	err := WrapError(ErrKindIngest, cause, "cannot read %s", "bars.csv")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrKindIngest, KindOf(err))
	assert.Contains(t, err.Error(), "disk gone")

	// The kind survives further wrapping.
	wrapped := fmt.Errorf("run failed: %w", err)
	assert.Equal(t, ErrKindIngest, KindOf(wrapped))
}

func TestNewProcessedRow(t *testing.T) {
	bar := Bar{
		Unix:        1609459200,
		Date:        "2021-01-01",
		Symbol:      "1INCHBTC",
		Open:        1.25,
		Close:       1.5,
		VolumeBase:  1000,
		VolumeQuote: 10,
		TradeCount:  321,
	}
	ind := IndicatorSet{MovingAverage: 1.4, RSI: 55.5, MACD: -0.01}

	row := NewProcessedRow(bar, ind)
	assert.Equal(t, bar.Unix, row.Unix)
	assert.Equal(t, "1.25", row.Open.String())
	assert.Equal(t, "1.5", row.Close.String())
	assert.Equal(t, "55.5", row.RSI.String())
	assert.Equal(t, int64(321), row.TradeCount)
	require.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), row.Timestamp)
}

func TestDatasetDimensions(t *testing.T) {
	ds := &Dataset{}
	assert.Zero(t, ds.Len())
	assert.Zero(t, ds.Width())

	ds = &Dataset{Features: [][]float64{{1, 2, 3}}, Labels: []float64{1}}
	assert.Equal(t, 1, ds.Len())
	assert.Equal(t, 3, ds.Width())
}
