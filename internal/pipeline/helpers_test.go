package pipeline

import (
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/cryptovista/forecast-go/internal/config"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		LogLevel:    "error",
		Ingest:      config.IngestConfig{Delimiter: ",", HeaderLines: 2},
		Sanitize:    config.SanitizeConfig{Policy: "column_mean"},
		Indicators: config.IndicatorConfig{
			MAPeriod:   14,
			RSIPeriod:  14,
			MACDFast:   12,
			MACDSlow:   26,
			MACDSignal: 9,
		},
		Dataset: config.DatasetConfig{SplitRatio: 0.8},
		Model: config.ModelConfig{
			HiddenLayers:    []int{8, 4},
			Epochs:          3,
			BatchSize:       8,
			ValidationSplit: 0.2,
			LearningRate:    0.001,
			Seed:            42,
		},
	}
}

const csvHeader = "https://www.CryptoDataDownload.com\n" +
	"unix,date,symbol,open,high,low,close,Volume 1INCH,Volume BTC,tradecount\n"

// syntheticCSV renders one data row per close price in the fixed
// ten-column export layout.
func syntheticCSV(closes []float64) string {
	var sb strings.Builder
	sb.WriteString(csvHeader)
	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, close := range closes {
		ts := base.AddDate(0, 0, i)
		sb.WriteString(fmt.Sprintf("%d,%s,1INCHBTC,%g,%g,%g,%g,%g,%g,%d\n",
			ts.Unix(), ts.Format("2006-01-02"), close-0.5, close+1, close-1, close,
			1000+float64(i), 10+float64(i), 100+i))
	}
	return sb.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func increasingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	return closes
}
