package pipeline

import (
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/cryptovista/forecast-go/internal/models"
)

// FeatureWidth is the fixed arity of every feature vector.
const FeatureWidth = 10

// stdDevEpsilon floors per-feature standard deviation so zero-variance
// columns cannot divide by zero during normalization.
const stdDevEpsilon = 1e-8

// FeatureNames documents the fixed feature order.
func FeatureNames() []string {
	return []string{
		"open", "high", "low", "close",
		"volume_base", "volume_quote", "trade_count",
		"rsi", "moving_average", "macd",
	}
}

// FeatureBuilder assembles per-bar feature vectors and labels, and owns
// normalization. Stats come from the training partition only and are
// reused for test and predict-time data.
type FeatureBuilder struct {
	logger *logrus.Logger
}

func NewFeatureBuilder(logger *logrus.Logger) *FeatureBuilder {
	return &FeatureBuilder{logger: logger}
}

// Build produces one feature vector and label per bar. The label is the
// same bar's close price, mirroring the behavior this pipeline was
// rebuilt from; shift the labels before training to forecast the next
// bar instead.
func (fb *FeatureBuilder) Build(bars []models.Bar, indicators []models.IndicatorSet) (*models.Dataset, error) {
	if len(bars) != len(indicators) {
		return nil, models.NewError(models.ErrKindShapeMismatch,
			"bar count %d does not match indicator count %d", len(bars), len(indicators))
	}

	features := make([][]float64, len(bars))
	labels := make([]float64, len(bars))
	for i := range bars {
		b, ind := &bars[i], &indicators[i]
		features[i] = []float64{
			b.Open, b.High, b.Low, b.Close,
			b.VolumeBase, b.VolumeQuote, float64(b.TradeCount),
			ind.RSI, ind.MovingAverage, ind.MACD,
		}
		labels[i] = b.Close
	}

	return &models.Dataset{Features: features, Labels: labels}, nil
}

// ComputeStats derives per-feature mean and standard deviation from the
// training partition. Standard deviation is population based so a
// normalized training column has unit variance, floored at epsilon to
// guard zero-variance columns.
func (fb *FeatureBuilder) ComputeStats(features [][]float64) (*models.NormalizationStats, error) {
	if len(features) == 0 {
		return nil, models.NewError(models.ErrKindDataValidation, "cannot compute stats for an empty training partition")
	}
	width := len(features[0])

	stats := &models.NormalizationStats{
		Mean:   make([]float64, width),
		StdDev: make([]float64, width),
	}

	column := make([]float64, len(features))
	for j := 0; j < width; j++ {
		for i, row := range features {
			if len(row) != width {
				return nil, models.NewError(models.ErrKindShapeMismatch,
					"feature row %d has width %d, expected %d", i, len(row), width)
			}
			column[i] = row[j]
		}
		stats.Mean[j] = stat.Mean(column, nil)
		sd := stat.PopStdDev(column, nil)
		if !isFinite(sd) || sd < stdDevEpsilon {
			sd = stdDevEpsilon
		}
		stats.StdDev[j] = sd
	}

	return stats, nil
}

// Normalize rescales every feature as (x-mean)/stddev using previously
// computed training stats. This is the single place where
// post-normalization cleanup is allowed: a non-finite result is
// replaced with 0 and logged.
func (fb *FeatureBuilder) Normalize(features [][]float64, stats *models.NormalizationStats) ([][]float64, int, error) {
	width := len(stats.Mean)
	repaired := 0

	out := make([][]float64, len(features))
	for i, row := range features {
		if len(row) != width {
			return nil, 0, models.NewError(models.ErrKindShapeMismatch,
				"feature row %d has width %d, expected %d", i, len(row), width)
		}
		normalized := make([]float64, width)
		for j, v := range row {
			z := (v - stats.Mean[j]) / stats.StdDev[j]
			if !isFinite(z) {
				z = 0
				repaired++
			}
			normalized[j] = z
		}
		out[i] = normalized
	}

	if repaired > 0 {
		fb.logger.WithFields(logrus.Fields{
			"repaired": repaired,
		}).Warn("Replaced non-finite normalized values with 0")
	}

	return out, repaired, nil
}
