package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/cryptovista/forecast-go/internal/models"
)

func TestBuildFixedWidthAndLabel(t *testing.T) {
	fb := NewFeatureBuilder(testLogger())

	bars := finiteBars(5)
	indicators := make([]models.IndicatorSet, 5)
	indicators[4] = models.IndicatorSet{MovingAverage: 2.5, RSI: 60, MACD: 0.1}

	ds, err := fb.Build(bars, indicators)
	require.NoError(t, err)
	require.Equal(t, 5, ds.Len())
	require.Equal(t, FeatureWidth, ds.Width())
	require.Len(t, FeatureNames(), FeatureWidth)

	// Labels are the same bar's close price.
	for i := range bars {
		assert.Equal(t, bars[i].Close, ds.Labels[i])
	}

	// Fixed feature order: OHLC, volumes, trade count, then indicators.
	last := ds.Features[4]
	assert.Equal(t, bars[4].Open, last[0])
	assert.Equal(t, bars[4].Close, last[3])
	assert.Equal(t, float64(bars[4].TradeCount), last[6])
	assert.Equal(t, 60.0, last[7])
	assert.Equal(t, 2.5, last[8])
	assert.Equal(t, 0.1, last[9])
}

func TestBuildRejectsLengthMismatch(t *testing.T) {
	fb := NewFeatureBuilder(testLogger())

	_, err := fb.Build(finiteBars(3), make([]models.IndicatorSet, 2))
	require.Error(t, err)
	assert.Equal(t, models.ErrKindShapeMismatch, models.KindOf(err))
}

func TestNormalizeCentersTrainingPartition(t *testing.T) {
	fb := NewFeatureBuilder(testLogger())

	features := [][]float64{
		{1, 10, 5},
		{2, 20, 5},
		{3, 30, 5},
		{4, 40, 5},
	}

	stats, err := fb.ComputeStats(features)
	require.NoError(t, err)

	normalized, repaired, err := fb.Normalize(features, stats)
	require.NoError(t, err)
	assert.Zero(t, repaired)

	column := make([]float64, len(normalized))
	for j := 0; j < 2; j++ {
		for i := range normalized {
			column[i] = normalized[i][j]
		}
		assert.InDelta(t, 0.0, stat.Mean(column, nil), 1e-9, "column %d", j)
		assert.InDelta(t, 1.0, stat.PopStdDev(column, nil), 1e-9, "column %d", j)
	}

	// The zero-variance column normalizes to zero via the epsilon floor.
	for i := range normalized {
		assert.InDelta(t, 0.0, normalized[i][2], 1e-9)
	}
}

func TestNormalizeReusesTrainingStats(t *testing.T) {
	fb := NewFeatureBuilder(testLogger())

	train := [][]float64{{0}, {2}, {4}, {6}}
	stats, err := fb.ComputeStats(train)
	require.NoError(t, err)

	// Test-partition values are scaled by the training mean/stddev, not
	// their own.
	test := [][]float64{{3}, {9}}
	normalized, repaired, err := fb.Normalize(test, stats)
	require.NoError(t, err)
	assert.Zero(t, repaired)
	assert.InDelta(t, 0.0, normalized[0][0], 1e-9)
	assert.InDelta(t, (9.0-3.0)/stats.StdDev[0], normalized[1][0], 1e-9)
}

func TestNormalizeRepairsNonFiniteResults(t *testing.T) {
	fb := NewFeatureBuilder(testLogger())

	stats := &models.NormalizationStats{Mean: []float64{0}, StdDev: []float64{1}}
	normalized, repaired, err := fb.Normalize([][]float64{{math.NaN()}, {math.Inf(1)}, {2}}, stats)
	require.NoError(t, err)
	assert.Equal(t, 2, repaired)
	assert.Zero(t, normalized[0][0])
	assert.Zero(t, normalized[1][0])
	assert.InDelta(t, 2.0, normalized[2][0], 1e-9)
}

func TestComputeStatsRejectsEmptyAndRagged(t *testing.T) {
	fb := NewFeatureBuilder(testLogger())

	_, err := fb.ComputeStats(nil)
	require.Error(t, err)
	assert.Equal(t, models.ErrKindDataValidation, models.KindOf(err))

	_, err = fb.ComputeStats([][]float64{{1, 2}, {3}})
	require.Error(t, err)
	assert.Equal(t, models.ErrKindShapeMismatch, models.KindOf(err))
}

func TestNormalizeRejectsWidthMismatch(t *testing.T) {
	fb := NewFeatureBuilder(testLogger())

	stats := &models.NormalizationStats{Mean: []float64{0, 0}, StdDev: []float64{1, 1}}
	_, _, err := fb.Normalize([][]float64{{1}}, stats)
	require.Error(t, err)
	assert.Equal(t, models.ErrKindShapeMismatch, models.KindOf(err))
}
