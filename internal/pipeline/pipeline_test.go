package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptovista/forecast-go/internal/ml"
	"github.com/cryptovista/forecast-go/internal/models"
)

func TestProcessStage(t *testing.T) {
	run := NewRun(testConfig(), testLogger())

	bars, indicators, err := run.Process(context.Background(), syntheticCSV(increasingCloses(30)))
	require.NoError(t, err)
	assert.Len(t, bars, 30)
	assert.Len(t, indicators, 30)
	assert.Equal(t, 30, run.Stats.RowsParsed)
	assert.Zero(t, run.Stats.RowsDropped)
	assert.NotEmpty(t, run.ID)
}

func TestProcessRejectsEmptySource(t *testing.T) {
	run := NewRun(testConfig(), testLogger())

	_, _, err := run.Process(context.Background(), csvHeader)
	require.Error(t, err)
	assert.Equal(t, models.ErrKindIngest, models.KindOf(err))
}

func TestProcessCancelled(t *testing.T) {
	run := NewRun(testConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := run.Process(ctx, syntheticCSV(increasingCloses(5)))
	require.Error(t, err)
	assert.Equal(t, models.ErrKindCancelled, models.KindOf(err))
}

func TestExecuteFullCycle(t *testing.T) {
	cfg := testConfig()
	run := NewRun(cfg, testLogger())
	trainer := ml.NewTrainer(testLogger(), nil)

	result, net, err := run.Execute(context.Background(), syntheticCSV(increasingCloses(30)), trainer)
	require.NoError(t, err)
	require.NotNil(t, net)

	assert.Equal(t, run.ID, result.RunID)
	assert.Equal(t, "1INCHBTC", result.Symbol)
	assert.Equal(t, 30, result.Rows)
	assert.Equal(t, 24, result.TrainRows)
	assert.Equal(t, 6, result.TestRows)

	require.NotNil(t, result.Training)
	assert.Equal(t, cfg.Model.Epochs, result.Training.Epochs)
	assert.Len(t, result.Training.LossHistory, cfg.Model.Epochs)

	require.NotNil(t, result.Evaluation)
	assert.Equal(t, 6, result.Evaluation.Samples)
	assert.GreaterOrEqual(t, result.Evaluation.MSE, 0.0)

	// Normalization stats ride along for predict-time reuse.
	require.NotNil(t, result.Stats)
	assert.Len(t, result.Stats.Mean, FeatureWidth)
	assert.Len(t, result.Stats.StdDev, FeatureWidth)

	// The returned network serves predictions at the fixed arity.
	preds, err := net.Predict([][]float64{make([]float64, FeatureWidth)})
	require.NoError(t, err)
	assert.Len(t, preds, 1)
}

func TestExecuteIsDeterministicForFixedSeed(t *testing.T) {
	cfg := testConfig()
	csv := syntheticCSV(increasingCloses(30))
	trainer := ml.NewTrainer(testLogger(), nil)

	first, _, err := NewRun(cfg, testLogger()).Execute(context.Background(), csv, trainer)
	require.NoError(t, err)
	second, _, err := NewRun(cfg, testLogger()).Execute(context.Background(), csv, trainer)
	require.NoError(t, err)

	assert.Equal(t, first.Training.LossHistory, second.Training.LossHistory)
	assert.Equal(t, first.Evaluation.MSE, second.Evaluation.MSE)
}

func TestExecuteRejectsTinyDataset(t *testing.T) {
	run := NewRun(testConfig(), testLogger())
	trainer := ml.NewTrainer(testLogger(), nil)

	// One row splits into an empty partition.
	_, _, err := run.Execute(context.Background(), syntheticCSV(increasingCloses(1)), trainer)
	require.Error(t, err)
	assert.Equal(t, models.ErrKindDataValidation, models.KindOf(err))
}
