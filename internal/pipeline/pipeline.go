package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cryptovista/forecast-go/internal/config"
	"github.com/cryptovista/forecast-go/internal/ml"
	"github.com/cryptovista/forecast-go/internal/models"
)

// Run is the caller-owned context object for one pipeline invocation.
// Every stage reads from it instead of ambient globals, and nothing in
// it survives into an unrelated invocation.
type Run struct {
	ID     string
	cfg    *config.Config
	logger *logrus.Logger

	ingestor   *Ingestor
	sanitizer  *Sanitizer
	indicators *IndicatorEngine
	features   *FeatureBuilder

	Stats RunStats
}

// RunStats accumulates per-stage counters for one invocation.
type RunStats struct {
	RowsParsed     int `json:"rows_parsed"`
	RowsDropped    int `json:"rows_dropped"`
	ValuesRepaired int `json:"values_repaired"`
	NormRepaired   int `json:"normalization_repaired"`
}

// RunResult summarizes a full ingest-train-evaluate cycle.
type RunResult struct {
	RunID      string                   `json:"run_id"`
	Symbol     string                   `json:"symbol,omitempty"`
	Rows       int                      `json:"rows"`
	Dropped    int                      `json:"dropped"`
	TrainRows  int                      `json:"train_rows"`
	TestRows   int                      `json:"test_rows"`
	Training   *models.TrainingResult   `json:"training"`
	Evaluation *models.EvaluationResult `json:"evaluation"`
	Stats      *models.NormalizationStats `json:"-"`
}

func NewRun(cfg *config.Config, logger *logrus.Logger) *Run {
	return &Run{
		ID:         uuid.New().String(),
		cfg:        cfg,
		logger:     logger,
		ingestor:   NewIngestor(cfg.Ingest, logger),
		sanitizer:  NewSanitizer(RepairPolicy(cfg.Sanitize.Policy), logger),
		indicators: NewIndicatorEngine(cfg.Indicators, logger),
		features:   NewFeatureBuilder(logger),
	}
}

// Process runs ingest, sanitize and indicator derivation over raw
// source text. Cancellation is checked between stages.
func (r *Run) Process(ctx context.Context, csvText string) ([]models.Bar, []models.IndicatorSet, error) {
	started := time.Now()

	bars, dropped, err := r.ingestor.IngestText(ctx, csvText)
	if err != nil {
		return nil, nil, err
	}
	r.Stats.RowsParsed = len(bars)
	r.Stats.RowsDropped = dropped
	if len(bars) == 0 {
		return nil, nil, models.NewError(models.ErrKindIngest, "source contained no valid rows")
	}

	if err := checkCancelled(ctx, "sanitize"); err != nil {
		return nil, nil, err
	}
	bars, repaired, err := r.sanitizer.Sanitize(bars)
	if err != nil {
		return nil, nil, err
	}
	r.Stats.ValuesRepaired = repaired

	if err := checkCancelled(ctx, "indicators"); err != nil {
		return nil, nil, err
	}
	indicators, err := r.indicators.Compute(bars)
	if err != nil {
		return nil, nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"run_id":      r.ID,
		"rows":        len(bars),
		"dropped":     dropped,
		"repaired":    repaired,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("Processing stage completed")

	return bars, indicators, nil
}

// Execute drives the complete cycle: process the raw text, build and
// normalize the dataset, split chronologically, train a fresh model and
// evaluate it on the held-out suffix. The trained network and the
// training-partition normalization stats are returned so predictions
// can reuse them.
func (r *Run) Execute(ctx context.Context, csvText string, trainer *ml.Trainer) (*RunResult, *ml.Network, error) {
	bars, indicators, err := r.Process(ctx, csvText)
	if err != nil {
		return nil, nil, err
	}

	if err := checkCancelled(ctx, "features"); err != nil {
		return nil, nil, err
	}
	dataset, err := r.features.Build(bars, indicators)
	if err != nil {
		return nil, nil, err
	}

	train, test, err := Split(dataset, r.cfg.Dataset.SplitRatio)
	if err != nil {
		return nil, nil, err
	}
	if train.Len() == 0 || test.Len() == 0 {
		return nil, nil, models.NewError(models.ErrKindDataValidation,
			"split ratio %v leaves an empty partition (%d train / %d test)",
			r.cfg.Dataset.SplitRatio, train.Len(), test.Len())
	}

	stats, err := r.features.ComputeStats(train.Features)
	if err != nil {
		return nil, nil, err
	}
	trainFeatures, normRepaired, err := r.features.Normalize(train.Features, stats)
	if err != nil {
		return nil, nil, err
	}
	testFeatures, testRepaired, err := r.features.Normalize(test.Features, stats)
	if err != nil {
		return nil, nil, err
	}
	r.Stats.NormRepaired = normRepaired + testRepaired

	if err := checkCancelled(ctx, "train"); err != nil {
		return nil, nil, err
	}

	net, err := ml.NewNetwork(FeatureWidth, r.cfg.Model.HiddenLayers, r.cfg.Model.Seed)
	if err != nil {
		return nil, nil, err
	}

	trainCfg := ml.TrainConfig{
		Epochs:          r.cfg.Model.Epochs,
		BatchSize:       r.cfg.Model.BatchSize,
		ValidationSplit: r.cfg.Model.ValidationSplit,
		LearningRate:    r.cfg.Model.LearningRate,
		Seed:            r.cfg.Model.Seed,
	}
	training, err := trainer.Train(ctx, net, trainFeatures, train.Labels, trainCfg)
	if err != nil {
		return nil, nil, err
	}

	evaluation, err := trainer.Evaluate(net, testFeatures, test.Labels)
	if err != nil {
		return nil, nil, err
	}

	symbol := ""
	if len(bars) > 0 {
		symbol = bars[0].Symbol
	}

	result := &RunResult{
		RunID:      r.ID,
		Symbol:     symbol,
		Rows:       len(bars),
		Dropped:    r.Stats.RowsDropped,
		TrainRows:  train.Len(),
		TestRows:   test.Len(),
		Training:   training,
		Evaluation: evaluation,
		Stats:      stats,
	}

	r.logger.WithFields(logrus.Fields{
		"run_id":     r.ID,
		"train_rows": train.Len(),
		"test_rows":  test.Len(),
		"final_loss": training.FinalLoss,
		"test_mse":   evaluation.MSE,
	}).Info("Pipeline run completed")

	return result, net, nil
}

func checkCancelled(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return models.WrapError(models.ErrKindCancelled, err, "run cancelled before %s stage", stage)
	}
	return nil
}
