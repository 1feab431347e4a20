package models

import "time"

// Dataset holds feature vectors and their labels. A dataset is owned by
// exactly one training run and is never shared across runs.
type Dataset struct {
	Features [][]float64 `json:"features"`
	Labels   []float64   `json:"labels"`
}

// Len returns the number of rows in the dataset.
func (d *Dataset) Len() int {
	return len(d.Features)
}

// Width returns the feature-vector arity, or 0 for an empty dataset.
func (d *Dataset) Width() int {
	if len(d.Features) == 0 {
		return 0
	}
	return len(d.Features[0])
}

// NormalizationStats carries per-feature moments computed once from the
// training partition and reused, never recomputed, for test and
// predict-time data.
type NormalizationStats struct {
	Mean   []float64 `json:"mean"`
	StdDev []float64 `json:"stddev"`
}

// TrainingResult is the immutable record of one training run.
type TrainingResult struct {
	Epochs      int           `json:"epochs"`
	LossHistory []float64     `json:"loss_history"`
	ValLoss     []float64     `json:"val_loss_history,omitempty"`
	FinalLoss   float64       `json:"final_loss"`
	FinalMSE    float64       `json:"final_mse"`
	Samples     int           `json:"samples"`
	Duration    time.Duration `json:"duration_ns"`
}

// EvaluationResult is the immutable record of one held-out evaluation.
type EvaluationResult struct {
	Loss    float64 `json:"loss"`
	MSE     float64 `json:"mse"`
	Samples int     `json:"samples"`
}

// PredictionBatch is the immutable record of one prediction call, one
// value per input row in input order.
type PredictionBatch struct {
	Predictions []float64 `json:"predictions"`
	Cached      bool      `json:"cached"`
}
