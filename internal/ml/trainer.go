package ml

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/cryptovista/forecast-go/internal/models"
)

// TrainConfig mirrors the fit options of the network: mean squared
// error loss under an Adam optimizer.
type TrainConfig struct {
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	LearningRate    float64
	Seed            int64
}

// DefaultTrainConfig matches the hyperparameters the pipeline was
// tuned with.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Epochs:          20,
		BatchSize:       16,
		ValidationSplit: 0.2,
		LearningRate:    0.001,
		Seed:            42,
	}
}

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// adamState carries the optimizer moments for one layer.
type adamState struct {
	mW, vW *mat.Dense
	mB, vB []float64
}

// Trainer drives train, evaluate and predict cycles against a network.
// Scratch buffers are registered with the buffer manager and released
// on every exit path.
type Trainer struct {
	logger  *logrus.Logger
	buffers *BufferManager
}

func NewTrainer(logger *logrus.Logger, buffers *BufferManager) *Trainer {
	if buffers == nil {
		buffers = NewBufferManager(logger)
	}
	return &Trainer{logger: logger, buffers: buffers}
}

// Buffers exposes the buffer manager for stats reporting.
func (t *Trainer) Buffers() *BufferManager {
	return t.buffers
}

// Train fits the network to the training partition. Inputs are
// validated immediately before fitting: training never observes
// non-finite values or ragged rows, and no weight is updated when
// validation fails. Training operates on a cloned parameter set that is
// committed only on success, so a cancelled or failed run leaves the
// network untouched. Concurrent Train calls on one network are
// rejected.
func (t *Trainer) Train(ctx context.Context, net *Network, features [][]float64, labels []float64, cfg TrainConfig) (*models.TrainingResult, error) {
	if err := validateInputs(net, features, labels); err != nil {
		return nil, err
	}
	if cfg.Epochs <= 0 || cfg.BatchSize <= 0 {
		return nil, models.NewError(models.ErrKindTraining, "epochs and batch size must be positive, got %d/%d", cfg.Epochs, cfg.BatchSize)
	}
	if cfg.ValidationSplit < 0 || cfg.ValidationSplit >= 1 {
		return nil, models.NewError(models.ErrKindTraining, "validation split must be in [0,1), got %v", cfg.ValidationSplit)
	}
	if cfg.LearningRate <= 0 {
		return nil, models.NewError(models.ErrKindTraining, "learning rate must be positive, got %v", cfg.LearningRate)
	}

	if !net.beginTraining() {
		return nil, models.NewError(models.ErrKindTraining, "a training run already holds this model")
	}
	defer net.endTraining()

	started := time.Now()

	params := net.cloneParams()
	opt := newAdamStates(params)

	bufferID := fmt.Sprintf("train_%d", started.UnixNano())
	ws := newWorkspace(net.sizes)
	grads := newGradients(params)
	t.buffers.Acquire(bufferID, func() error {
		ws.reset()
		return nil
	})
	defer t.buffers.Release(bufferID)

	// The validation slice is the chronological tail, carved off before
	// any shuffling.
	n := len(features)
	nVal := int(float64(n) * cfg.ValidationSplit)
	trainN := n - nVal
	if trainN == 0 {
		return nil, models.NewError(models.ErrKindTraining, "validation split %v leaves no training rows", cfg.ValidationSplit)
	}

	rnd := rand.New(rand.NewSource(cfg.Seed))
	indices := make([]int, trainN)
	for i := range indices {
		indices[i] = i
	}

	lossHistory := make([]float64, 0, cfg.Epochs)
	valHistory := make([]float64, 0, cfg.Epochs)
	step := 0

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, models.WrapError(models.ErrKindCancelled, err, "training cancelled at epoch %d", epoch)
		}

		// Shuffling is confined to the training subset; the split
		// boundary is never crossed.
		rnd.Shuffle(trainN, func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		epochLoss := 0.0
		for start := 0; start < trainN; start += cfg.BatchSize {
			end := start + cfg.BatchSize
			if end > trainN {
				end = trainN
			}
			batch := indices[start:end]

			zeroGradients(grads)
			for _, idx := range batch {
				pred := forward(params, features[idx], ws)
				diff := pred - labels[idx]
				epochLoss += diff * diff
				backward(params, grads, ws, diff)
			}

			step++
			applyAdam(params, grads, opt, cfg.LearningRate, step, len(batch))
		}

		epochLoss /= float64(trainN)
		if math.IsNaN(epochLoss) || math.IsInf(epochLoss, 0) {
			return nil, models.NewError(models.ErrKindTraining, "loss diverged to %v at epoch %d", epochLoss, epoch)
		}
		lossHistory = append(lossHistory, epochLoss)

		if nVal > 0 {
			valLoss := meanSquaredError(params, features[trainN:], labels[trainN:], ws)
			valHistory = append(valHistory, valLoss)
		}

		t.logger.WithFields(logrus.Fields{
			"epoch": epoch + 1,
			"loss":  epochLoss,
		}).Debug("Epoch completed")
	}

	net.commit(params)

	finalLoss := lossHistory[len(lossHistory)-1]
	result := &models.TrainingResult{
		Epochs:      cfg.Epochs,
		LossHistory: lossHistory,
		ValLoss:     valHistory,
		FinalLoss:   finalLoss,
		FinalMSE:    finalLoss,
		Samples:     trainN,
		Duration:    time.Since(started),
	}

	t.logger.WithFields(logrus.Fields{
		"epochs":      cfg.Epochs,
		"samples":     trainN,
		"final_loss":  result.FinalLoss,
		"duration_ms": result.Duration.Milliseconds(),
	}).Info("Training completed")

	return result, nil
}

// Evaluate computes loss and MSE over the held-out set without
// mutating the network.
func (t *Trainer) Evaluate(net *Network, features [][]float64, labels []float64) (*models.EvaluationResult, error) {
	if err := validateInputs(net, features, labels); err != nil {
		return nil, err
	}

	bufferID := fmt.Sprintf("eval_%d", time.Now().UnixNano())
	ws := newWorkspace(net.sizes)
	t.buffers.Acquire(bufferID, func() error {
		ws.reset()
		return nil
	})
	defer t.buffers.Release(bufferID)

	net.mu.RLock()
	mse := meanSquaredError(net.params, features, labels, ws)
	net.mu.RUnlock()

	return &models.EvaluationResult{
		Loss:    mse,
		MSE:     mse,
		Samples: len(features),
	}, nil
}

// validateInputs enforces the train/evaluate preconditions: matching
// lengths, fixed arity and strictly finite values.
func validateInputs(net *Network, features [][]float64, labels []float64) error {
	if len(features) == 0 {
		return models.NewError(models.ErrKindDataValidation, "input is empty")
	}
	if len(features) != len(labels) {
		return models.NewError(models.ErrKindShapeMismatch,
			"feature count %d does not match label count %d", len(features), len(labels))
	}
	for i, row := range features {
		if len(row) != net.Width() {
			return models.NewError(models.ErrKindShapeMismatch,
				"row %d has width %d, expected %d", i, len(row), net.Width())
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return models.NewError(models.ErrKindDataValidation,
					"non-finite feature value at row %d column %d", i, j)
			}
		}
		if math.IsNaN(labels[i]) || math.IsInf(labels[i], 0) {
			return models.NewError(models.ErrKindDataValidation, "non-finite label at row %d", i)
		}
	}
	return nil
}

func meanSquaredError(params []layerParams, features [][]float64, labels []float64, ws *workspace) float64 {
	if len(features) == 0 {
		return 0
	}
	sum := 0.0
	for i, row := range features {
		diff := forward(params, row, ws) - labels[i]
		sum += diff * diff
	}
	return sum / float64(len(features))
}

// backward accumulates gradients for one sample. diff is pred-label;
// the mean-squared-error derivative contributes 2*diff at the linear
// output unit.
func backward(params []layerParams, grads []layerParams, ws *workspace, diff float64) {
	last := len(params) - 1
	ws.deltas[last][0] = 2 * diff

	for l := last; l >= 0; l-- {
		dv := mat.NewVecDense(len(ws.deltas[l]), ws.deltas[l])
		av := mat.NewVecDense(len(ws.acts[l]), ws.acts[l])

		grads[l].w.RankOne(grads[l].w, 1, dv, av)
		for i := range grads[l].b {
			grads[l].b[i] += ws.deltas[l][i]
		}

		if l > 0 {
			prev := mat.NewVecDense(len(ws.deltas[l-1]), ws.deltas[l-1])
			prev.MulVec(params[l].w.T(), dv)
			for i := range ws.deltas[l-1] {
				if ws.zs[l-1][i] <= 0 { // relu gate
					ws.deltas[l-1][i] = 0
				}
			}
		}
	}
}

func newGradients(params []layerParams) []layerParams {
	grads := make([]layerParams, len(params))
	for l, p := range params {
		rows, cols := p.w.Dims()
		grads[l] = layerParams{
			w: mat.NewDense(rows, cols, nil),
			b: make([]float64, len(p.b)),
		}
	}
	return grads
}

func zeroGradients(grads []layerParams) {
	for l := range grads {
		grads[l].w.Zero()
		clear(grads[l].b)
	}
}

func newAdamStates(params []layerParams) []adamState {
	states := make([]adamState, len(params))
	for l, p := range params {
		rows, cols := p.w.Dims()
		states[l] = adamState{
			mW: mat.NewDense(rows, cols, nil),
			vW: mat.NewDense(rows, cols, nil),
			mB: make([]float64, len(p.b)),
			vB: make([]float64, len(p.b)),
		}
	}
	return states
}

// applyAdam performs one bias-corrected Adam step with gradients
// averaged over the batch.
func applyAdam(params []layerParams, grads []layerParams, opt []adamState, lr float64, step, batchN int) {
	scale := 1.0 / float64(batchN)
	correction1 := 1 - math.Pow(adamBeta1, float64(step))
	correction2 := 1 - math.Pow(adamBeta2, float64(step))

	for l := range params {
		rows, cols := params[l].w.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				g := grads[l].w.At(i, j) * scale
				m := adamBeta1*opt[l].mW.At(i, j) + (1-adamBeta1)*g
				v := adamBeta2*opt[l].vW.At(i, j) + (1-adamBeta2)*g*g
				opt[l].mW.Set(i, j, m)
				opt[l].vW.Set(i, j, v)

				mHat := m / correction1
				vHat := v / correction2
				params[l].w.Set(i, j, params[l].w.At(i, j)-lr*mHat/(math.Sqrt(vHat)+adamEpsilon))
			}
		}
		for i := range params[l].b {
			g := grads[l].b[i] * scale
			m := adamBeta1*opt[l].mB[i] + (1-adamBeta1)*g
			v := adamBeta2*opt[l].vB[i] + (1-adamBeta2)*g*g
			opt[l].mB[i] = m
			opt[l].vB[i] = v

			mHat := m / correction1
			vHat := v / correction2
			params[l].b[i] -= lr * mHat / (math.Sqrt(vHat) + adamEpsilon)
		}
	}
}
