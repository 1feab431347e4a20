package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cryptovista/forecast-go/internal/cache"
	"github.com/cryptovista/forecast-go/internal/config"
	"github.com/cryptovista/forecast-go/internal/ml"
	"github.com/cryptovista/forecast-go/internal/models"
	"github.com/cryptovista/forecast-go/internal/pipeline"
)

// ModelHandler serves the training, prediction and export endpoints
// against the service's single in-memory model.
type ModelHandler struct {
	cfg     *config.Config
	logger  *logrus.Logger
	trainer *ml.Trainer
	store   *ModelStore
	cache   *cache.PredictionCache
}

type TrainRequest struct {
	Features [][]float64 `json:"features" binding:"required"`
	Labels   []float64   `json:"labels" binding:"required"`
}

type TrainResponse struct {
	FinalLoss float64   `json:"final_loss"`
	FinalMSE  float64   `json:"final_mse"`
	TestLoss  float64   `json:"test_loss"`
	TestMSE   float64   `json:"test_mse"`
	Epochs    int       `json:"epochs"`
	TrainRows int       `json:"train_rows"`
	TestRows  int       `json:"test_rows"`
	Timestamp time.Time `json:"timestamp"`
}

type PredictRequest struct {
	Features [][]float64 `json:"features" binding:"required"`
}

func NewModelHandler(cfg *config.Config, logger *logrus.Logger, trainer *ml.Trainer, store *ModelStore, predictionCache *cache.PredictionCache) *ModelHandler {
	return &ModelHandler{
		cfg:     cfg,
		logger:  logger,
		trainer: trainer,
		store:   store,
		cache:   predictionCache,
	}
}

// TrainModel runs a full train/evaluate cycle over caller-supplied
// feature/label pairs: chronological split, training-partition
// normalization, fresh network, fit, held-out evaluation. The trained
// model replaces the service's current artifact.
func (h *ModelHandler) TrainModel(c *gin.Context) {
	var req TrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "parse", "message": "features and labels are required"}})
		return
	}

	dataset := &models.Dataset{Features: req.Features, Labels: req.Labels}
	train, test, err := pipeline.Split(dataset, h.cfg.Dataset.SplitRatio)
	if err != nil {
		respondError(c, err)
		return
	}
	if train.Len() == 0 || test.Len() == 0 {
		respondError(c, models.NewError(models.ErrKindDataValidation,
			"too few rows (%d) for a %v split", dataset.Len(), h.cfg.Dataset.SplitRatio))
		return
	}

	builder := pipeline.NewFeatureBuilder(h.logger)
	stats, err := builder.ComputeStats(train.Features)
	if err != nil {
		respondError(c, err)
		return
	}
	trainFeatures, _, err := builder.Normalize(train.Features, stats)
	if err != nil {
		respondError(c, err)
		return
	}
	testFeatures, _, err := builder.Normalize(test.Features, stats)
	if err != nil {
		respondError(c, err)
		return
	}

	net, err := ml.NewNetwork(train.Width(), h.cfg.Model.HiddenLayers, h.cfg.Model.Seed)
	if err != nil {
		respondError(c, err)
		return
	}

	trainCfg := ml.TrainConfig{
		Epochs:          h.cfg.Model.Epochs,
		BatchSize:       h.cfg.Model.BatchSize,
		ValidationSplit: h.cfg.Model.ValidationSplit,
		LearningRate:    h.cfg.Model.LearningRate,
		Seed:            h.cfg.Model.Seed,
	}
	training, err := h.trainer.Train(c.Request.Context(), net, trainFeatures, train.Labels, trainCfg)
	if err != nil {
		respondError(c, err)
		return
	}

	evaluation, err := h.trainer.Evaluate(net, testFeatures, test.Labels)
	if err != nil {
		respondError(c, err)
		return
	}

	h.store.Put(net, stats)

	c.JSON(http.StatusOK, TrainResponse{
		FinalLoss: training.FinalLoss,
		FinalMSE:  training.FinalMSE,
		TestLoss:  evaluation.Loss,
		TestMSE:   evaluation.MSE,
		Epochs:    training.Epochs,
		TrainRows: train.Len(),
		TestRows:  test.Len(),
		Timestamp: time.Now().UTC(),
	})
}

// Predict returns one value per input row against the current model.
// Responses are cached briefly, keyed by model generation and a digest
// of the request, since dashboards poll the same batch repeatedly.
func (h *ModelHandler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "parse", "message": "features are required"}})
		return
	}

	net, stats, generation := h.store.Get()
	if net == nil {
		c.JSON(http.StatusConflict, gin.H{"error": gin.H{"kind": "training", "message": "no trained model available"}})
		return
	}

	ctx := c.Request.Context()
	key := ""
	if h.cache != nil {
		key = fmt.Sprintf("%d:%s", generation, h.cache.Key(req.Features))
		if predictions, ok := h.cache.Get(ctx, key); ok {
			c.JSON(http.StatusOK, models.PredictionBatch{Predictions: predictions, Cached: true})
			return
		}
	}

	features := req.Features
	if stats != nil {
		normalized, _, err := pipeline.NewFeatureBuilder(h.logger).Normalize(features, stats)
		if err != nil {
			respondError(c, err)
			return
		}
		features = normalized
	}

	predictions, err := net.Predict(features)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.cache != nil {
		h.cache.Set(ctx, key, predictions)
	}

	c.JSON(http.StatusOK, models.PredictionBatch{Predictions: predictions})
}

// ExportModel streams the current model as a binary artifact.
func (h *ModelHandler) ExportModel(c *gin.Context) {
	net, _, generation := h.store.Get()
	if net == nil {
		c.JSON(http.StatusConflict, gin.H{"error": gin.H{"kind": "training", "message": "no trained model available"}})
		return
	}

	var buf bytes.Buffer
	if err := net.Export(&buf); err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("forecast_model_%d.gob", generation)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/octet-stream", buf.Bytes())
}
