package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cryptovista/forecast-go/internal/config"
	"github.com/cryptovista/forecast-go/internal/ml"
	"github.com/cryptovista/forecast-go/internal/models"
	"github.com/cryptovista/forecast-go/internal/pipeline"
)

// PipelineHandler serves the processing and full-run endpoints.
type PipelineHandler struct {
	cfg     *config.Config
	logger  *logrus.Logger
	trainer *ml.Trainer
	store   *ModelStore
}

type ProcessRequest struct {
	CSVText string `json:"csv_text" binding:"required"`
}

type ProcessResponse struct {
	Rows      []models.ProcessedRow `json:"rows"`
	Count     int                   `json:"count"`
	Dropped   int                   `json:"dropped"`
	Repaired  int                   `json:"repaired"`
	Timestamp time.Time             `json:"timestamp"`
}

type RunRequest struct {
	CSVText    string   `json:"csv_text" binding:"required"`
	SplitRatio *float64 `json:"split_ratio,omitempty"`
	Epochs     *int     `json:"epochs,omitempty"`
}

func NewPipelineHandler(cfg *config.Config, logger *logrus.Logger, trainer *ml.Trainer, store *ModelStore) *PipelineHandler {
	return &PipelineHandler{
		cfg:     cfg,
		logger:  logger,
		trainer: trainer,
		store:   store,
	}
}

// ProcessData ingests raw OHLCV text and returns the sanitized,
// indicator-augmented rows in input order.
func (h *PipelineHandler) ProcessData(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "parse", "message": "csv_text is required"}})
		return
	}

	run := pipeline.NewRun(h.cfg, h.logger)
	bars, indicators, err := run.Process(c.Request.Context(), req.CSVText)
	if err != nil {
		respondError(c, err)
		return
	}

	rows := make([]models.ProcessedRow, len(bars))
	for i := range bars {
		rows[i] = models.NewProcessedRow(bars[i], indicators[i])
	}

	c.JSON(http.StatusOK, ProcessResponse{
		Rows:      rows,
		Count:     len(rows),
		Dropped:   run.Stats.RowsDropped,
		Repaired:  run.Stats.ValuesRepaired,
		Timestamp: time.Now().UTC(),
	})
}

// RunPipeline drives the complete ingest-train-evaluate cycle and
// installs the trained model for subsequent predictions.
func (h *PipelineHandler) RunPipeline(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "parse", "message": "csv_text is required"}})
		return
	}

	// The run owns a copy of the config so request overrides never leak
	// into other invocations.
	cfg := *h.cfg
	if req.SplitRatio != nil {
		cfg.Dataset.SplitRatio = *req.SplitRatio
	}
	if req.Epochs != nil {
		cfg.Model.Epochs = *req.Epochs
	}

	run := pipeline.NewRun(&cfg, h.logger)
	result, net, err := run.Execute(c.Request.Context(), req.CSVText, h.trainer)
	if err != nil {
		respondError(c, err)
		return
	}

	h.store.Put(net, result.Stats)

	c.JSON(http.StatusOK, result)
}
