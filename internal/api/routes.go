package api

import (
	"github.com/gin-gonic/gin"

	"github.com/cryptovista/forecast-go/internal/api/handlers"
	"github.com/cryptovista/forecast-go/internal/cache"
	"github.com/cryptovista/forecast-go/internal/config"
	"github.com/cryptovista/forecast-go/internal/database"
	"github.com/cryptovista/forecast-go/internal/ml"

	"github.com/sirupsen/logrus"
)

const version = "1.0.0"

// SetupRoutes wires the HTTP surface: health, the processing endpoint,
// and the model train/predict/export endpoints.
func SetupRoutes(router *gin.Engine, cfg *config.Config, logger *logrus.Logger, redis *database.RedisClient) {
	buffers := ml.NewBufferManager(logger)
	trainer := ml.NewTrainer(logger, buffers)
	store := handlers.NewModelStore()

	var predictionCache *cache.PredictionCache
	if redis != nil {
		predictionCache = cache.NewPredictionCache(redis.Client, cfg.PredictionCacheTTL(), logger)
	}

	pipelineHandler := handlers.NewPipelineHandler(cfg, logger, trainer, store)
	modelHandler := handlers.NewModelHandler(cfg, logger, trainer, store, predictionCache)
	healthHandler := handlers.NewHealthHandler(redis, store, buffers, version)

	router.GET("/health", healthHandler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		pipelineRoutes := v1.Group("/pipeline")
		{
			pipelineRoutes.POST("/process", pipelineHandler.ProcessData)
			pipelineRoutes.POST("/run", pipelineHandler.RunPipeline)
		}

		model := v1.Group("/model")
		{
			model.POST("/train", modelHandler.TrainModel)
			model.POST("/predict", modelHandler.Predict)
			model.GET("/export", modelHandler.ExportModel)
		}
	}
}
