package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/cryptovista/forecast-go/internal/database"
	"github.com/cryptovista/forecast-go/internal/ml"
)

var startTime = time.Now()

type HealthHandler struct {
	redis   *database.RedisClient
	store   *ModelStore
	buffers *ml.BufferManager
	version string
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Services  map[string]string      `json:"services"`
	Resources map[string]interface{} `json:"resources"`
}

func NewHealthHandler(redis *database.RedisClient, store *ModelStore, buffers *ml.BufferManager, version string) *HealthHandler {
	return &HealthHandler{
		redis:   redis,
		store:   store,
		buffers: buffers,
		version: version,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	services := make(map[string]string)

	// The prediction cache is optional; a missing Redis degrades the
	// service instead of failing it.
	if h.redis != nil {
		if err := h.redis.HealthCheck(c.Request.Context()); err != nil {
			services["redis"] = "unhealthy: " + err.Error()
		} else {
			services["redis"] = "healthy"
		}
	} else {
		services["redis"] = "disabled"
	}

	if h.store.Ready() {
		services["model"] = "trained"
	} else {
		services["model"] = "untrained"
	}

	status := "healthy"
	for _, s := range services {
		if s != "healthy" && s != "disabled" && s != "trained" && s != "untrained" {
			status = "degraded"
			break
		}
	}

	resources := map[string]interface{}{
		"goroutines":     runtime.NumGoroutine(),
		"active_buffers": h.buffers.ActiveCount(),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resources["memory_used_percent"] = vm.UsedPercent
		resources["memory_available_mb"] = vm.Available / 1024 / 1024
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Services:  services,
		Resources: resources,
	})
}
