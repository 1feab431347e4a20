package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cryptovista/forecast-go/internal/models"
)

// statusClientClosed mirrors the nginx convention for a request the
// client abandoned.
const statusClientClosed = 499

// respondError maps a pipeline error to an HTTP status and a structured
// body. Foreign errors become opaque server faults so no internals leak
// across the boundary.
func respondError(c *gin.Context, err error) {
	var pe *models.PipelineError
	if !errors.As(err, &pe) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"kind": "internal", "message": "internal server error"},
		})
		return
	}

	status := http.StatusInternalServerError
	switch pe.Kind {
	case models.ErrKindIngest, models.ErrKindParse, models.ErrKindDataValidation, models.ErrKindShapeMismatch:
		status = http.StatusBadRequest
	case models.ErrKindCancelled:
		status = statusClientClosed
	case models.ErrKindNetwork:
		status = http.StatusBadGateway
	case models.ErrKindTraining:
		status = http.StatusInternalServerError
	}

	c.JSON(status, gin.H{
		"error": gin.H{"kind": string(pe.Kind), "message": pe.Message},
	})
}
