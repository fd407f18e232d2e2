package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleHealth is a simple health check endpoint
func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus provides detailed service status information
func (h *Handler) handleStatus(c *gin.Context) {
	status := gin.H{
		"status":        "operational",
		"version":       version,
		"uptime":        time.Since(h.startTime).String(),
		"providers":     h.providers,
		"circuit_state": h.market.BreakerState(),
		"configuration": gin.H{
			"mock_mode":       h.cfg.MockMode,
			"circuit_breaker": h.cfg.EnableCircuitBreaker,
			"validation":      h.cfg.EnableValidation,
			"metrics":         h.cfg.EnableMetrics,
		},
	}
	if h.recorder != nil {
		status["history"] = h.recorder.Status()
	}

	c.JSON(http.StatusOK, status)
}
