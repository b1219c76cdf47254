package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/polyquery/polyquery/internal/health"
	"github.com/polyquery/polyquery/internal/models"
)

type HealthHandler struct {
	checker *health.HealthChecker
}

func NewHealthHandler(checker *health.HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// HandleHealth reports the last known health of all backing services,
// probing on demand when no periodic check has run yet.
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	overall := h.checker.LastKnown()
	if overall == nil {
		checked := h.checker.CheckAll()
		overall = &checked
	}

	services := make(map[string]string, len(overall.Services))
	for _, svc := range overall.Services {
		services[svc.Name] = svc.Status
	}

	code := http.StatusOK
	if overall.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, models.HealthResponse{
		Status:    overall.Status,
		Service:   "polyquery",
		Timestamp: time.Now().Format(time.RFC3339),
		Services:  services,
	})
}
