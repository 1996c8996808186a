package http

import (
	"context"
	"net/http"
	"time"

	"murmur/internal/infrastructure/monitoring"
	"murmur/pkg/utils"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	checker     *monitoring.HealthChecker
	connections func() int
	startTime   time.Time
	timeout     time.Duration
}

func NewHealthHandler(checker *monitoring.HealthChecker, connections func() int) *HealthHandler {
	return &HealthHandler{
		checker:     checker,
		connections: connections,
		startTime:   time.Now(),
		timeout:     2 * time.Second,
	}
}

// Health is a liveness probe; it never touches dependencies.
func (h *HealthHandler) Health(c *gin.Context) {
	connections := 0
	if h.connections != nil {
		connections = h.connections()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"uptime":      utils.FormatDuration(time.Since(h.startTime)),
		"connections": connections,
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := h.checker.CheckAll(ctx)
	if !status.Healthy() {
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}
