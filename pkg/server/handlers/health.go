package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/go-servicegraph/pkg/server/dto"
)

// ServiceName is reported by the health endpoints.
const ServiceName = "go-servicegraph"

// Pinger checks that the graph database answers.
type Pinger interface {
	VerifyConnectivity(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	graph   Pinger
	timeout time.Duration
}

// NewHealthHandler creates a new health handler. A nil graph makes the
// readiness probe always succeed.
func NewHealthHandler(graph Pinger) *HealthHandler {
	return &HealthHandler{graph: graph, timeout: 5 * time.Second}
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "healthy", Service: ServiceName})
}

// ReadinessCheck handles GET /ready
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if h.graph != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		defer cancel()
		if err := h.graph.VerifyConnectivity(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{
				Status:  "unavailable",
				Service: ServiceName,
				Detail:  err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "ready", Service: ServiceName})
}
