package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/go-servicegraph/pkg/server/dto"
	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// StatsSource reports graph counts.
type StatsSource interface {
	Stats(ctx context.Context) (*types.GraphStats, error)
}

// StatsHandler handles GET /stats
type StatsHandler struct {
	source StatsSource
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(source StatsSource) *StatsHandler {
	return &StatsHandler{source: source}
}

// Stats handles GET /stats
func (h *StatsHandler) Stats(c *gin.Context) {
	stats, err := h.source.Stats(c.Request.Context())
	if err != nil {
		status := statusFor(err)
		if status == http.StatusOK {
			status = http.StatusInternalServerError
		}
		c.JSON(status, dto.ErrorResponse{Error: "stats_failed", Message: err.Error(), Code: status})
		return
	}
	c.JSON(http.StatusOK, stats)
}
