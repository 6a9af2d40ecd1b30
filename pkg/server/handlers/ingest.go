package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/go-servicegraph/pkg/ingest"
	"github.com/soundprediction/go-servicegraph/pkg/loader"
	"github.com/soundprediction/go-servicegraph/pkg/server/dto"
	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// Ingester loads records into the graph and links them.
type Ingester interface {
	Run(ctx context.Context, records []types.ServiceRecord, opts ingest.Options) (*ingest.PipelineReport, error)
}

// IngestHandler handles data ingestion requests
type IngestHandler struct {
	ingester Ingester
	logger   *slog.Logger
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(ingester Ingester, logger *slog.Logger) *IngestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestHandler{ingester: ingester, logger: logger}
}

// IngestCSV handles POST /ingest. The CSV arrives either as the multipart
// field "file" or as the raw request body. Query parameters wipe and
// skip_linking map to the pipeline options.
func (h *IngestHandler) IngestCSV(c *gin.Context) {
	var body io.Reader = c.Request.Body
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
			return
		}
		defer f.Close()
		body = f
	}

	table, err := loader.Read(body)
	if err != nil {
		c.JSON(statusFor(err), dto.ErrorResponse{
			Error:   string(types.KindOf(err)),
			Message: err.Error(),
		})
		return
	}

	opts := ingest.Options{
		Wipe:        queryBool(c, "wipe"),
		SkipLinking: queryBool(c, "skip_linking"),
	}
	report, err := h.ingester.Run(c.Request.Context(), table.Records, opts)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "ingest failed", "error", err, "error_kind", types.KindOf(err))
		resp := dto.IngestResponse{Message: err.Error()}
		if report != nil {
			resp = dto.NewIngestResponse(report)
			resp.Success, resp.Message = false, err.Error()
		}
		c.JSON(statusFor(err), resp)
		return
	}

	c.JSON(http.StatusOK, dto.NewIngestResponse(report))
}

func queryBool(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.Query(name))
	return err == nil && v
}
