package dto

import (
	"github.com/soundprediction/go-servicegraph/pkg/ingest"
	"github.com/soundprediction/go-servicegraph/pkg/linker"
)

// RowError describes a row the graph writer skipped
type RowError struct {
	Row              int    `json:"row"`
	ServiceRequestID string `json:"service_request_id"`
	Error            string `json:"error"`
}

// IngestResponse represents a response from ingest operations
type IngestResponse struct {
	Success   bool             `json:"success"`
	RunID     string           `json:"run_id"`
	WipeError string           `json:"wipe_error,omitempty"`
	Rows      int              `json:"rows"`
	Written   int              `json:"written"`
	Failed    int              `json:"failed"`
	Errors    []RowError       `json:"errors,omitempty"`
	Links     []*linker.Report `json:"links,omitempty"`
	Edges     int              `json:"edges"`
	Duration  string           `json:"duration"`
	Message   string           `json:"message,omitempty"`
}

// NewIngestResponse flattens a pipeline report.
func NewIngestResponse(r *ingest.PipelineReport) IngestResponse {
	resp := IngestResponse{
		RunID:    r.RunID,
		Links:    r.Links,
		Edges:    r.Edges(),
		Duration: r.Duration.String(),
	}
	if r.WipeErr != nil {
		resp.WipeError = r.WipeErr.Error()
	}
	if r.Write != nil {
		resp.Rows = r.Write.Rows
		resp.Written = r.Write.Written
		resp.Failed = r.Write.Failed()
		for _, f := range r.Write.Failures {
			resp.Errors = append(resp.Errors, RowError{Row: f.Row, ServiceRequestID: f.ServiceRequestID, Error: f.Err.Error()})
		}
	}
	resp.Success = resp.Written > 0 || resp.Rows == 0
	return resp
}
