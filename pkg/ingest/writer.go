// Package ingest writes service records into the graph, one transaction per
// record, skipping rows that fail.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/soundprediction/go-servicegraph/pkg/driver"
	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// RowFailure records a row that could not be written.
type RowFailure struct {
	// Row is the 1-based data row number, excluding the header.
	Row              int    `json:"row"`
	ServiceRequestID string `json:"service_request_id"`
	Err              error  `json:"-"`
}

// Error implements error so failures can be logged and joined directly.
func (f RowFailure) Error() string {
	return fmt.Sprintf("row %d (%s): %v", f.Row, f.ServiceRequestID, f.Err)
}

// Unwrap returns the underlying write error.
func (f RowFailure) Unwrap() error { return f.Err }

// Report is the outcome of one load.
type Report struct {
	RunID    string        `json:"run_id"`
	Rows     int           `json:"rows"`
	Written  int           `json:"written"`
	Failures []RowFailure  `json:"failures,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed returns the number of skipped rows.
func (r *Report) Failed() int { return len(r.Failures) }

// Writer loads records into a graph.
type Writer struct {
	driver driver.GraphDriver
	logger *slog.Logger
}

// NewWriter creates a Writer for d.
func NewWriter(d driver.GraphDriver, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{driver: d, logger: logger}
}

// Wipe removes every node and relationship from the graph.
func (w *Writer) Wipe(ctx context.Context) error {
	if err := w.driver.Wipe(ctx); err != nil {
		return types.NewError(types.KindWrite, "wipe", err)
	}
	w.logger.InfoContext(ctx, "graph wiped")
	return nil
}

// Write upserts records in order, each in its own transaction. A failed row
// is logged and recorded in the report and the load continues. The returned
// error is non-nil only when the load could not start or ctx was cancelled.
func (w *Writer) Write(ctx context.Context, records []types.ServiceRecord) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: types.ContextString(ctx, types.ContextKeyRunID), Rows: len(records)}
	if report.RunID == "" {
		report.RunID = uuid.New().String()
		ctx = context.WithValue(ctx, types.ContextKeyRunID, report.RunID)
	}
	log := w.logger.With("run_id", report.RunID)

	sink, err := w.driver.OpenRecordSink(ctx)
	if err != nil {
		return report, types.NewError(types.KindServiceUnavailable, "write", err)
	}
	defer func() {
		if err := sink.Close(ctx); err != nil {
			log.WarnContext(ctx, "failed to close record sink", "error", err)
		}
	}()

	log.InfoContext(ctx, "writing records", "rows", len(records))
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
		if err := sink.Upsert(ctx, rec); err != nil {
			failure := RowFailure{Row: i + 1, ServiceRequestID: rec.SRRefNo, Err: types.NewError(types.KindWrite, "upsert", err)}
			report.Failures = append(report.Failures, failure)
			log.ErrorContext(ctx, "failed to write row",
				"row", failure.Row, "sr_ref_no", failure.ServiceRequestID, "error", failure.Err)
			continue
		}
		report.Written++
	}

	report.Duration = time.Since(start)
	log.InfoContext(ctx, "records written",
		"written", report.Written, "failed", report.Failed(), "duration", report.Duration)
	return report, nil
}
