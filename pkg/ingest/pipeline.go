package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/soundprediction/go-servicegraph/pkg/linker"
	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// Options controls one pipeline run.
type Options struct {
	// Wipe clears the graph before writing.
	Wipe bool
	// SkipLinking stops after the records are written.
	SkipLinking bool
	// Targets overrides linker.DefaultTargets.
	Targets []linker.Target
}

// PipelineReport is the outcome of a write followed by similarity linking.
type PipelineReport struct {
	RunID string `json:"run_id"`
	// WipeErr is set when clearing the graph failed; the records were
	// still written on top of the existing data.
	WipeErr  error            `json:"-"`
	Write    *Report          `json:"write"`
	Links    []*linker.Report `json:"links,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// Edges returns the number of SIMILAR_TO edges written across all labels.
func (r *PipelineReport) Edges() int {
	n := 0
	for _, l := range r.Links {
		n += l.Edges
	}
	return n
}

// Pipeline writes records and then links their text values.
type Pipeline struct {
	writer *Writer
	linker *linker.Linker
	logger *slog.Logger
}

// NewPipeline creates a Pipeline. A nil linker disables linking, which is
// what a load without an embedding service gets.
func NewPipeline(w *Writer, l *linker.Linker, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{writer: w, linker: l, logger: logger}
}

// Run loads records into the graph. Row and item failures and a failed
// wipe are reported, not returned; the error is non-nil only when a whole
// stage could not run.
func (p *Pipeline) Run(ctx context.Context, records []types.ServiceRecord, opts Options) (*PipelineReport, error) {
	start := time.Now()
	runID := types.ContextString(ctx, types.ContextKeyRunID)
	if runID == "" {
		runID = uuid.New().String()
		ctx = context.WithValue(ctx, types.ContextKeyRunID, runID)
	}
	report := &PipelineReport{RunID: runID}
	log := p.logger.With("run_id", runID)

	if opts.Wipe {
		if err := p.writer.Wipe(ctx); err != nil {
			report.WipeErr = err
			log.WarnContext(ctx, "failed to wipe graph, writing on top of existing data", "error", err)
		}
	}

	written, err := p.writer.Write(ctx, records)
	report.Write = written
	if err != nil {
		report.Duration = time.Since(start)
		return report, err
	}

	if p.linker == nil || opts.SkipLinking {
		log.InfoContext(ctx, "similarity linking skipped")
		report.Duration = time.Since(start)
		return report, nil
	}

	links, err := p.linker.LinkAll(ctx, records, opts.Targets)
	report.Links = links
	report.Duration = time.Since(start)
	if err != nil {
		return report, err
	}
	log.InfoContext(ctx, "ingest finished",
		"written", written.Written, "failed", written.Failed(), "edges", report.Edges(), "duration", report.Duration)
	return report, nil
}
