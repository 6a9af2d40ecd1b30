// Package linker embeds the distinct text values of a node label, stores the
// vectors on the graph, rebuilds the label's vector index and connects each
// value to its nearest neighbours with SIMILAR_TO relationships.
package linker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/soundprediction/go-servicegraph/pkg/driver"
	"github.com/soundprediction/go-servicegraph/pkg/embedder"
	"github.com/soundprediction/go-servicegraph/pkg/types"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultThreshold   = 0.6
	DefaultTopK        = 5
	DefaultDimensions  = embedder.DefaultDimensions
	DefaultConcurrency = 4

	// ScorePrecision is the number of decimals stored on SIMILAR_TO.
	ScorePrecision = 3
)

// Config controls neighbour selection.
type Config struct {
	// Threshold is the minimum cosine similarity for an edge.
	Threshold float64
	// TopK caps outgoing SIMILAR_TO edges per value.
	TopK int
	// Dimensions is the vector index size; it must match the embedder.
	Dimensions int
	// Symmetric adds b->a for every selected a->b. The reverse edges are not
	// counted against TopK, so a node many others pick can end up with more
	// than TopK outgoing links.
	Symmetric bool
	// Concurrency bounds in-flight embedding requests.
	Concurrency int
}

// DefaultConfig returns the standard linking parameters.
func DefaultConfig() Config {
	return Config{
		Threshold:   DefaultThreshold,
		TopK:        DefaultTopK,
		Dimensions:  DefaultDimensions,
		Concurrency: DefaultConcurrency,
	}
}

// Target pairs a label with the column whose values it embeds.
type Target struct {
	Label  types.NodeLabel
	Column string
}

// DefaultTargets are the labels linked after every ingest.
var DefaultTargets = []Target{
	{Label: types.LabelProblem, Column: types.ColProblemReported},
	{Label: types.LabelCause, Column: types.ColCause},
	{Label: types.LabelCorrectiveAction, Column: types.ColCorrectiveAction},
}

// Report is the outcome of linking one label.
type Report struct {
	Label         types.NodeLabel `json:"label"`
	Distinct      int             `json:"distinct"`
	Embedded      int             `json:"embedded"`
	EmbedFailures int             `json:"embed_failures"`
	WriteFailures int             `json:"write_failures"`
	IndexErr      error           `json:"-"`
	Edges         int             `json:"edges"`
	EdgeFailures  int             `json:"edge_failures"`
	Duration      time.Duration   `json:"duration"`
}

// Linker computes and stores similarity links for one graph.
type Linker struct {
	driver   driver.GraphDriver
	embedder embedder.Client
	config   Config
	logger   *slog.Logger
}

// New creates a Linker. Zero config fields take their defaults.
func New(d driver.GraphDriver, e embedder.Client, config Config, logger *slog.Logger) *Linker {
	def := DefaultConfig()
	if config.Threshold <= 0 {
		config.Threshold = def.Threshold
	}
	if config.TopK <= 0 {
		config.TopK = def.TopK
	}
	if config.Dimensions <= 0 {
		config.Dimensions = e.Dimensions()
	}
	if config.Dimensions <= 0 {
		config.Dimensions = def.Dimensions
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{driver: d, embedder: e, config: config, logger: logger}
}

// Config returns the effective configuration.
func (l *Linker) Config() Config {
	return l.config
}

// Link embeds the distinct non-empty values, upserts their vectors on
// (label {text}), rebuilds the label's vector index and writes SIMILAR_TO
// edges. Per-item failures are logged and skipped; only a cancelled context
// stops the run early.
func (l *Linker) Link(ctx context.Context, label types.NodeLabel, values []string) (*Report, error) {
	start := time.Now()
	if !label.Valid() {
		return nil, types.NewError(types.KindConfig, "link", fmt.Errorf("unknown label %q", label))
	}

	distinct := DistinctValues(values)
	report := &Report{Label: label, Distinct: len(distinct)}
	log := l.logger.With("label", string(label))
	log.InfoContext(ctx, "linking values", "distinct", len(distinct))

	texts, vectors := l.embedAll(ctx, log, distinct, report)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	// keep only values whose vector reached the graph
	kept := make([]int, 0, len(texts))
	for i, text := range texts {
		if err := l.driver.UpsertEmbedding(ctx, label, text, vectors[i]); err != nil {
			report.WriteFailures++
			log.WarnContext(ctx, "failed to store embedding", "text", text, "error", err)
			continue
		}
		kept = append(kept, i)
	}
	texts, vectors = pick(texts, kept), pick(vectors, kept)
	report.Embedded = len(texts)

	if err := l.driver.RecreateVectorIndex(ctx, label, l.config.Dimensions); err != nil {
		report.IndexErr = err
		log.WarnContext(ctx, "failed to rebuild vector index", "index", label.IndexName(), "error", err)
	}

	edges := SelectNeighbors(label, texts, SimilarityMatrix(vectors), l.config)
	for _, edge := range edges {
		if err := l.driver.MergeSimilar(ctx, edge); err != nil {
			report.EdgeFailures++
			log.WarnContext(ctx, "failed to write similarity edge",
				"source", edge.Source, "target", edge.Target, "error", err)
			continue
		}
		report.Edges++
	}

	report.Duration = time.Since(start)
	log.InfoContext(ctx, "linked values",
		"embedded", report.Embedded,
		"edges", report.Edges,
		"embed_failures", report.EmbedFailures,
		"write_failures", report.WriteFailures,
		"edge_failures", report.EdgeFailures,
		"duration", report.Duration)
	return report, ctx.Err()
}

// embedAll embeds each value on its own so one failure only loses that
// value. Results keep the input order.
func (l *Linker) embedAll(ctx context.Context, log *slog.Logger, values []string, report *Report) ([]string, [][]float32) {
	vecs := make([][]float32, len(values))

	var mu sync.Mutex
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(l.config.Concurrency)
	for i, text := range values {
		eg.Go(func() error {
			vec, err := l.embedder.EmbedSingle(egctx, text)
			if err == nil && len(vec) != l.config.Dimensions {
				err = fmt.Errorf("embedding has dimension %d, expected %d", len(vec), l.config.Dimensions)
			}
			if err != nil {
				mu.Lock()
				report.EmbedFailures++
				mu.Unlock()
				log.WarnContext(ctx, "failed to embed value", "text", text, "error", err)
				return nil
			}
			vecs[i] = vec
			return nil
		})
	}
	_ = eg.Wait()

	texts := make([]string, 0, len(values))
	out := make([][]float32, 0, len(values))
	for i, v := range vecs {
		if v != nil {
			texts = append(texts, values[i])
			out = append(out, v)
		}
	}
	return texts, out
}

func pick[T any](in []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = in[j]
	}
	return out
}

// LinkAll links each target's column values in target order. A nil or empty
// targets slice means DefaultTargets.
func (l *Linker) LinkAll(ctx context.Context, records []types.ServiceRecord, targets []Target) ([]*Report, error) {
	if len(targets) == 0 {
		targets = DefaultTargets
	}
	reports := make([]*Report, 0, len(targets))
	for _, t := range targets {
		values := make([]string, len(records))
		for i, rec := range records {
			values[i], _ = rec.Field(t.Column)
		}
		r, err := l.Link(ctx, t.Label, values)
		if r != nil {
			reports = append(reports, r)
		}
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}
