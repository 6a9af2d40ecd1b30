// Package servicegraph builds a knowledge graph from manufacturing service
// history and answers questions over it, either by generating Cypher or by
// retrieving similar problems and asking a model for a diagnosis.
package servicegraph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/soundprediction/go-servicegraph/pkg/cache"
	"github.com/soundprediction/go-servicegraph/pkg/config"
	"github.com/soundprediction/go-servicegraph/pkg/driver"
	"github.com/soundprediction/go-servicegraph/pkg/embedder"
	"github.com/soundprediction/go-servicegraph/pkg/ingest"
	"github.com/soundprediction/go-servicegraph/pkg/linker"
	"github.com/soundprediction/go-servicegraph/pkg/llm"
	"github.com/soundprediction/go-servicegraph/pkg/loader"
	"github.com/soundprediction/go-servicegraph/pkg/qa"
	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// Client is the main entry point: it owns the graph driver, the model
// clients and the pipelines built on them.
type Client struct {
	driver   driver.GraphDriver
	embedder embedder.Client
	llms     []llm.Client
	cache    cache.Cache
	tracker  *llm.TokenTracker
	pipeline *ingest.Pipeline
	qa       *qa.Service
	config   *Config
	logger   *slog.Logger
}

// Config holds the tuning parameters of a Client.
type Config struct {
	Linker     linker.Config
	CypherTopK int
	VectorTopK int
}

// NewDefaultConfig returns the standard parameters.
func NewDefaultConfig() *Config {
	return &Config{
		Linker:     linker.DefaultConfig(),
		CypherTopK: qa.DefaultCypherTopK,
		VectorTopK: qa.DefaultVectorTopK,
	}
}

// NewClient assembles a Client from ready components. A nil embedder
// disables similarity linking and the vector strategy; a nil model client
// disables the strategy that needs it.
func NewClient(d driver.GraphDriver, e embedder.Client, cypherLLM, diagnosisLLM llm.Client, config *Config, logger *slog.Logger) *Client {
	if config == nil {
		config = NewDefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	var l *linker.Linker
	if e != nil {
		l = linker.New(d, e, config.Linker, logger.With("component", "linker"))
	}

	var cypherAsker, vectorAsker qa.Asker
	if cypherLLM != nil {
		cypherAsker = qa.NewCypherQA(d, cypherLLM, config.CypherTopK, logger.With("component", "cypher_qa"))
	}
	if diagnosisLLM != nil && e != nil {
		vectorAsker = qa.NewVectorQA(d, e, diagnosisLLM, config.VectorTopK, logger.With("component", "vector_qa"))
	}

	c := &Client{
		driver:   d,
		embedder: e,
		pipeline: ingest.NewPipeline(ingest.NewWriter(d, logger.With("component", "writer")), l, logger),
		qa:       qa.NewService(cypherAsker, vectorAsker),
		config:   config,
		logger:   logger,
	}
	for _, m := range []llm.Client{cypherLLM, diagnosisLLM} {
		if m != nil {
			c.llms = append(c.llms, m)
		}
	}
	return c
}

// Options supplies components Open would otherwise build from configuration.
type Options struct {
	// Driver replaces the configured graph driver.
	Driver driver.GraphDriver
	// Telemetry is the DuckDB store token usage is recorded in. The caller
	// owns it; nil disables token tracking.
	Telemetry *sql.DB
	Logger    *slog.Logger
}

// Open builds a Client from configuration: the graph driver, the embedding
// client behind its cache and breaker, and one breaker-guarded chat client
// per strategy.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var tracker *llm.TokenTracker
	if opts.Telemetry != nil {
		t, err := llm.NewTokenTracker(opts.Telemetry)
		if err != nil {
			return nil, err
		}
		tracker = t
	}

	cypherLLM, err := newChatClient(cfg.LLM, cfg.LLM.CypherModel, tracker, logger)
	if err != nil {
		return nil, err
	}
	diagnosisLLM, err := newChatClient(cfg.LLM, cfg.LLM.DiagnosisModel, tracker, logger)
	if err != nil {
		return nil, err
	}

	d := opts.Driver
	if d == nil {
		if d, err = NewDriver(cfg.Database); err != nil {
			return nil, err
		}
	}

	e, embedCache, err := newEmbedder(cfg, logger)
	if err != nil {
		if opts.Driver == nil {
			d.Close(ctx)
		}
		return nil, err
	}

	config := &Config{
		Linker: linker.Config{
			Threshold:   cfg.Linker.Threshold,
			TopK:        cfg.Linker.TopK,
			Dimensions:  cfg.Embedding.Dimensions,
			Symmetric:   cfg.Linker.Symmetric,
			Concurrency: cfg.Linker.Concurrency,
		},
		CypherTopK: cfg.Query.CypherTopK,
		VectorTopK: cfg.Query.VectorTopK,
	}

	c := NewClient(d, e, cypherLLM, diagnosisLLM, config, logger)
	c.cache = embedCache
	c.tracker = tracker
	return c, nil
}

// NewDriver connects the configured graph database. Neo4j drivers are not
// dialled until first use.
func NewDriver(cfg config.DatabaseConfig) (driver.GraphDriver, error) {
	switch cfg.Driver {
	case "memory":
		return driver.NewMemoryDriver(), nil
	case "neo4j", "":
		d, err := driver.NewNeo4jDriver(cfg.URI, cfg.Username, cfg.Password, cfg.Database)
		if err != nil {
			return nil, types.NewError(types.KindConfig, "open graph", err)
		}
		return d, nil
	}
	return nil, types.NewError(types.KindConfig, "open graph", fmt.Errorf("unknown database driver %q", cfg.Driver))
}

func newEmbedder(cfg *config.Config, logger *slog.Logger) (embedder.Client, cache.Cache, error) {
	base, err := embedder.NewOpenAIEmbedder(cfg.Embedding.APIKey, embedder.Config{
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
	})
	if err != nil {
		return nil, nil, types.NewError(types.KindConfig, "embedder", err)
	}

	var e embedder.Client = base
	var c cache.Cache
	if cfg.Cache.Enabled {
		if c, err = cache.NewBadgerCache(cfg.Cache.Dir); err != nil {
			return nil, nil, types.NewError(types.KindIO, "embedding cache", err)
		}
		e = embedder.NewCachedEmbedder(e, c, base.Model(), cfg.Cache.TTL, logger.With("component", "embed_cache"))
	}
	return embedder.NewBreakerEmbedder(e, cfg.LLM.BreakerTrips, cfg.LLM.BreakerReset), c, nil
}

// newChatClient returns nil without an API key; the strategy using the
// model is then disabled rather than failing at startup.
func newChatClient(cfg config.LLMConfig, model string, tracker *llm.TokenTracker, logger *slog.Logger) (llm.Client, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	llmConfig := llm.NewConfig(model).WithTemperature(cfg.Temperature)
	if cfg.BaseURL != "" {
		llmConfig = llmConfig.WithBaseURL(cfg.BaseURL)
	}
	if cfg.MaxTokens > 0 {
		llmConfig = llmConfig.WithMaxTokens(cfg.MaxTokens)
	}
	base, err := llm.NewOpenAIClient(cfg.APIKey, llmConfig)
	if err != nil {
		return nil, err
	}

	var client llm.Client = llm.NewBreakerClient(base, cfg.BreakerTrips, cfg.BreakerReset)
	if tracker != nil {
		client = llm.NewTokenTrackingClient(client, tracker, base.Model(), logger.With("component", "token_tracker"))
	}
	return client, nil
}

// Driver returns the graph driver.
func (c *Client) Driver() driver.GraphDriver { return c.driver }

// Pipeline returns the ingest pipeline.
func (c *Client) Pipeline() *ingest.Pipeline { return c.pipeline }

// QA returns the question answering service.
func (c *Client) QA() *qa.Service { return c.qa }

// Ingest writes records and links their text values.
func (c *Client) Ingest(ctx context.Context, records []types.ServiceRecord, opts ingest.Options) (*ingest.PipelineReport, error) {
	return c.pipeline.Run(ctx, records, opts)
}

// IngestFile loads a CSV export and ingests its records.
func (c *Client) IngestFile(ctx context.Context, path string, opts ingest.Options) (*ingest.PipelineReport, error) {
	table, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "loaded csv", "path", path, "rows", len(table.Records))
	return c.Ingest(ctx, table.Records, opts)
}

// Ask answers question with strategy.
func (c *Client) Ask(ctx context.Context, strategy qa.Strategy, question string) *qa.Answer {
	return c.qa.Ask(ctx, strategy, question)
}

// Stats returns node and relationship counts.
func (c *Client) Stats(ctx context.Context) (*types.GraphStats, error) {
	return c.driver.Stats(ctx)
}

// TokenUsage returns per-model token totals, or nil when tracking is off.
func (c *Client) TokenUsage(ctx context.Context) ([]llm.ModelUsage, error) {
	if c.tracker == nil {
		return nil, nil
	}
	return c.tracker.Totals(ctx)
}

// Close releases the driver, the model clients and the embedding cache.
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	for _, m := range c.llms {
		errs = append(errs, m.Close())
	}
	if c.embedder != nil {
		errs = append(errs, c.embedder.Close())
	}
	if c.cache != nil {
		errs = append(errs, c.cache.Close())
	}
	errs = append(errs, c.driver.Close(ctx))
	return errors.Join(errs...)
}
