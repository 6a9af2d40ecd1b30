// Package server exposes the question-answering service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/go-servicegraph/pkg/config"
	"github.com/soundprediction/go-servicegraph/pkg/qa"
	"github.com/soundprediction/go-servicegraph/pkg/server/handlers"
)

// Dependencies are the services the HTTP handlers call into. Ingester may be
// nil, which leaves POST /ingest unregistered.
type Dependencies struct {
	Asker           handlers.Asker
	Graph           Graph
	Ingester        handlers.Ingester
	DefaultStrategy qa.Strategy
}

// Graph is the part of the graph driver the probes and stats need.
type Graph interface {
	handlers.Pinger
	handlers.StatsSource
}

// Server represents the HTTP server
type Server struct {
	config     config.ServerConfig
	deps       Dependencies
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new server instance
func New(cfg config.ServerConfig, deps Dependencies, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	return &Server{config: cfg, deps: deps, logger: logger}
}

// Setup builds the router and registers the routes
func (s *Server) Setup() {
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog(s.logger))
	router.SetHTMLTemplate(handlers.NewIndexTemplate())

	health := handlers.NewHealthHandler(s.deps.Graph)
	router.GET("/health", health.HealthCheck)
	router.GET("/ready", health.ReadinessCheck)

	ask := handlers.NewAskHandler(s.deps.Asker, s.deps.DefaultStrategy, s.logger)
	router.GET("/", ask.Index)
	router.POST("/ask", ask.Ask)

	if s.deps.Graph != nil {
		router.GET("/stats", handlers.NewStatsHandler(s.deps.Graph).Stats)
	}
	if s.deps.Ingester != nil {
		router.POST("/ingest", handlers.NewIngestHandler(s.deps.Ingester, s.logger).IngestCSV)
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Handler returns the configured router. Setup must run first.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	if s.httpServer == nil {
		s.Setup()
	}
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
