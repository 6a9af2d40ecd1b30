package servicegraph

import (
	"context"
	"fmt"
	"time"

	"github.com/soundprediction/go-servicegraph/pkg/qa"
	"github.com/soundprediction/go-servicegraph/pkg/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the question answering HTTP server",
	Long: `Start the HTTP server. It provides:

- GET  /        a question form with a strategy selector
- POST /ask     answers as JSON or, for form posts, as a rendered page
- POST /ingest  loads a CSV upload into the graph
- GET  /stats   node and relationship counts
- GET  /health and /ready probes`,
	RunE: runServer,
}

var (
	serverHost string
	serverPort int
	serverMode string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server-specific flags
	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serveCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serveCmd.Flags().StringVar(&serverMode, "mode", "release", "Server mode (debug, release, test)")

	// Database flags
	serveCmd.Flags().String("db-driver", "neo4j", "Database driver (neo4j, memory)")
	serveCmd.Flags().String("db-uri", "bolt://localhost:7687", "Database URI")
	serveCmd.Flags().String("db-username", "neo4j", "Database username")
	serveCmd.Flags().String("db-password", "", "Database password")

	// LLM flags
	serveCmd.Flags().String("llm-api-key", "", "Groq API key")
	serveCmd.Flags().String("llm-base-url", "", "LLM base URL")
	serveCmd.Flags().String("strategy", "", "default strategy for requests that name none")

	// Embedding flags
	serveCmd.Flags().String("embedding-base-url", "", "Embedding base URL")
}

func runServer(cmd *cobra.Command, args []string) error {
	overrideConfigWithFlags(cmd)
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}
	strategy, err := qa.ParseStrategy(cfg.Query.Strategy)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client, err := openClient(ctx, cfg.Database.Driver == "memory")
	if err != nil {
		return err
	}
	defer client.Close(context.Background())

	for _, s := range qa.Strategies {
		if !client.QA().Enabled(s) {
			appLogger.Warn("strategy disabled", "strategy", s, "reason", "groq_api_key is not set")
		}
	}

	srv := server.New(cfg.Server, server.Dependencies{
		Asker:           client.QA(),
		Graph:           client.Driver(),
		Ingester:        client.Pipeline(),
		DefaultStrategy: strategy,
	}, appLogger.With("component", "http"))
	srv.Setup()

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- srv.Start()
	}()

	select {
	case err := <-serverErrChan:
		return err
	case <-ctx.Done():
		appLogger.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		appLogger.Info("server stopped gracefully")
		return nil
	}
}

func overrideConfigWithFlags(cmd *cobra.Command) {
	// Server flags
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}

	// Database flags
	if cmd.Flags().Changed("db-driver") {
		cfg.Database.Driver, _ = cmd.Flags().GetString("db-driver")
	}
	if cmd.Flags().Changed("db-uri") {
		cfg.Database.URI, _ = cmd.Flags().GetString("db-uri")
	}
	if cmd.Flags().Changed("db-username") {
		cfg.Database.Username, _ = cmd.Flags().GetString("db-username")
	}
	if cmd.Flags().Changed("db-password") {
		cfg.Database.Password, _ = cmd.Flags().GetString("db-password")
	}

	// LLM flags
	if cmd.Flags().Changed("llm-api-key") {
		cfg.LLM.APIKey, _ = cmd.Flags().GetString("llm-api-key")
	}
	if cmd.Flags().Changed("llm-base-url") {
		cfg.LLM.BaseURL, _ = cmd.Flags().GetString("llm-base-url")
	}
	if cmd.Flags().Changed("strategy") {
		cfg.Query.Strategy, _ = cmd.Flags().GetString("strategy")
	}

	// Embedding flags
	if cmd.Flags().Changed("embedding-base-url") {
		cfg.Embedding.BaseURL, _ = cmd.Flags().GetString("embedding-base-url")
	}
}
