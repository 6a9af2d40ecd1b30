// Package servicegraph implements the servicegraph command line.
package servicegraph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/soundprediction/go-servicegraph/pkg/config"
	"github.com/soundprediction/go-servicegraph/pkg/logger"
	"github.com/soundprediction/go-servicegraph/pkg/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	envFile     string
	logLevel    string
	logDir      string
	noTelemetry bool

	// set by PersistentPreRunE for every command
	cfg         *config.Config
	appLogger   *slog.Logger
	telemetryDB *sql.DB
	errorSink   *telemetry.DuckDBHandler
	logCloser   io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "servicegraph",
	Short: "Service history knowledge graph and question answering",
	Long: `servicegraph loads manufacturing service records into a Neo4j knowledge
graph, links similar problems, causes and corrective actions by embedding
similarity, and answers questions either by generating Cypher or by retrieving
similar past problems and asking a model for a diagnosis.

Settings come from a config file, a .env file, environment variables
(NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD, groq_api_key, DB_*) and flags.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the command line until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer teardown()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./servicegraph.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for rotating log files; empty keeps the configured one")
	rootCmd.PersistentFlags().BoolVar(&noTelemetry, "no-telemetry", false, "do not record errors and token usage in DuckDB")
}

func setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("servicegraph")
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	var err error
	if cfg, err = config.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if cmd.Flags().Changed("log-dir") {
		cfg.Log.Dir = logDir
	}
	if noTelemetry {
		cfg.Telemetry.Enabled = false
	}

	opts := logger.Options{
		Level:      logger.ParseLevel(cfg.Log.Level),
		Console:    cmd.ErrOrStderr(),
		Dir:        cfg.Log.Dir,
		Component:  cmd.Name(),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}
	if cfg.Telemetry.Enabled {
		db, err := telemetry.Open(cfg.Telemetry.Path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "telemetry disabled: %v\n", err)
		} else {
			telemetryDB = db
			opts.Wrap = func(next slog.Handler) slog.Handler {
				h, err := telemetry.NewDuckDBHandler(next, db)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error sink disabled: %v\n", err)
					return next
				}
				errorSink = h
				return h
			}
		}
	}
	appLogger, logCloser = logger.New(opts)
	slog.SetDefault(appLogger)

	for _, w := range cfg.Validate() {
		appLogger.Warn("configuration warning", "warning", w)
	}
	return nil
}

func teardown() {
	if errorSink != nil {
		errorSink.Flush()
		errorSink = nil
	}
	if telemetryDB != nil {
		telemetryDB.Close()
		telemetryDB = nil
	}
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}
