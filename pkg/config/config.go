package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database is the graph database
	Database DatabaseConfig `mapstructure:"database"`

	// Relational is the optional SQL staging store
	Relational RelationalConfig `mapstructure:"relational"`

	// LLM configuration
	LLM LLMConfig `mapstructure:"llm"`

	// Embedding configuration
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	Cache     CacheConfig     `mapstructure:"cache"`
	Linker    LinkerConfig    `mapstructure:"linker"`
	Query     QueryConfig     `mapstructure:"query"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	// Dir receives one rotating file per component; empty disables files.
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig holds graph database configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // neo4j, memory
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// RelationalConfig holds the SQL staging store configuration
type RelationalConfig struct {
	Backend  string `mapstructure:"backend"` // postgres, duckdb
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
	// Path is the DuckDB file; empty means in-memory.
	Path  string `mapstructure:"path"`
	Table string `mapstructure:"table"`
}

// DSN returns the connection string for the configured backend.
func (r RelationalConfig) DSN() string {
	if r.Backend == "duckdb" {
		return r.Path
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(r.User, r.Password),
		Host:   fmt.Sprintf("%s:%d", r.Host, r.Port),
		Path:   "/" + r.Name,
	}
	if r.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(r.SSLMode)
	}
	return u.String()
}

// LLMConfig holds chat model configuration
type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	CypherModel    string        `mapstructure:"cypher_model"`
	DiagnosisModel string        `mapstructure:"diagnosis_model"`
	Temperature    float32       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	BreakerTrips   uint32        `mapstructure:"breaker_trips"`
	BreakerReset   time.Duration `mapstructure:"breaker_reset"`
}

// EmbeddingConfig holds embedding configuration
type EmbeddingConfig struct {
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// CacheConfig holds the embedding cache configuration
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Dir     string        `mapstructure:"dir"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// LinkerConfig holds similarity linking parameters
type LinkerConfig struct {
	Threshold   float64 `mapstructure:"threshold"`
	TopK        int     `mapstructure:"top_k"`
	Symmetric   bool    `mapstructure:"symmetric"`
	Concurrency int     `mapstructure:"concurrency"`
}

// QueryConfig holds question answering parameters
type QueryConfig struct {
	Strategy   string `mapstructure:"strategy"`
	CypherTopK int    `mapstructure:"cypher_top_k"`
	VectorTopK int    `mapstructure:"vector_top_k"`
}

// IngestConfig holds pipeline inputs
type IngestConfig struct {
	CSVPath             string `mapstructure:"csv_path"`
	RenamedCSVPath      string `mapstructure:"renamed_csv_path"`
	RelationalRoundtrip bool   `mapstructure:"relational_roundtrip"`
	ExportPath          string `mapstructure:"export_path"`
	Wipe                bool   `mapstructure:"wipe"`
}

// TelemetryConfig holds the DuckDB telemetry store configuration
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Set defaults
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables if present
	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.dir", "logs")
	viper.SetDefault("log.max_size_mb", 5)
	viper.SetDefault("log.max_backups", 3)

	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")

	// Database defaults
	viper.SetDefault("database.driver", "neo4j")
	viper.SetDefault("database.uri", "bolt://localhost:7687")
	viper.SetDefault("database.username", "neo4j")
	viper.SetDefault("database.database", "neo4j")

	// Relational defaults
	viper.SetDefault("relational.backend", "postgres")
	viper.SetDefault("relational.host", "localhost")
	viper.SetDefault("relational.port", 5432)
	viper.SetDefault("relational.ssl_mode", "disable")
	viper.SetDefault("relational.path", "data/staging.duckdb")
	viper.SetDefault("relational.table", "service_records")

	// LLM defaults
	viper.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("llm.cypher_model", "gemma2-9b-it")
	viper.SetDefault("llm.diagnosis_model", "llama3-70b-8192")
	viper.SetDefault("llm.temperature", 0.0)
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("llm.breaker_trips", 3)
	viper.SetDefault("llm.breaker_reset", "30s")

	// Embedding defaults
	viper.SetDefault("embedding.model", "all-MiniLM-L6-v2")
	viper.SetDefault("embedding.base_url", "http://localhost:7997/v1")
	viper.SetDefault("embedding.dimensions", 384)
	viper.SetDefault("embedding.batch_size", 64)

	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.dir", ".cache/embeddings")
	viper.SetDefault("cache.ttl", "0s")

	viper.SetDefault("linker.threshold", 0.6)
	viper.SetDefault("linker.top_k", 5)
	viper.SetDefault("linker.symmetric", false)
	viper.SetDefault("linker.concurrency", 4)

	viper.SetDefault("query.strategy", "vector")
	viper.SetDefault("query.cypher_top_k", 10)
	viper.SetDefault("query.vector_top_k", 3)

	viper.SetDefault("ingest.csv_path", "data/service_records.csv")
	viper.SetDefault("ingest.renamed_csv_path", "data/service_records_after_renaming.csv")
	viper.SetDefault("ingest.relational_roundtrip", false)
	viper.SetDefault("ingest.export_path", "data/service_records_export.csv")
	viper.SetDefault("ingest.wipe", true)

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.path", "data/telemetry.duckdb")
}

// overrideWithEnv overrides config with the environment variables the
// deployment's .env file uses.
func overrideWithEnv(config *Config) error {
	// Graph database credentials
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Database.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Database.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Database.Password = pass
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		config.Database.Database = db
	}

	// Chat API key; the lower-case name is what existing .env files use
	for _, name := range []string{"groq_api_key", "GROQ_API_KEY"} {
		if key := os.Getenv(name); key != "" {
			config.LLM.APIKey = key
			break
		}
	}

	if base := os.Getenv("EMBEDDING_BASE_URL"); base != "" {
		config.Embedding.BaseURL = base
	}
	if key := os.Getenv("EMBEDDING_API_KEY"); key != "" {
		config.Embedding.APIKey = key
	}

	// Relational credentials
	if host := os.Getenv("DB_HOST"); host != "" {
		config.Relational.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid DB_PORT %q: %w", port, err)
		}
		config.Relational.Port = p
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		config.Relational.Name = name
	}
	if user := os.Getenv("DB_USER"); user != "" {
		config.Relational.User = user
	}
	if pass := os.Getenv("DB_PASSWORD"); pass != "" {
		config.Relational.Password = pass
	}

	if dir := os.Getenv("LOG_DIR"); dir != "" {
		config.Log.Dir = dir
	}

	// Server settings
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT %q: %w", port, err)
		}
		config.Server.Port = p
	}
	return nil
}

// Validate reports settings that will fail on first use. The problems are
// warnings: commands that do not need the missing piece still run.
func (c *Config) Validate() []string {
	var warnings []string
	if c.Database.Driver == "neo4j" {
		if c.Database.URI == "" {
			warnings = append(warnings, "NEO4J_URI is not set")
		}
		if c.Database.Password == "" {
			warnings = append(warnings, "NEO4J_PASSWORD is not set")
		}
	}
	if c.LLM.APIKey == "" {
		warnings = append(warnings, "groq_api_key is not set; questions cannot be answered")
	}
	if c.Ingest.RelationalRoundtrip && c.Relational.Backend == "postgres" {
		required := []struct{ name, value string }{
			{"DB_NAME", c.Relational.Name},
			{"DB_USER", c.Relational.User},
			{"DB_PASSWORD", c.Relational.Password},
		}
		for _, r := range required {
			if r.value == "" {
				warnings = append(warnings, r.name+" is not set")
			}
		}
	}
	if c.Linker.Threshold < -1 || c.Linker.Threshold > 1 {
		warnings = append(warnings, fmt.Sprintf("linker.threshold %.2f is outside [-1, 1]", c.Linker.Threshold))
	}
	return warnings
}
