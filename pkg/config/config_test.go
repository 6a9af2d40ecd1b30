package config_test

import (
	"testing"
	"time"

	"github.com/soundprediction/go-servicegraph/pkg/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"NEO4J_URI", "NEO4J_USER", "NEO4J_PASSWORD", "NEO4J_DATABASE",
		"groq_api_key", "GROQ_API_KEY", "EMBEDDING_BASE_URL", "EMBEDDING_API_KEY",
		"DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD",
		"LOG_DIR", "SERVER_HOST", "SERVER_PORT",
	} {
		t.Setenv(name, "")
	}
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "bolt://localhost:7687", cfg.Database.URI)
	assert.Equal(t, "gemma2-9b-it", cfg.LLM.CypherModel)
	assert.Equal(t, "llama3-70b-8192", cfg.LLM.DiagnosisModel)
	assert.Equal(t, 30*time.Second, cfg.LLM.BreakerReset)
	assert.EqualValues(t, 3, cfg.LLM.BreakerTrips)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, 0.6, cfg.Linker.Threshold)
	assert.Equal(t, 5, cfg.Linker.TopK)
	assert.Equal(t, 3, cfg.Query.VectorTopK)
	assert.Equal(t, 10, cfg.Query.CypherTopK)
	assert.Equal(t, "data/service_records_after_renaming.csv", cfg.Ingest.RenamedCSVPath)
	assert.Equal(t, 5, cfg.Log.MaxSizeMB)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEO4J_URI", "neo4j://graph:7687")
	t.Setenv("NEO4J_PASSWORD", "secret")
	t.Setenv("groq_api_key", "gsk_test")
	t.Setenv("DB_HOST", "pg")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "service")
	t.Setenv("DB_USER", "etl")
	t.Setenv("DB_PASSWORD", "p@ss word")
	t.Setenv("LOG_DIR", "/var/log/sg")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "neo4j://graph:7687", cfg.Database.URI)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, "gsk_test", cfg.LLM.APIKey)
	assert.Equal(t, "/var/log/sg", cfg.Log.Dir)
	assert.Equal(t, "postgres://etl:p%40ss%20word@pg:6543/service?sslmode=disable", cfg.Relational.DSN())
	assert.Empty(t, cfg.Validate())
}

func TestLoadBadPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_PORT", "five")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestViperOverride(t *testing.T) {
	clearEnv(t)
	viper.Set("linker.symmetric", true)
	viper.Set("database.driver", "memory")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.Linker.Symmetric)
	assert.Equal(t, "memory", cfg.Database.Driver)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load()
	require.NoError(t, err)

	cfg.Ingest.RelationalRoundtrip = true
	warnings := cfg.Validate()
	assert.Contains(t, warnings, "NEO4J_PASSWORD is not set")
	assert.Contains(t, warnings, "DB_USER is not set")
	assert.Len(t, warnings, 5)

	cfg.Relational.Backend = "duckdb"
	assert.Equal(t, "data/staging.duckdb", cfg.Relational.DSN())
}
