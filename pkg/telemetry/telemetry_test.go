package telemetry_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/soundprediction/go-servicegraph/pkg/telemetry"
	"github.com/soundprediction/go-servicegraph/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuckDBHandler(t *testing.T) {
	db, err := telemetry.Open(filepath.Join(t.TempDir(), "nested", "telemetry.duckdb"))
	require.NoError(t, err)
	defer db.Close()

	handler, err := telemetry.NewDuckDBHandler(slog.NewTextHandler(io.Discard, nil), db)
	require.NoError(t, err)

	logger := slog.New(handler).With("component", "ingest")
	ctx := context.WithValue(context.Background(), types.ContextKeyRunID, "run-7")

	logger.InfoContext(ctx, "row written")
	logger.WarnContext(ctx, "row skipped")
	logger.ErrorContext(ctx, "write failed",
		"error", types.NewError(types.KindWrite, "upsert", errors.New("constraint")))
	handler.Flush()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM execution_errors").Scan(&count))
	assert.Equal(t, 1, count, "only ERROR records are stored")

	recs, err := telemetry.RecentErrors(context.Background(), db, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "ERROR", recs[0].Level)
	assert.Equal(t, "write failed", recs[0].Message)
	assert.Equal(t, "run-7", recs[0].RunID)
	assert.Equal(t, "write", recs[0].ErrorKind)

	var attrs string
	require.NoError(t, db.QueryRow("SELECT CAST(attributes AS VARCHAR) FROM execution_errors").Scan(&attrs))
	assert.Contains(t, attrs, `"component":"ingest"`)
}

func TestOpenInMemory(t *testing.T) {
	db, err := telemetry.Open("")
	require.NoError(t, err)
	defer db.Close()

	_, err = telemetry.NewDuckDBHandler(slog.DiscardHandler, db)
	require.NoError(t, err)

	recs, err := telemetry.RecentErrors(context.Background(), db, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
