package llm

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/soundprediction/go-servicegraph/pkg/telemetry"
	"github.com/soundprediction/go-servicegraph/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuckDBTokenTracker(t *testing.T) {
	db, err := telemetry.Open(filepath.Join(t.TempDir(), "token_usage.duckdb"))
	require.NoError(t, err)
	defer db.Close()

	tracker, err := NewTokenTracker(db)
	require.NoError(t, err)

	ctx := context.Background()
	ctx = context.WithValue(ctx, types.ContextKeyRunID, "run-42")
	ctx = context.WithValue(ctx, types.ContextKeyRequestID, "req-7")
	ctx = context.WithValue(ctx, types.ContextKeyStrategy, "cypher")
	ctx = context.WithValue(ctx, types.ContextKeySource, "cli")

	usage := &TokenUsage{
		PromptTokens:     10,
		CompletionTokens: 20,
		TotalTokens:      30,
	}
	model := "gemma2-9b-it"

	err = tracker.AddUsage(ctx, usage, model)
	require.NoError(t, err)

	var count int
	err = tracker.db.QueryRow("SELECT COUNT(*) FROM token_usage").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Verify Token Data
	var runID, requestID, source, modelDB string
	var total, prompt, completion int

	err = tracker.db.QueryRow("SELECT run_id, request_id, source, model, total_tokens, prompt_tokens, completion_tokens FROM token_usage").
		Scan(&runID, &requestID, &source, &modelDB, &total, &prompt, &completion)
	require.NoError(t, err)

	assert.Equal(t, "run-42", runID)
	assert.Equal(t, "req-7", requestID)
	assert.Equal(t, "cli", source)
	assert.Equal(t, "gemma2-9b-it", modelDB)
	assert.Equal(t, 30, total)

	// errors land in the same store
	handler, err := telemetry.NewDuckDBHandler(slog.NewTextHandler(io.Discard, nil), tracker.db)
	require.NoError(t, err)

	logger := slog.New(handler)
	logger.ErrorContext(ctx, "test error message", "error", types.NewError(types.KindServiceUnavailable, "chat", context.DeadlineExceeded))
	handler.Flush()

	recent, err := telemetry.RecentErrors(ctx, tracker.db, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "run-42", recent[0].RunID)
	assert.Equal(t, "test error message", recent[0].Message)
	assert.Equal(t, "ERROR", recent[0].Level)
	assert.Equal(t, string(types.KindServiceUnavailable), recent[0].ErrorKind)
}
