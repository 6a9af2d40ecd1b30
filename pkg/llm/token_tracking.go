package llm

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// TokenTracker persists per-call token usage to the token_usage table.
type TokenTracker struct {
	db *sql.DB
}

// NewTokenTracker creates the token_usage table if needed.
func NewTokenTracker(db *sql.DB) (*TokenTracker, error) {
	query := `
	CREATE TABLE IF NOT EXISTS token_usage (
		id VARCHAR,
		timestamp TIMESTAMP,
		run_id VARCHAR,
		request_id VARCHAR,
		strategy VARCHAR,
		source VARCHAR,
		model VARCHAR,
		prompt_tokens INTEGER,
		completion_tokens INTEGER,
		total_tokens INTEGER
	);
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("failed to create token_usage table: %w", err)
	}
	return &TokenTracker{db: db}, nil
}

// AddUsage records one completion's usage, tagged with the run, request and
// strategy carried by ctx.
func (t *TokenTracker) AddUsage(ctx context.Context, usage *TokenUsage, model string) error {
	if usage == nil {
		return nil
	}

	_, err := t.db.ExecContext(ctx, `
	INSERT INTO token_usage (
		id, timestamp, run_id, request_id, strategy, source,
		model, prompt_tokens, completion_tokens, total_tokens
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`,
		uuid.New().String(), time.Now().UTC(),
		types.ContextString(ctx, types.ContextKeyRunID),
		types.ContextString(ctx, types.ContextKeyRequestID),
		types.ContextString(ctx, types.ContextKeyStrategy),
		types.ContextString(ctx, types.ContextKeySource),
		model, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens,
	)
	if err != nil {
		return fmt.Errorf("failed to record token usage: %w", err)
	}
	return nil
}

// ModelUsage is the accumulated usage of one model.
type ModelUsage struct {
	Model string `json:"model"`
	Calls int    `json:"calls"`
	TokenUsage
}

// Totals sums usage per model, ordered by model name.
func (t *TokenTracker) Totals(ctx context.Context) ([]ModelUsage, error) {
	rows, err := t.db.QueryContext(ctx, `
	SELECT model, COUNT(*),
		CAST(SUM(prompt_tokens) AS BIGINT),
		CAST(SUM(completion_tokens) AS BIGINT),
		CAST(SUM(total_tokens) AS BIGINT)
	FROM token_usage GROUP BY model ORDER BY model
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query token usage: %w", err)
	}
	defer rows.Close()

	var out []ModelUsage
	for rows.Next() {
		var u ModelUsage
		if err := rows.Scan(&u.Model, &u.Calls, &u.PromptTokens, &u.CompletionTokens, &u.TotalTokens); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// TokenTrackingClient wraps a Client to track usage
type TokenTrackingClient struct {
	client  Client
	tracker *TokenTracker
	model   string
	logger  *slog.Logger
}

// NewTokenTrackingClient creates a wrapper client. model labels structured
// calls, whose raw JSON carries no usage block.
func NewTokenTrackingClient(client Client, tracker *TokenTracker, model string, logger *slog.Logger) *TokenTrackingClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenTrackingClient{
		client:  client,
		tracker: tracker,
		model:   model,
		logger:  logger,
	}
}

// Chat implements Client
func (c *TokenTrackingClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	resp, err := c.client.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	if err := c.tracker.AddUsage(ctx, resp.TokensUsed, model); err != nil {
		c.logger.Warn("failed to save token usage", "model", model, "error", err)
	}
	return resp, nil
}

// ChatWithStructuredOutput implements Client. Only the call count is known,
// so a zero usage row is recorded.
func (c *TokenTrackingClient) ChatWithStructuredOutput(ctx context.Context, messages []Message, schema any) (json.RawMessage, error) {
	raw, err := c.client.ChatWithStructuredOutput(ctx, messages, schema)
	if err != nil {
		return nil, err
	}
	if err := c.tracker.AddUsage(ctx, &TokenUsage{}, c.model); err != nil {
		c.logger.Warn("failed to save token usage", "model", c.model, "error", err)
	}
	return raw, nil
}

// Close implements Client
func (c *TokenTrackingClient) Close() error {
	return c.client.Close()
}
