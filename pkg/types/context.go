package types

import "context"

type ContextKey string

const (
	// ContextKeyRunID carries the ingest run identifier.
	ContextKeyRunID ContextKey = "run_id"
	// ContextKeyRequestID carries the HTTP or CLI request identifier.
	ContextKeyRequestID ContextKey = "request_id"
	// ContextKeyStrategy carries the query strategy answering a question.
	ContextKeyStrategy ContextKey = "strategy"
	// ContextKeySource names the entry point (cli, http, pipeline).
	ContextKeySource ContextKey = "source"
)

// ContextString returns the string stored under key, or "".
func ContextString(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
