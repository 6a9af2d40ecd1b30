package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// DuckDBHandler is a slog.Handler that forwards every record to next and
// additionally writes ERROR records to the execution_errors table.
type DuckDBHandler struct {
	next  slog.Handler
	db    *sql.DB
	attrs []slog.Attr
	wg    *sync.WaitGroup
}

// NewDuckDBHandler creates a new DuckDBHandler
func NewDuckDBHandler(next slog.Handler, db *sql.DB) (*DuckDBHandler, error) {
	h := &DuckDBHandler{
		next: next,
		db:   db,
		wg:   &sync.WaitGroup{},
	}

	if err := h.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return h, nil
}

func (h *DuckDBHandler) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS execution_errors (
		id VARCHAR,
		timestamp TIMESTAMP,
		level VARCHAR,
		message VARCHAR,
		run_id VARCHAR,
		request_id VARCHAR,
		source VARCHAR,
		error_kind VARCHAR,
		source_file VARCHAR,
		line_number INTEGER,
		attributes JSON
	);
	`
	_, err := h.db.Exec(query)
	return err
}

// Enabled implements slog.Handler
func (h *DuckDBHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler
func (h *DuckDBHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.next.Handle(ctx, r); err != nil {
		return err
	}
	if r.Level < slog.LevelError {
		return nil
	}

	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	var errorKind string
	collect := func(a slog.Attr) bool {
		v := a.Value.Resolve().Any()
		if err, ok := v.(error); ok {
			if errorKind == "" {
				errorKind = string(types.KindOf(err))
			}
			v = err.Error()
		}
		attrs[a.Key] = v
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		attrsJSON = []byte("{}")
	}

	fs := runtime.CallersFrames([]uintptr{r.PC})
	f, _ := fs.Next()

	args := []any{
		uuid.New().String(), r.Time.UTC(), r.Level.String(), r.Message,
		types.ContextString(ctx, types.ContextKeyRunID),
		types.ContextString(ctx, types.ContextKeyRequestID),
		types.ContextString(ctx, types.ContextKeySource),
		errorKind, f.File, f.Line, string(attrsJSON),
	}

	query := `
	INSERT INTO execution_errors (
		id, timestamp, level, message,
		run_id, request_id, source, error_kind,
		source_file, line_number, attributes
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`

	// the write happens off the logging path; Flush waits for pending rows
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if _, err := h.db.Exec(query, args...); err != nil {
			fmt.Fprintf(os.Stderr, "failed to log error to DuckDB: %v\n", err)
		}
	}()

	return nil
}

// Flush blocks until every pending error row has been written.
func (h *DuckDBHandler) Flush() {
	h.wg.Wait()
}

// WithAttrs implements slog.Handler
func (h *DuckDBHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &DuckDBHandler{
		next:  h.next.WithAttrs(attrs),
		db:    h.db,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
		wg:    h.wg,
	}
}

// WithGroup implements slog.Handler
func (h *DuckDBHandler) WithGroup(name string) slog.Handler {
	return &DuckDBHandler{
		next:  h.next.WithGroup(name),
		db:    h.db,
		attrs: h.attrs,
		wg:    h.wg,
	}
}

// ErrorRecord is one row of execution_errors.
type ErrorRecord struct {
	Level     string
	Message   string
	RunID     string
	ErrorKind string
}

// RecentErrors returns the newest error rows, newest first.
func RecentErrors(ctx context.Context, db *sql.DB, limit int) ([]ErrorRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx,
		`SELECT level, message, run_id, error_kind FROM execution_errors ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query errors: %w", err)
	}
	defer rows.Close()

	var out []ErrorRecord
	for rows.Next() {
		var rec ErrorRecord
		if err := rows.Scan(&rec.Level, &rec.Message, &rec.RunID, &rec.ErrorKind); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
