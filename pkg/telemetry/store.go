// Package telemetry records operational data (errors, token usage) in a
// local DuckDB file so runs can be inspected with plain SQL afterwards.
package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Open opens the DuckDB database at path, creating its directory. An empty
// path opens an in-memory database.
func Open(path string) (*sql.DB, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
		}
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open telemetry db: %w", err)
	}
	return db, nil
}
