// Package relational stages service-history CSV files in a SQL database and
// exports tables back to CSV. Postgres is reached through pgx; DuckDB serves
// local runs and tests.
package relational

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/soundprediction/go-servicegraph/pkg/types"
	"github.com/soundprediction/go-servicegraph/pkg/utils"
)

const (
	BackendPostgres = "postgres"
	BackendDuckDB   = "duckdb"

	// DefaultTable is the staging table for service records.
	DefaultTable = "service_records"
)

// sqlDriver maps a backend to its database/sql driver name.
var sqlDriver = map[string]string{
	BackendPostgres: "pgx",
	BackendDuckDB:   "duckdb",
}

// Store is a SQL database holding staged CSV tables.
type Store struct {
	db      *sql.DB
	backend string
	logger  *slog.Logger
}

// Open connects to backend with dsn and verifies the connection.
func Open(ctx context.Context, backend, dsn string, logger *slog.Logger) (*Store, error) {
	name, ok := sqlDriver[backend]
	if !ok {
		return nil, types.NewError(types.KindConfig, "relational", fmt.Errorf("unknown backend %q", backend))
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, types.NewError(types.KindConfig, "relational", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, types.NewError(types.KindServiceUnavailable, "relational", err)
	}
	logger.Info("connected to relational store", "backend", backend)
	return &Store{db: db, backend: backend, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return types.NewError(types.KindServiceUnavailable, "relational", err)
	}
	return nil
}

// Load replaces table with the contents of the CSV at csvPath. Every column
// is TEXT and empty cells are stored as NULL. It returns the number of rows
// inserted.
func (s *Store) Load(ctx context.Context, csvPath, table string) (int, error) {
	if err := utils.ValidateIdentifier(table); err != nil {
		return 0, types.NewError(types.KindConfig, "load table", err)
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return 0, types.NewError(types.KindIO, "load table", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	header, err := r.Read()
	if err != nil {
		return 0, types.NewError(types.KindMalformedInput, "load table", fmt.Errorf("read header: %w", err))
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	cols := make([]string, len(header))
	placeholders := make([]string, len(header))
	for i, h := range header {
		cols[i] = quoteIdent(strings.TrimSpace(h)) + " TEXT"
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, types.NewError(types.KindServiceUnavailable, "load table", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
		return 0, types.NewError(types.KindWrite, "load table", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(cols, ", "))); err != nil {
		return 0, types.NewError(types.KindWrite, "load table", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(table), strings.Join(placeholders, ", ")))
	if err != nil {
		return 0, types.NewError(types.KindWrite, "load table", err)
	}
	defer stmt.Close()

	rows := 0
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, types.NewError(types.KindMalformedInput, "load table", fmt.Errorf("row %d: %w", rows+1, err))
		}
		args := make([]any, len(header))
		for i := range header {
			if i < len(rec) && strings.TrimSpace(rec[i]) != "" {
				args[i] = rec[i]
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, types.NewError(types.KindWrite, "load table", fmt.Errorf("row %d: %w", rows+1, err))
		}
		rows++
	}

	if err := tx.Commit(); err != nil {
		return 0, types.NewError(types.KindWrite, "load table", err)
	}
	s.logger.InfoContext(ctx, "uploaded csv to table", "path", csvPath, "table", table, "rows", rows)
	return rows, nil
}

// Export writes every row of table to csvPath with a header line. NULL
// becomes an empty cell. It returns the number of rows written.
func (s *Store) Export(ctx context.Context, table, csvPath string) (int, error) {
	if err := utils.ValidateIdentifier(table); err != nil {
		return 0, types.NewError(types.KindConfig, "export table", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table))
	if err != nil {
		return 0, types.NewError(types.KindQuery, "export table", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, types.NewError(types.KindQuery, "export table", err)
	}

	if err := os.MkdirAll(filepath.Dir(csvPath), 0o755); err != nil {
		return 0, types.NewError(types.KindIO, "export table", err)
	}
	f, err := os.Create(csvPath)
	if err != nil {
		return 0, types.NewError(types.KindIO, "export table", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(cols); err != nil {
		return 0, types.NewError(types.KindIO, "export table", err)
	}

	values := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	record := make([]string, len(cols))

	n := 0
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return 0, types.NewError(types.KindQuery, "export table", err)
		}
		for i, v := range values {
			record[i] = v.String
		}
		if err := w.Write(record); err != nil {
			return 0, types.NewError(types.KindIO, "export table", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, types.NewError(types.KindQuery, "export table", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, types.NewError(types.KindIO, "export table", err)
	}
	s.logger.InfoContext(ctx, "exported table to csv", "table", table, "path", csvPath, "rows", n)
	return n, nil
}

// RoundTrip loads csvPath into table and exports it to outPath, returning
// the exported row count.
func (s *Store) RoundTrip(ctx context.Context, csvPath, table, outPath string) (int, error) {
	if _, err := s.Load(ctx, csvPath, table); err != nil {
		return 0, err
	}
	return s.Export(ctx, table, outPath)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
