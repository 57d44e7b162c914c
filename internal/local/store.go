// Package local runs pipelines against an embedded DuckDB database, so a
// pipeline can be rehearsed without a Snowflake account.
package local

import (
	"context"
	"database/sql"

	"flakeview/internal/common"
	"flakeview/pkg/errors"
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is a single DuckDB session.
type Store struct {
	db   *sql.DB
	path string
}

// Open connects to the DuckDB database at path. An empty path or
// MemoryPath opens an in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = MemoryPath
	}
	if path != MemoryPath {
		cleaned, err := common.CleanPath(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "Invalid DuckDB path").
				WithContext("path", path)
		}
		path = cleaned
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConnectionFailed, "Failed to open DuckDB database").
			WithContext("path", path)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeConnectionFailed, "Failed to connect to DuckDB database").
			WithContext("path", path)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// ExecContext runs one statement.
func (s *Store) ExecContext(ctx context.Context, query string) error {
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return errors.SQLError("Statement failed", query, err).
			WithContext("database", s.path)
	}
	return nil
}

// QueryRowContext runs a single-row query.
func (s *Store) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// Views lists the views in the main schema, sorted by name.
func (s *Store) Views(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT view_name FROM duckdb_views() WHERE NOT internal AND schema_name = 'main' ORDER BY view_name")
	if err != nil {
		return nil, errors.SQLError("Failed to list views", "duckdb_views()", err)
	}
	defer func() { _ = rows.Close() }()

	var views []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSQLExecution, "Failed to read view name")
		}
		views = append(views, name)
	}
	return views, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
