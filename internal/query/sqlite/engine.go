// Package sqlite runs queries against uploaded SQLite database files.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/sqlask/sqlask/internal/query"
	"github.com/sqlask/sqlask/internal/storage"
)

const driverName = "sqlite"

type Engine struct {
	Store storage.ObjectStore
}

func NewEngine(store storage.ObjectStore) *Engine {
	return &Engine{Store: store}
}

func (e *Engine) Dialect() string {
	return "SQLite"
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	file, err := query.Open(ctx, e.Store, request.Source)
	if err != nil {
		return query.Result{}, err
	}
	defer file.Close()

	db, err := openDB(ctx, file.Path, request.ReadOnly)
	if err != nil {
		return query.Result{}, err
	}
	defer func() { _ = db.Close() }()

	return query.Run(ctx, db, request.SQL, request.RowLimit)
}

func (e *Engine) Describe(ctx context.Context, source query.Source, sampleRows int) ([]query.Table, error) {
	file, err := query.Open(ctx, e.Store, source)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	db, err := openDB(ctx, file.Path, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	return describe(ctx, db, sampleRows)
}

type masterEntry struct {
	Name string         `db:"name"`
	SQL  sql.NullString `db:"sql"`
}

type columnInfo struct {
	CID     int            `db:"cid"`
	Name    string         `db:"name"`
	Type    string         `db:"type"`
	NotNull int            `db:"notnull"`
	Default sql.NullString `db:"dflt_value"`
	PK      int            `db:"pk"`
}

func describe(ctx context.Context, db *sqlx.DB, sampleRows int) ([]query.Table, error) {
	var entries []masterEntry
	if err := db.SelectContext(ctx, &entries, `SELECT name, sql FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	tables := make([]query.Table, 0, len(entries))
	for _, entry := range entries {
		var columns []columnInfo
		if err := db.SelectContext(ctx, &columns, "PRAGMA table_info("+query.QuoteIdent(entry.Name)+")"); err != nil {
			return nil, fmt.Errorf("describe table %q: %w", entry.Name, err)
		}
		table := query.Table{
			Name:    entry.Name,
			DDL:     strings.TrimSpace(entry.SQL.String),
			Columns: make([]query.Column, 0, len(columns)),
		}
		for _, column := range columns {
			table.Columns = append(table.Columns, query.Column{Name: column.Name, Type: column.Type})
		}
		// A broken view should not hide the rest of the schema.
		if rows, err := query.SampleRows(ctx, db, entry.Name, sampleRows); err == nil {
			table.SampleRows = rows
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func openDB(ctx context.Context, path string, readOnly bool) (*sqlx.DB, error) {
	dsn, err := buildDSN(path, readOnly)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// buildDSN returns a SQLite URI. mode=rw stops SQLite from creating a
// missing file.
func buildDSN(path string, readOnly bool) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve database path: %w", err)
	}
	mode := "rw"
	if readOnly {
		mode = "ro"
	}
	uri := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(abs),
		RawQuery: "mode=" + mode + "&_pragma=busy_timeout(5000)",
	}
	return uri.String(), nil
}
