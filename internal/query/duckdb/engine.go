// Package duckdb runs queries against uploaded DuckDB database files.
package duckdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/sqlask/sqlask/internal/query"
	"github.com/sqlask/sqlask/internal/storage"
)

type Engine struct {
	Store storage.ObjectStore
}

func NewEngine(store storage.ObjectStore) *Engine {
	return &Engine{Store: store}
}

func (e *Engine) Dialect() string {
	return "DuckDB"
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

type tableEntry struct {
	Name string `db:"table_name"`
	Type string `db:"table_type"`
}

type columnEntry struct {
	Name string `db:"column_name"`
	Type string `db:"data_type"`
}

func describe(ctx context.Context, db *sqlx.DB, sampleRows int) ([]query.Table, error) {
	var entries []tableEntry
	if err := db.SelectContext(ctx, &entries, `SELECT table_name, table_type FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name`); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	tables := make([]query.Table, 0, len(entries))
	for _, entry := range entries {
		var columns []columnEntry
		if err := db.SelectContext(ctx, &columns, `SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = 'main' AND table_name = ? ORDER BY ordinal_position`, entry.Name); err != nil {
			return nil, fmt.Errorf("describe table %q: %w", entry.Name, err)
		}
		table := query.Table{Name: entry.Name, Columns: make([]query.Column, 0, len(columns))}
		for _, column := range columns {
			table.Columns = append(table.Columns, query.Column{Name: column.Name, Type: column.Type})
		}
		table.DDL = buildDDL(entry, table.Columns)
		if rows, err := query.SampleRows(ctx, db, entry.Name, sampleRows); err == nil {
			table.SampleRows = rows
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// buildDDL renders an approximate CREATE statement from information_schema,
// for the prompt only.
func buildDDL(entry tableEntry, columns []query.Column) string {
	kind := "TABLE"
	if strings.EqualFold(entry.Type, "VIEW") {
		kind = "VIEW"
	}
	defs := make([]string, 0, len(columns))
	for _, column := range columns {
		defs = append(defs, query.QuoteIdent(column.Name)+" "+column.Type)
	}
	return fmt.Sprintf("CREATE %s %s (%s)", kind, query.QuoteIdent(entry.Name), strings.Join(defs, ", "))
}

func openDB(ctx context.Context, path string, readOnly bool) (*sqlx.DB, error) {
	dsn := path
	if readOnly {
		dsn += "?access_mode=read_only"
	}
	db, err := sqlx.ConnectContext(ctx, "duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb database: %w", err)
	}
	return db, nil
}
