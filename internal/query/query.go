package query

import (
	"context"
	"path"
	"strings"
	"time"
)

// Source identifies an uploaded database file.
type Source struct {
	ObjectKey string
	FileName  string
}

func (s Source) Extension() string {
	name := s.FileName
	if name == "" {
		name = s.ObjectKey
	}
	return strings.ToLower(path.Ext(name))
}

type Request struct {
	SQL      string
	RowLimit int
	Source   Source
	ReadOnly bool
}

type Result struct {
	Columns []string
	Rows    [][]any
	// Truncated is set when RowLimit cut off further rows.
	Truncated bool
	Duration  time.Duration
}

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name       string   `json:"name"`
	DDL        string   `json:"ddl,omitempty"`
	Columns    []Column `json:"columns"`
	SampleRows [][]any  `json:"sample_rows,omitempty"`
}

type Engine interface {
	// Dialect names the SQL flavor for prompt construction.
	Dialect() string
	Execute(ctx context.Context, request Request) (Result, error)
	Describe(ctx context.Context, source Source, sampleRows int) ([]Table, error)
}
