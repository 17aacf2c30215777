package nl2sql

import (
	"context"

	"github.com/sqlask/sqlask/internal/query"
)

type Request struct {
	Question string `json:"question"`
	// Dialect is the SQL flavor the statement must be written in, e.g. "SQLite".
	Dialect string        `json:"dialect"`
	Tables  []query.Table `json:"tables"`
	// TopK caps result rows the model should ask for; zero leaves it unbounded.
	TopK int `json:"top_k"`
}

type Result struct {
	SQL string `json:"sql"`
	// Steps holds every statement the model produced; SQL is Steps[0].
	Steps    []string `json:"steps"`
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

type AnswerRequest struct {
	Question string
	SQL      string
	// Result is the rendered query output the answer is based on.
	Result string
}

// Answerer turns a query result back into a plain-language answer.
type Answerer interface {
	Answer(ctx context.Context, req AnswerRequest) (string, error)
}
