package assistant

import (
	"github.com/sqlask/sqlask/internal/query"
)

type Answer struct {
	Outcome Outcome
	// SQL is the generated statement; empty when translation did not happen.
	SQL        string
	Result     query.Result
	ResultText string
	Summary    string
	Keyword    string
	Reason     string
	Err        error
}

func (a Answer) Message() string {
	switch a.Outcome {
	case OutcomeNoDatabase:
		return "❌ Please upload an SQLite database first."
	case OutcomeBlocked:
		return "❌ Unsafe SQL detected and blocked:\n\n" + a.SQL
	case OutcomeAnswered:
		message := "✅ Generated SQL:\n" + a.SQL + "\n\n📊 Query Result:\n" + a.ResultText
		if a.Summary != "" {
			message += "\n\n💬 Answer:\n" + a.Summary
		}
		return message
	default:
		errText := "unknown error"
		if a.Err != nil {
			errText = a.Err.Error()
		}
		return "❌ Error: " + errText
	}
}
