// Package safety decides whether a generated SQL statement may be executed
// and shown to the user.
//
// The keyword policy is a plain substring search over a lowercased copy of the
// statement. It is not statement-aware: identifiers such as updated_at and
// string literals containing a denied word are blocked too.
package safety

import (
	"fmt"
	"strings"
)

// DeniedKeywords are matched as substrings, in this order.
var DeniedKeywords = []string{"drop", "delete", "update", "insert", "alter"}

// IsSafe reports whether sql contains none of DeniedKeywords in any letter case.
func IsSafe(sql string) bool {
	_, blocked := BlockedKeyword(sql)
	return !blocked
}

// BlockedKeyword returns the first denied keyword found in sql.
func BlockedKeyword(sql string) (string, bool) {
	lowered := strings.ToLower(sql)
	for _, keyword := range DeniedKeywords {
		if strings.Contains(lowered, keyword) {
			return keyword, true
		}
	}
	return "", false
}

type Mode string

const (
	// ModeKeyword applies only the denylist.
	ModeKeyword Mode = "keyword"
	// ModeStrict also requires a read-only SELECT or WITH prefix.
	ModeStrict Mode = "strict"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeKeyword:
		return ModeKeyword, nil
	case ModeStrict:
		return ModeStrict, nil
	default:
		return "", fmt.Errorf("invalid safety mode %q: expected keyword or strict", raw)
	}
}

// Order says when the gate runs relative to execution.
type Order string

const (
	// OrderBefore vets the statement and executes it only when safe.
	OrderBefore Order = "before"
	// OrderAfter executes first and withholds the result when blocked.
	OrderAfter Order = "after"
)

func ParseOrder(raw string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(raw))) {
	case "", OrderBefore:
		return OrderBefore, nil
	case OrderAfter:
		return OrderAfter, nil
	default:
		return "", fmt.Errorf("invalid safety order %q: expected before or after", raw)
	}
}

type Verdict struct {
	Safe    bool
	Keyword string
	Reason  string
}

type Gate struct {
	Mode Mode
}

func NewGate(mode Mode) Gate {
	return Gate{Mode: mode}
}

func (g Gate) Check(sql string) Verdict {
	if keyword, blocked := BlockedKeyword(sql); blocked {
		return Verdict{Keyword: keyword, Reason: fmt.Sprintf("statement contains denied keyword %q", keyword)}
	}
	if g.Mode == ModeStrict && !isReadOnlyPrefix(sql) {
		return Verdict{Reason: "only read-only SELECT/WITH queries are allowed"}
	}
	return Verdict{Safe: true}
}

func isReadOnlyPrefix(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	for strings.HasPrefix(normalized, "(") {
		normalized = strings.TrimSpace(strings.TrimPrefix(normalized, "("))
	}
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}
