package nl2sql

import "strings"

// SplitStatements breaks sqlText on top-level semicolons. Semicolons inside
// quoted strings, quoted identifiers and comments do not split. A segment that
// holds only comments is kept with a neighbouring statement, so text in a
// comment stays visible to the safety gate. Empty statements are dropped.
func SplitStatements(sqlText string) []string {
	var (
		statements []string
		current    strings.Builder
		quote      byte
		hasCode    bool
	)
	flush := func(final bool) {
		stmt := strings.TrimSpace(current.String())
		switch {
		case stmt == "":
			current.Reset()
		case hasCode:
			statements = append(statements, stmt)
			current.Reset()
		case final && len(statements) > 0:
			statements[len(statements)-1] += "\n" + stmt
		case final:
			statements = append(statements, stmt)
		default:
			// Comment-only: carry it into the next statement.
			current.WriteByte('\n')
		}
		hasCode = false
	}

	for i := 0; i < len(sqlText); i++ {
		c := sqlText[i]
		switch {
		case quote != 0:
			current.WriteByte(c)
			if c == quote {
				// Doubled quote is an escaped quote.
				if i+1 < len(sqlText) && sqlText[i+1] == quote {
					current.WriteByte(sqlText[i+1])
					i++
					continue
				}
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
			hasCode = true
			current.WriteByte(c)
		case c == '-' && i+1 < len(sqlText) && sqlText[i+1] == '-':
			end := strings.IndexByte(sqlText[i:], '\n')
			if end < 0 {
				end = len(sqlText) - i
			}
			current.WriteString(sqlText[i : i+end])
			i += end - 1
		case c == '/' && i+1 < len(sqlText) && sqlText[i+1] == '*':
			end := strings.Index(sqlText[i+2:], "*/")
			if end < 0 {
				current.WriteString(sqlText[i:])
				i = len(sqlText)
				continue
			}
			current.WriteString(sqlText[i : i+2+end+2])
			i += 2 + end + 1
		case c == ';':
			flush(false)
		default:
			if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
				hasCode = true
			}
			current.WriteByte(c)
		}
	}
	flush(true)
	return statements
}
