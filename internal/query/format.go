package query

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// FormatResult renders result as a plain-text table for the result box.
func FormatResult(result Result) string {
	if len(result.Columns) == 0 {
		return "(statement executed, no rows returned)"
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(result.Columns, "\t"))
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = formatValue(value)
		}
		_, _ = fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()

	out := strings.TrimRight(b.String(), "\n")
	out = strings.Join(trimLines(strings.Split(out, "\n")), "\n")
	switch {
	case len(result.Rows) == 0:
		out += "\n(no rows)"
	case result.Truncated:
		out += fmt.Sprintf("\n(showing first %d rows)", len(result.Rows))
	}
	return out
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return strings.NewReplacer("\t", " ", "\n", " ").Replace(typed)
	case time.Time:
		return typed.Format(time.RFC3339)
	default:
		return fmt.Sprint(typed)
	}
}

func trimLines(lines []string) []string {
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return lines
}
