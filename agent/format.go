// format.go renders result values for display. The dataset is Brazilian
// e-commerce, so money is formatted as R$ and dates as dd/mm/yyyy.
package agent

import (
	"fmt"
	"strings"
	"time"
)

// FormatValue renders one value for display.
func FormatValue(v any, typ ColumnType) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case int64:
		return groupThousands(fmt.Sprintf("%d", x))
	case float64:
		return groupThousands(fmt.Sprintf("%.2f", x))
	case time.Time:
		return FormatDate(x)
	case bool:
		return fmt.Sprintf("%v", x)
	case string:
		if typ == ColumnTemporal {
			return formatTemporalString(x)
		}
		return x
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FormatCell renders a value with the column's semantics applied:
// money-like numeric columns get the R$ prefix.
func FormatCell(v any, col ResultColumn) string {
	if col.Type == ColumnNumeric && currencyColumn(col.Name) {
		if f, ok := asFloat(v); ok {
			return FormatCurrency(f)
		}
	}
	return FormatValue(v, col.Type)
}

// FormatCurrency renders a value as Brazilian Real.
func FormatCurrency(v float64) string {
	return "R$ " + groupThousands(fmt.Sprintf("%.2f", v))
}

// FormatDate renders a timestamp as dd/mm/yyyy.
func FormatDate(t time.Time) string {
	return t.Format("02/01/2006")
}

func currencyColumn(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range []string{"price", "revenue", "payment", "freight", "amount", "cost"} {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// formatTemporalString re-renders full dates as dd/mm/yyyy; coarser
// values like "2017-10" stay as they are.
func formatTemporalString(s string) string {
	trimmed := strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05Z07:00", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return FormatDate(t)
		}
	}
	return s
}

// groupThousands inserts comma separators into the integer part of an
// already formatted number.
func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	if len(intPart) > 3 {
		var sb strings.Builder
		lead := len(intPart) % 3
		if lead > 0 {
			sb.WriteString(intPart[:lead])
		}
		for i := lead; i < len(intPart); i += 3 {
			if sb.Len() > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(intPart[i : i+3])
		}
		intPart = sb.String()
	}

	out := intPart
	if hasFrac {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// FormatRowCount formats a row count for compact display:
//   - under 1000: exact number (e.g. "42", "999")
//   - 1000..999499: Xk (e.g. "1k", "999k")
//   - 999500+: XM (e.g. "1M", "10M")
func FormatRowCount(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 999500 {
		return fmt.Sprintf("%dk", (n+500)/1000)
	}
	return fmt.Sprintf("%dM", (n+500000)/1000000)
}
