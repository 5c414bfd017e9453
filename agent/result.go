package agent

import (
	"strings"
	"time"

	"github.com/DachengChen/paiViz/dataset"
)

// ColumnType is the semantic role of a result column, inferred from its
// values (and, for identifiers and empty columns, its name).
type ColumnType string

const (
	ColumnNumeric     ColumnType = "numeric"
	ColumnTemporal    ColumnType = "temporal"
	ColumnCategorical ColumnType = "categorical"
	ColumnIdentifier  ColumnType = "identifier"
)

// ResultColumn is one column of a result set.
type ResultColumn struct {
	Name string
	Type ColumnType
}

// ResultSet is a fully collected query result.
type ResultSet struct {
	Columns []ResultColumn
	Rows    [][]any

	// Truncated is set when the row cap cut the result, not when a
	// user-requested limit did.
	Truncated bool

	Duration time.Duration

	// SQL is the statement that produced this result.
	SQL string
}

func (rs *ResultSet) Empty() bool { return len(rs.Rows) == 0 }

func (rs *ResultSet) RowCount() int { return len(rs.Rows) }

// ColumnNames returns the column names in order.
func (rs *ResultSet) ColumnNames() []string {
	names := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		names[i] = c.Name
	}
	return names
}

// newResultSet types each column of a raw dataset result.
func newResultSet(res *dataset.Result, sql string, truncated bool) *ResultSet {
	rs := &ResultSet{
		Rows:      res.Rows,
		Truncated: truncated,
		Duration:  res.Duration,
		SQL:       sql,
	}
	for i, name := range res.Columns {
		rs.Columns = append(rs.Columns, ResultColumn{
			Name: name,
			Type: inferColumnType(name, columnValues(res.Rows, i)),
		})
	}
	return rs
}

func columnValues(rows [][]any, col int) []any {
	values := make([]any, 0, len(rows))
	for _, row := range rows {
		if col < len(row) {
			values = append(values, row[col])
		}
	}
	return values
}

// inferColumnType decides the semantic role of one column. Values win
// over names, except that key-like names always count as identifiers.
func inferColumnType(name string, values []any) ColumnType {
	if identifierName(name) {
		return ColumnIdentifier
	}

	sawValue := false
	numeric, temporal := true, true
	for _, v := range values {
		if v == nil {
			continue
		}
		sawValue = true
		switch x := v.(type) {
		case int64, float64:
			temporal = false
		case time.Time:
			numeric = false
		case string:
			numeric = false
			if !parsesAsTime(x) {
				temporal = false
			}
		default:
			numeric = false
			temporal = false
		}
	}

	switch {
	case !sawValue:
		if temporalName(name) {
			return ColumnTemporal
		}
		return ColumnCategorical
	case numeric:
		return ColumnNumeric
	case temporal:
		return ColumnTemporal
	default:
		return ColumnCategorical
	}
}

func identifierName(name string) bool {
	lower := strings.ToLower(name)
	return lower == "id" || strings.HasSuffix(lower, "_id") || strings.HasSuffix(lower, "_key")
}

func temporalName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "date") || strings.Contains(lower, "month") ||
		strings.Contains(lower, "timestamp") || strings.HasSuffix(lower, "_at")
}

// timeLayouts are the string shapes treated as temporal values; bare
// numbers are deliberately absent so counts never look like years.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
}

func parsesAsTime(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, layout := range timeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
