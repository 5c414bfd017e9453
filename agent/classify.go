// classify.go maps result shapes onto visualization strategies.
//
// Classification is pure and deterministic: the same result set always
// produces the same spec, with no completion service involved.
package agent

import (
	"math"
	"strings"
)

// Shape is the structural category of a result set.
type Shape string

const (
	// ShapeScalar is a single value: one row, one column.
	ShapeScalar Shape = "scalar"

	// ShapeSeries is label/value pairs: two columns, multiple rows.
	ShapeSeries Shape = "series"

	// ShapeTable is anything wider.
	ShapeTable Shape = "table"

	// ShapeEmpty is a result with no rows.
	ShapeEmpty Shape = "empty"
)

// Strategy is the selected rendering strategy.
type Strategy string

const (
	StrategyMetric Strategy = "metric"
	StrategyBar    Strategy = "bar"
	StrategyLine   Strategy = "line"
	StrategyPie    Strategy = "pie"
	StrategyTable  Strategy = "table"
	StrategyNotice Strategy = "notice"
)

// VisualizationSpec is the classified result: everything a renderer
// needs to draw it.
type VisualizationSpec struct {
	Shape    Shape
	Strategy Strategy

	// LabelColumn and ValueColumn index into Result.Columns for chart
	// strategies; -1 when not applicable.
	LabelColumn int
	ValueColumn int

	Result *ResultSet
}

// pieMaxSlices bounds pie charts; more slices than this render as bars.
const pieMaxSlices = 6

// Classify picks the visualization strategy for a result set.
//
// The decision table:
//   - no rows: empty notice
//   - one row, one column: single metric
//   - two columns with a temporal label and numeric value: line
//   - two columns with an identifier label: table
//   - two columns with a categorical label and numeric value: bar, or
//     pie for a small non-negative part-of-whole breakdown
//   - anything else: table
func Classify(rs *ResultSet) VisualizationSpec {
	spec := VisualizationSpec{
		Shape:       ShapeTable,
		Strategy:    StrategyTable,
		LabelColumn: -1,
		ValueColumn: -1,
		Result:      rs,
	}

	if rs.Empty() {
		spec.Shape = ShapeEmpty
		spec.Strategy = StrategyNotice
		return spec
	}

	if len(rs.Columns) == 1 && len(rs.Rows) == 1 {
		spec.Shape = ShapeScalar
		spec.Strategy = StrategyMetric
		spec.ValueColumn = 0
		return spec
	}

	if len(rs.Columns) == 2 {
		label, value, ok := labelValueColumns(rs)
		if !ok {
			return spec
		}

		spec.LabelColumn = label
		spec.ValueColumn = value

		switch rs.Columns[label].Type {
		case ColumnTemporal:
			spec.Shape = ShapeSeries
			spec.Strategy = StrategyLine
		case ColumnIdentifier:
			// Per-entity listings read better as tables.
			spec.LabelColumn = -1
			spec.ValueColumn = -1
		default:
			spec.Shape = ShapeSeries
			if pieEligible(rs, label, value) {
				spec.Strategy = StrategyPie
			} else {
				spec.Strategy = StrategyBar
			}
		}
		return spec
	}

	return spec
}

// labelValueColumns finds the (label, value) pair of a two-column
// result: exactly one column must be numeric.
func labelValueColumns(rs *ResultSet) (label, value int, ok bool) {
	first := rs.Columns[0].Type == ColumnNumeric
	second := rs.Columns[1].Type == ColumnNumeric
	switch {
	case first && !second:
		return 1, 0, true
	case second && !first:
		return 0, 1, true
	default:
		return 0, 0, false
	}
}

// pieEligible reports whether a series reads as a part-of-whole
// breakdown: few slices, no negative values, and either a share-like
// value name or values summing to ~1 or ~100.
func pieEligible(rs *ResultSet, label, value int) bool {
	if len(rs.Rows) > pieMaxSlices {
		return false
	}

	sum := 0.0
	for _, row := range rs.Rows {
		v, ok := asFloat(row[value])
		if !ok || v < 0 {
			return false
		}
		sum += v
	}

	if shareName(rs.Columns[value].Name) {
		return true
	}
	return math.Abs(sum-1) < 0.01 || math.Abs(sum-100) < 0.5
}

func shareName(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range []string{"share", "percent", "pct", "ratio", "proportion"} {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}
