package tui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DachengChen/paiViz/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seriesResult(labelName string, labelType agent.ColumnType, valueName string, rows [][]any) *agent.ResultSet {
	return &agent.ResultSet{
		Columns: []agent.ResultColumn{
			{Name: labelName, Type: labelType},
			{Name: valueName, Type: agent.ColumnNumeric},
		},
		Rows: rows,
	}
}

func TestSparkline(t *testing.T) {
	t.Run("ramp uses the full rune range", func(t *testing.T) {
		got := sparkline([]float64{1, 2, 3, 4, 5, 6, 7, 8}, 80)
		assert.Equal(t, "▁▂▃▄▅▆▇█", got)
	})

	t.Run("flat series renders mid-height", func(t *testing.T) {
		assert.Equal(t, "▄▄▄", sparkline([]float64{5, 5, 5}, 80))
	})

	t.Run("samples down to the terminal width", func(t *testing.T) {
		values := make([]float64, 500)
		for i := range values {
			values[i] = float64(i)
		}
		got := sparkline(values, 24)
		assert.Len(t, []rune(got), 24)
		runes := []rune(got)
		assert.Equal(t, '▁', runes[0])
		assert.Equal(t, '█', runes[len(runes)-1])
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, sparkline(nil, 80))
	})
}

func TestBarStrip(t *testing.T) {
	assert.Equal(t, strings.Repeat("█", 10), barStrip(1, 10))
	assert.Equal(t, strings.Repeat("█", 5), barStrip(0.5, 10))
	assert.Empty(t, barStrip(0, 10))
	assert.Empty(t, barStrip(-2, 10))

	// A tiny positive share still shows a sliver.
	assert.Equal(t, "█", barStrip(0.001, 10))

	// Over-unity input is clamped.
	assert.Equal(t, strings.Repeat("█", 10), barStrip(3, 10))
}

func TestRenderMetric(t *testing.T) {
	rs := &agent.ResultSet{
		Columns: []agent.ResultColumn{{Name: "total_revenue", Type: agent.ColumnNumeric}},
		Rows:    [][]any{{13591643.7}},
	}
	spec := agent.Classify(rs)
	require.Equal(t, agent.StrategyMetric, spec.Strategy)

	lines := RenderViz(&spec, 80)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "total_revenue")
	assert.Contains(t, lines[1], "R$ 13,591,643.70")
}

func TestRenderBar(t *testing.T) {
	rs := seriesResult("category", agent.ColumnCategorical, "revenue", [][]any{
		{"beleza_saude", 1258681.34},
		{"relogios_presentes", 1205005.68},
		{"cama_mesa_banho", 1036988.68},
	})
	spec := agent.Classify(rs)
	require.Equal(t, agent.StrategyBar, spec.Strategy)

	lines := RenderViz(&spec, 100)
	require.Len(t, lines, 3)

	assert.Contains(t, lines[0], "beleza_saude")
	assert.Contains(t, lines[0], "R$ 1,258,681.34")

	// Strips scale with the value: the top category gets the longest bar.
	top := strings.Count(lines[0], "█")
	last := strings.Count(lines[2], "█")
	assert.Greater(t, top, last)
	assert.Greater(t, last, 0)
}

func TestRenderBarFlagsTruncation(t *testing.T) {
	rs := seriesResult("category", agent.ColumnCategorical, "orders", [][]any{
		{"a", int64(10)},
		{"b", int64(3)},
	})
	rs.Truncated = true
	spec := agent.Classify(rs)
	require.Equal(t, agent.StrategyBar, spec.Strategy)

	lines := RenderViz(&spec, 80)
	assert.Contains(t, lines[len(lines)-1], "row cap reached")
}

func TestRenderLine(t *testing.T) {
	rs := seriesResult("month", agent.ColumnTemporal, "revenue", [][]any{
		{"2017-01", 120000.0},
		{"2017-02", 150000.0},
		{"2017-03", 240000.0},
		{"2017-04", 210000.0},
	})
	spec := agent.Classify(rs)
	require.Equal(t, agent.StrategyLine, spec.Strategy)

	lines := RenderViz(&spec, 80)
	require.Len(t, lines, 3)

	assert.Len(t, []rune(stripSpaces(lines[0])), 4, "one sparkline rune per point")
	assert.Contains(t, lines[1], "2017-01")
	assert.Contains(t, lines[1], "2017-04")
	assert.Contains(t, lines[2], "min R$ 120,000.00")
	assert.Contains(t, lines[2], "max R$ 240,000.00")
	assert.Contains(t, lines[2], "(4 points)")
}

func stripSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

func TestRenderPie(t *testing.T) {
	rs := seriesResult("status", agent.ColumnCategorical, "share_pct", [][]any{
		{"delivered", 75.0},
		{"shipped", 25.0},
	})
	spec := agent.Classify(rs)
	require.Equal(t, agent.StrategyPie, spec.Strategy)

	lines := RenderViz(&spec, 80)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "delivered")
	assert.Contains(t, lines[0], "75.0%")
	assert.Contains(t, lines[1], "25.0%")

	// Strips are proportional to the share.
	assert.Greater(t, strings.Count(lines[0], "█"), strings.Count(lines[1], "█"))
}

func TestRenderTableCapsRows(t *testing.T) {
	rs := &agent.ResultSet{
		Columns: []agent.ResultColumn{
			{Name: "order_id", Type: agent.ColumnIdentifier},
			{Name: "order_status", Type: agent.ColumnCategorical},
			{Name: "price", Type: agent.ColumnNumeric},
		},
	}
	for i := 0; i < 25; i++ {
		rs.Rows = append(rs.Rows, []any{fmt.Sprintf("ord-%03d", i), "delivered", float64(i) * 10})
	}

	lines := renderTable(rs)
	out := strings.Join(lines, "\n")

	assert.Contains(t, out, "ORDER_STATUS", "go-pretty uppercases headers")
	assert.Contains(t, out, "ord-000")
	assert.NotContains(t, out, "ord-024", "rows past the display cap are dropped")
	assert.Contains(t, lines[len(lines)-1], "(25 rows, showing first 20)")
}

func TestRenderTableNotesRowCap(t *testing.T) {
	rs := &agent.ResultSet{
		Columns:   []agent.ResultColumn{{Name: "n", Type: agent.ColumnNumeric}},
		Rows:      [][]any{{int64(1)}, {int64(2)}},
		Truncated: true,
	}
	lines := renderTable(rs)
	assert.Contains(t, lines[len(lines)-1], "row cap reached")
}

func TestRenderVizNotice(t *testing.T) {
	rs := &agent.ResultSet{
		Columns: []agent.ResultColumn{{Name: "revenue", Type: agent.ColumnNumeric}},
	}
	spec := agent.Classify(rs)
	require.Equal(t, agent.StrategyNotice, spec.Strategy)

	lines := RenderViz(&spec, 80)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "no rows matched")
}

func TestRenderVizNilSpec(t *testing.T) {
	assert.Nil(t, RenderViz(nil, 80))
}

func TestRenderTurn(t *testing.T) {
	rs := seriesResult("category", agent.ColumnCategorical, "revenue", [][]any{
		{"beleza_saude", 1258681.34},
		{"relogios_presentes", 1205005.68},
	})
	spec := agent.Classify(rs)

	turn := agent.Turn{
		Question:    "top categories by revenue",
		Viz:         &spec,
		Narrative:   "Health and beauty leads revenue, slightly ahead of watches and gifts.",
		Suggestions: []string{"How did each trend monthly?"},
		Elapsed:     800 * time.Millisecond,
	}

	out := strings.Join(RenderTurn(turn, 100), "\n")
	assert.Contains(t, out, "You: top categories by revenue")
	assert.Contains(t, out, "0.8s")
	assert.Contains(t, out, "Health and beauty leads revenue")
	assert.Contains(t, out, "beleza_saude")
	assert.Contains(t, out, "↳ How did each trend monthly?")
}

func TestRenderTurnFailure(t *testing.T) {
	turn := agent.Turn{
		Question: "revenue by discount tier",
		Err: &agent.TurnError{
			Stage:   "synthesis",
			Kind:    "unknown_reference",
			Message: `the plan references "discount", which is not in the dataset`,
		},
	}

	lines := RenderTurn(turn, 80)
	out := strings.Join(lines, "\n")
	assert.Contains(t, out, `references "discount"`)
	assert.Contains(t, out, "synthesis/unknown_reference")
	assert.NotContains(t, out, "↳")
}

func TestWrapText(t *testing.T) {
	lines := wrapText("orders from the southeast region dominate overall revenue", 20)
	require.Greater(t, len(lines), 1)
	for _, l := range lines {
		assert.LessOrEqual(t, len([]rune(l)), 20)
	}
	assert.Equal(t, "orders from the", lines[0])

	// A single oversized token is hard-cut rather than dropped.
	long := wrapText(strings.Repeat("x", 45), 20)
	require.Len(t, long, 3)
	assert.Len(t, long[0], 20)
}
