// render.go draws classified results as terminal charts. Renderers are
// pure functions from a visualization spec to lines of text, so the
// one-shot ask command shares them with the chat transcript.
package tui

import (
	"fmt"
	"strings"

	"github.com/DachengChen/paiViz/agent"
	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	// tableMaxRows caps how many rows a rendered table shows.
	tableMaxRows = 20

	// maxLabelWidth caps the label column of bar and pie charts.
	maxLabelWidth = 24

	// maxStripWidth caps bar and pie strips on wide terminals.
	maxStripWidth = 40
)

var (
	styleUser      = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)
	styleAssistant = lipgloss.NewStyle().Foreground(ColorSuccess)
	styleChart     = lipgloss.NewStyle().Foreground(ColorAccent)
	styleMetric    = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// RenderTurn renders one conversation turn as transcript lines.
func RenderTurn(t agent.Turn, width int) []string {
	lines := []string{styleUser.Render("You: ") + t.Question}

	head := styleAssistant.Render("AI:")
	if t.Elapsed > 0 {
		head += StyleDimmed.Render(fmt.Sprintf("  %.1fs", t.Elapsed.Seconds()))
	}
	lines = append(lines, head)

	if t.Failed() {
		lines = append(lines,
			"  "+StyleError.Render("✗ "+t.Err.Message),
			"  "+StyleDimmed.Render(t.Err.Stage+"/"+t.Err.Kind),
			"")
		return lines
	}

	if t.Narrative != "" {
		for _, l := range wrapText(t.Narrative, width-2) {
			lines = append(lines, "  "+l)
		}
		lines = append(lines, "")
	}

	for _, l := range RenderViz(t.Viz, width-2) {
		lines = append(lines, "  "+l)
	}

	if len(t.Suggestions) > 0 {
		lines = append(lines, "")
		for _, s := range t.Suggestions {
			lines = append(lines, "  "+StyleDimmed.Render("↳ "+s))
		}
	}

	return append(lines, "")
}

// RenderViz renders a classified result using its selected strategy.
func RenderViz(v *agent.VisualizationSpec, width int) []string {
	if v == nil || v.Result == nil {
		return nil
	}
	switch v.Strategy {
	case agent.StrategyMetric:
		return renderMetric(v.Result)
	case agent.StrategyBar:
		return renderBar(v, width)
	case agent.StrategyLine:
		return renderLine(v, width)
	case agent.StrategyPie:
		return renderPie(v, width)
	case agent.StrategyNotice:
		return renderNotice()
	default:
		return renderTable(v.Result)
	}
}

func renderMetric(rs *agent.ResultSet) []string {
	col := rs.Columns[0]
	return []string{
		StyleDimmed.Render(col.Name),
		styleMetric.Render(agent.FormatCell(rs.Rows[0][0], col)),
	}
}

func renderBar(v *agent.VisualizationSpec, width int) []string {
	rs := v.Result
	labels, values := seriesOf(rs, v.LabelColumn, v.ValueColumn)

	cells := make([]string, len(rs.Rows))
	for i, row := range rs.Rows {
		cells[i] = agent.FormatCell(row[v.ValueColumn], rs.Columns[v.ValueColumn])
	}

	labelW := columnWidth(labels, maxLabelWidth)
	valueW := columnWidth(cells, width)
	stripW := clampStrip(width - labelW - valueW - 4)

	maxV := 0.0
	for _, val := range values {
		if val > maxV {
			maxV = val
		}
	}

	lines := make([]string, 0, len(labels))
	for i, label := range labels {
		frac := 0.0
		if maxV > 0 && values[i] > 0 {
			frac = values[i] / maxV
		}
		lines = append(lines, fmt.Sprintf("%s  %s  %s",
			padRight(label, labelW),
			styleChart.Render(padRight(barStrip(frac, stripW), stripW)),
			padLeft(cells[i], valueW)))
	}
	if rs.Truncated {
		lines = append(lines, StyleWarning.Render("row cap reached"))
	}
	return lines
}

func renderLine(v *agent.VisualizationSpec, width int) []string {
	rs := v.Result
	labels, values := seriesOf(rs, v.LabelColumn, v.ValueColumn)
	valueCol := rs.Columns[v.ValueColumn]

	spark := sparkline(values, width)
	sparkW := len([]rune(spark))

	minV, maxV := values[0], values[0]
	for _, val := range values {
		if val < minV {
			minV = val
		}
		if val > maxV {
			maxV = val
		}
	}

	first, last := labels[0], labels[len(labels)-1]
	gap := sparkW - len([]rune(first)) - len([]rune(last))
	axis := first + " .. " + last
	if gap >= 1 {
		axis = first + strings.Repeat(" ", gap) + last
	}

	stats := fmt.Sprintf("min %s  max %s  (%d points)",
		agent.FormatCell(minV, valueCol), agent.FormatCell(maxV, valueCol), len(values))
	if rs.Truncated {
		stats += "  " + StyleWarning.Render("row cap reached")
	}

	return []string{
		styleChart.Render(spark),
		StyleDimmed.Render(axis),
		StyleDimmed.Render(stats),
	}
}

func renderPie(v *agent.VisualizationSpec, width int) []string {
	rs := v.Result
	labels, values := seriesOf(rs, v.LabelColumn, v.ValueColumn)

	sum := 0.0
	for _, val := range values {
		sum += val
	}

	labelW := columnWidth(labels, maxLabelWidth)
	stripW := clampStrip(width - labelW - 10)

	lines := make([]string, 0, len(labels))
	for i, label := range labels {
		share := 0.0
		if sum > 0 {
			share = values[i] / sum
		}
		lines = append(lines, fmt.Sprintf("%s  %s  %s",
			padRight(label, labelW),
			padLeft(fmt.Sprintf("%.1f%%", share*100), 6),
			styleChart.Render(barStrip(share, stripW))))
	}
	return lines
}

func renderTable(rs *agent.ResultSet) []string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(rs.Columns))
	for i, col := range rs.Columns {
		header[i] = col.Name
	}
	t.AppendHeader(header)

	shown := rs.RowCount()
	if shown > tableMaxRows {
		shown = tableMaxRows
	}
	for _, row := range rs.Rows[:shown] {
		out := make(table.Row, len(rs.Columns))
		for i, col := range rs.Columns {
			if i < len(row) {
				out[i] = agent.FormatCell(row[i], col)
			}
		}
		t.AppendRow(out)
	}

	lines := strings.Split(t.Render(), "\n")

	note := fmt.Sprintf("(%d rows)", rs.RowCount())
	if rs.RowCount() > tableMaxRows {
		note = fmt.Sprintf("(%d rows, showing first %d)", rs.RowCount(), tableMaxRows)
	}
	if rs.Truncated {
		note += "  " + StyleWarning.Render("row cap reached")
	}
	return append(lines, StyleDimmed.Render(note))
}

func renderNotice() []string {
	return []string{StyleDimmed.Render("∅ no rows matched this question")}
}

// seriesOf extracts display labels and numeric values from a series result.
func seriesOf(rs *agent.ResultSet, label, value int) ([]string, []float64) {
	labels := make([]string, 0, len(rs.Rows))
	values := make([]float64, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		labels = append(labels, agent.FormatValue(row[label], rs.Columns[label].Type))
		v, _ := numericValue(row[value])
		values = append(values, v)
	}
	return labels, values
}

func numericValue(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sparkline draws values as one rune per point, sampled down when the
// series is wider than the terminal.
func sparkline(values []float64, width int) string {
	if len(values) == 0 {
		return ""
	}

	pts := values
	if width > 1 && len(pts) > width {
		sampled := make([]float64, width)
		for i := range sampled {
			sampled[i] = pts[i*(len(pts)-1)/(width-1)]
		}
		pts = sampled
	}

	minV, maxV := pts[0], pts[0]
	for _, p := range pts {
		if p < minV {
			minV = p
		}
		if p > maxV {
			maxV = p
		}
	}
	span := maxV - minV

	var sb strings.Builder
	for _, p := range pts {
		level := 3 // flat series renders mid-height
		if span > 0 {
			level = int((p-minV)/span*7 + 0.5)
			if level < 0 {
				level = 0
			}
			if level > 7 {
				level = 7
			}
		}
		sb.WriteRune(sparkRunes[level])
	}
	return sb.String()
}

// barStrip draws a fraction of the strip width in block characters.
// Any positive fraction shows at least a sliver.
func barStrip(frac float64, width int) string {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	n := int(frac*float64(width) + 0.5)
	if n == 0 && frac > 0 {
		n = 1
	}
	if n > width {
		n = width
	}
	return strings.Repeat("█", n)
}

// wrapText soft-wraps text on spaces; words longer than the width are
// hard-cut.
func wrapText(s string, width int) []string {
	if width <= 0 {
		return []string{s}
	}

	var lines []string
	line := ""
	lineLen := 0
	flush := func() {
		if lineLen > 0 {
			lines = append(lines, line)
			line = ""
			lineLen = 0
		}
	}

	for _, word := range strings.Fields(s) {
		runes := []rune(word)
		for len(runes) > width {
			flush()
			lines = append(lines, string(runes[:width]))
			runes = runes[width:]
		}
		if len(runes) == 0 {
			continue
		}
		if lineLen > 0 && lineLen+1+len(runes) > width {
			flush()
		}
		if lineLen > 0 {
			line += " "
			lineLen++
		}
		line += string(runes)
		lineLen += len(runes)
	}
	flush()

	if len(lines) == 0 {
		return []string{s}
	}
	return lines
}

func columnWidth(cells []string, limit int) int {
	w := 0
	for _, c := range cells {
		if n := len([]rune(c)); n > w {
			w = n
		}
	}
	if w > limit {
		w = limit
	}
	return w
}

func clampStrip(w int) int {
	if w < 8 {
		return 8
	}
	if w > maxStripWidth {
		return maxStripWidth
	}
	return w
}

// padRight pads to exactly w runes, truncating with an ellipsis.
func padRight(s string, w int) string {
	runes := []rune(s)
	if len(runes) > w {
		if w <= 1 {
			return string(runes[:w])
		}
		return string(runes[:w-1]) + "…"
	}
	return s + strings.Repeat(" ", w-len(runes))
}

// padLeft pads to at least w runes.
func padLeft(s string, w int) string {
	n := len([]rune(s))
	if n >= w {
		return s
	}
	return strings.Repeat(" ", w-n) + s
}
