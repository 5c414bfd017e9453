// viewport.go provides a scrollable text area with both vertical and
// horizontal scrolling and optional text wrapping. The transcript and
// every command card render through it.
package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Viewport is a scrollable text area.
type Viewport struct {
	width    int
	height   int
	content  []string // lines of content
	scrollY  int      // vertical scroll offset (line index)
	scrollX  int      // horizontal scroll offset (column index)
	wrapText bool     // wrap long lines instead of horizontal scroll
}

// NewViewport creates a viewport with the given dimensions.
func NewViewport(width, height int) *Viewport {
	return &Viewport{
		width:  width,
		height: height,
	}
}

// SetContentLines replaces the viewport content with pre-split lines.
func (v *Viewport) SetContentLines(lines []string) {
	v.content = lines
	v.clampScroll()
}

// SetSize updates viewport dimensions.
func (v *Viewport) SetSize(width, height int) {
	v.width = width
	v.height = height
	v.clampScroll()
}

// ToggleWrap toggles text wrapping.
func (v *Viewport) ToggleWrap() {
	v.wrapText = !v.wrapText
	v.scrollX = 0
	v.clampScroll()
}

// ScrollUp moves the viewport up by n lines.
func (v *Viewport) ScrollUp(n int) {
	v.scrollY -= n
	v.clampScroll()
}

// ScrollDown moves the viewport down by n lines.
func (v *Viewport) ScrollDown(n int) {
	v.scrollY += n
	v.clampScroll()
}

// ScrollLeft moves the viewport left.
func (v *Viewport) ScrollLeft(n int) {
	if !v.wrapText {
		v.scrollX -= n
		if v.scrollX < 0 {
			v.scrollX = 0
		}
	}
}

// ScrollRight moves the viewport right.
func (v *Viewport) ScrollRight(n int) {
	if !v.wrapText {
		v.scrollX += n
	}
}

// PageUp scrolls up by one page.
func (v *Viewport) PageUp() {
	v.ScrollUp(v.height)
}

// PageDown scrolls down by one page.
func (v *Viewport) PageDown() {
	v.ScrollDown(v.height)
}

// Home scrolls to the top.
func (v *Viewport) Home() {
	v.scrollY = 0
	v.scrollX = 0
}

// End scrolls to the bottom.
func (v *Viewport) End() {
	v.scrollY = v.maxScrollY()
}

// Render returns the visible portion of the content.
func (v *Viewport) Render() string {
	if len(v.content) == 0 {
		return ""
	}

	var visibleLines []string
	if v.wrapText {
		visibleLines = v.renderWrapped()
	} else {
		visibleLines = v.renderScrolled()
	}

	// Pad to fill viewport height
	for len(visibleLines) < v.height {
		visibleLines = append(visibleLines, "")
	}

	content := strings.Join(visibleLines, "\n")
	return lipgloss.JoinVertical(lipgloss.Left, content, v.scrollIndicator())
}

// renderScrolled returns lines with horizontal offset applied.
func (v *Viewport) renderScrolled() []string {
	end := v.scrollY + v.height
	if end > len(v.content) {
		end = len(v.content)
	}

	var lines []string
	for i := v.scrollY; i < end; i++ {
		runes := []rune(v.content[i])
		if v.scrollX > 0 {
			if v.scrollX < len(runes) {
				runes = runes[v.scrollX:]
			} else {
				runes = nil
			}
		}
		if len(runes) > v.width {
			runes = runes[:v.width]
		}
		lines = append(lines, string(runes))
	}
	return lines
}

// renderWrapped returns hard-wrapped lines.
func (v *Viewport) renderWrapped() []string {
	var wrapped []string
	for _, line := range v.content {
		runes := []rune(line)
		if len(runes) <= v.width || v.width <= 0 {
			wrapped = append(wrapped, line)
			continue
		}
		for len(runes) > v.width {
			wrapped = append(wrapped, string(runes[:v.width]))
			runes = runes[v.width:]
		}
		wrapped = append(wrapped, string(runes))
	}

	end := v.scrollY + v.height
	if v.scrollY >= len(wrapped) {
		return nil
	}
	if end > len(wrapped) {
		end = len(wrapped)
	}
	return wrapped[v.scrollY:end]
}

func (v *Viewport) clampScroll() {
	maxY := v.maxScrollY()
	if v.scrollY > maxY {
		v.scrollY = maxY
	}
	if v.scrollY < 0 {
		v.scrollY = 0
	}
}

func (v *Viewport) maxScrollY() int {
	total := len(v.content)
	if v.wrapText && v.width > 0 {
		total = 0
		for _, line := range v.content {
			n := len([]rune(line))
			if n <= v.width {
				total++
			} else {
				total += (n + v.width - 1) / v.width
			}
		}
	}
	max := total - v.height
	if max < 0 {
		return 0
	}
	return max
}

func (v *Viewport) scrollIndicator() string {
	if len(v.content) <= v.height {
		return ""
	}

	total := len(v.content)
	pos := v.scrollY
	pct := 0
	if total > 0 {
		pct = (pos * 100) / total
	}

	rule := v.width - 20
	if rule < 0 {
		rule = 0
	}
	return StyleDimmed.Render(
		strings.Repeat("─", rule) +
			" " + strconv.Itoa(pct) + "% " +
			"(" + strconv.Itoa(pos+1) + "/" + strconv.Itoa(total) + ")")
}
