// app.go is the root Bubble Tea model for the chat interface.
//
// Layout:
//   header bar (logo, dataset backend, provider, terminal size)
//   bordered frame: tables sidebar │ transcript viewport / input line
//   status bar (command prompt, transient messages, key help)
//
// Key design decisions:
//   - One conversation per run; `:clear` starts a fresh session
//   - Turns run in background tea.Cmds, the UI never blocks
//   - Command mode (`:`) for psql-like commands
//   - Help overlay toggled with `?` or `:help`
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/DachengChen/paiViz/agent"
	"github.com/DachengChen/paiViz/dataset"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
)

const appVersion = "0.1.0"

// InputMode determines what keystrokes do.
type InputMode int

const (
	ModeNormal InputMode = iota
	ModeCommand
)

// Focus cycle for the three panes.
const (
	focusInput = iota
	focusSidebar
	focusTranscript
)

// KeyBinding describes a keyboard shortcut for the status bar.
type KeyBinding struct {
	Key  string
	Desc string
}

// App is the root Bubble Tea model.
type App struct {
	agent *agent.Agent
	sess  *agent.Session

	// Sidebar state
	schema   dataset.Schema
	tableIdx int

	// Transcript and input state
	viewport *Viewport
	input    string
	history  []string
	histIdx  int
	pending  string // question of the in-flight turn
	thinking bool

	// UI state
	width     int
	height    int
	focus     int
	mode      InputMode
	cmdInput  string
	showHelp  bool
	statusMsg string
}

// NewApp creates the chat application over a started agent.
func NewApp(ag *agent.Agent) *App {
	return &App{
		agent:    ag,
		sess:     ag.NewSession(),
		schema:   ag.Dataset().Schema(),
		viewport: NewViewport(80, 20),
		histIdx:  -1,
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.refreshTranscript()
		a.viewport.End()
		return a, nil

	case TurnDoneMsg:
		a.thinking = false
		a.pending = ""
		if msg.Err != nil {
			a.statusMsg = StyleError.Render("turn canceled: " + msg.Err.Error())
		}
		a.refreshTranscript()
		a.viewport.End()
		return a, nil

	case ReloadDoneMsg:
		if msg.Err != nil {
			a.statusMsg = StyleError.Render("reload failed: " + msg.Err.Error())
		} else {
			a.schema = a.agent.Dataset().Schema()
			a.statusMsg = StyleSuccess.Render("dataset reloaded")
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

// refreshTranscript rebuilds the viewport from the session, so resizes
// and new turns always re-render consistently.
func (a *App) refreshTranscript() {
	width := a.transcriptWidth()

	var lines []string
	turns := a.sess.Turns()
	if len(turns) == 0 && !a.thinking {
		lines = a.welcomeLines()
	}
	for _, t := range turns {
		lines = append(lines, RenderTurn(t, width)...)
	}
	if a.thinking {
		lines = append(lines,
			styleUser.Render("You: ")+a.pending,
			StyleDimmed.Render("⏳ thinking…"))
	}
	a.viewport.SetContentLines(lines)
}

func (a *App) welcomeLines() []string {
	return []string{
		StyleBold.Render("🐘 paiViz") + StyleDimmed.Render(" v"+appVersion),
		"",
		"Ask a question about the Olist e-commerce dataset.",
		"",
		StyleDimmed.Render(`Try "top 5 product categories by revenue" or`),
		StyleDimmed.Render(`"how did monthly revenue trend in 2017?".`),
		"",
		StyleDimmed.Render("Type : for commands (:help lists them)."),
	}
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.mode == ModeCommand {
		return a.handleCommandMode(msg)
	}

	switch msg.String() {
	case "ctrl+c":
		return a, tea.Quit
	case "tab":
		a.focus = (a.focus + 1) % 3
		return a, nil
	case "shift+tab":
		a.focus--
		if a.focus < 0 {
			a.focus = 2
		}
		return a, nil
	case "esc":
		if a.showHelp {
			a.showHelp = false
		} else {
			a.refreshTranscript()
			a.viewport.End()
		}
		return a, nil
	case "pgup":
		a.viewport.PageUp()
		return a, nil
	case "pgdown":
		a.viewport.PageDown()
		return a, nil
	}

	if a.showHelp {
		if msg.String() == "?" {
			a.showHelp = false
		}
		return a, nil
	}

	switch a.focus {
	case focusSidebar:
		return a.handleSidebarKey(msg)
	case focusTranscript:
		return a.handleTranscriptKey(msg)
	default:
		return a.handleInputKey(msg)
	}
}

func (a *App) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case ":":
		a.mode = ModeCommand
		a.cmdInput = ""
	case "?":
		a.showHelp = !a.showHelp
	case "up", "k":
		if a.tableIdx > 0 {
			a.tableIdx--
		}
	case "down", "j":
		if a.tableIdx < len(a.schema.Tables)-1 {
			a.tableIdx++
		}
	case "home":
		a.tableIdx = 0
	case "end":
		if n := len(a.schema.Tables); n > 0 {
			a.tableIdx = n - 1
		}
	case "enter":
		if a.tableIdx < len(a.schema.Tables) {
			a.showSchema(a.schema.Tables[a.tableIdx].Name)
		}
	}
	return a, nil
}

func (a *App) handleTranscriptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case ":":
		a.mode = ModeCommand
		a.cmdInput = ""
	case "?":
		a.showHelp = !a.showHelp
	case "up", "k":
		a.viewport.ScrollUp(1)
	case "down", "j":
		a.viewport.ScrollDown(1)
	case "left", "h":
		a.viewport.ScrollLeft(4)
	case "right", "l":
		a.viewport.ScrollRight(4)
	case "home":
		a.viewport.Home()
	case "end":
		a.viewport.End()
	case "w":
		a.viewport.ToggleWrap()
	}
	return a, nil
}

func (a *App) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case ":":
		if a.input == "" {
			a.mode = ModeCommand
			a.cmdInput = ""
			return a, nil
		}
		a.input += ":"
	case "enter":
		return a, a.submit()
	case "up":
		if len(a.history) > 0 {
			if a.histIdx < len(a.history)-1 {
				a.histIdx++
			}
			a.input = a.history[a.histIdx]
		}
	case "down":
		if a.histIdx > 0 {
			a.histIdx--
			a.input = a.history[a.histIdx]
		} else {
			a.histIdx = -1
			a.input = ""
		}
	case "backspace":
		if runes := []rune(a.input); len(runes) > 0 {
			a.input = string(runes[:len(runes)-1])
		}
	default:
		if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
			a.input += msg.String()
			a.statusMsg = ""
		}
	}
	return a, nil
}

// submit starts an agent turn in the background.
func (a *App) submit() tea.Cmd {
	question := strings.TrimSpace(a.input)
	if question == "" || a.thinking {
		return nil
	}

	a.history = append([]string{question}, a.history...)
	a.histIdx = -1
	a.input = ""
	a.pending = question
	a.thinking = true
	a.statusMsg = ""
	a.refreshTranscript()
	a.viewport.End()

	ag, sess := a.agent, a.sess
	return func() tea.Msg {
		turn, err := ag.Respond(context.Background(), sess, question)
		return TurnDoneMsg{Turn: turn, Err: err}
	}
}

func (a *App) handleCommandMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		cmd := a.executeCommand(a.cmdInput)
		a.mode = ModeNormal
		a.cmdInput = ""
		return a, cmd

	case "esc":
		a.mode = ModeNormal
		a.cmdInput = ""
		return a, nil

	case "backspace":
		if runes := []rune(a.cmdInput); len(runes) > 0 {
			a.cmdInput = string(runes[:len(runes)-1])
		}
		return a, nil

	default:
		if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
			a.cmdInput += msg.String()
		}
		return a, nil
	}
}

func (a *App) executeCommand(input string) tea.Cmd {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(input), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "q", "quit":
		return tea.Quit
	case "help":
		a.showHelp = true
	case "tables":
		a.showTables()
	case "schema":
		if arg == "" && a.tableIdx < len(a.schema.Tables) {
			arg = a.schema.Tables[a.tableIdx].Name
		}
		a.showSchema(arg)
	case "sql":
		a.showSQL()
	case "clear":
		a.sess = a.agent.NewSession()
		a.refreshTranscript()
		a.statusMsg = StyleSuccess.Render("started a new conversation")
	case "reload":
		if a.thinking {
			a.statusMsg = StyleWarning.Render("wait for the current turn to finish")
			return nil
		}
		return a.reload()
	case "":
	default:
		a.statusMsg = StyleError.Render("unknown command: " + cmd)
	}
	return nil
}

func (a *App) showTables() {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Rows", "Columns"})
	for _, tb := range a.schema.Tables {
		t.AppendRow(table.Row{tb.Name, agent.FormatRowCount(tb.RowCount), len(tb.Columns)})
	}

	lines := append([]string{StyleBold.Render("Dataset tables"), ""},
		strings.Split(t.Render(), "\n")...)
	a.viewport.SetContentLines(lines)
	a.viewport.Home()
}

func (a *App) showSchema(name string) {
	tb, ok := a.schema.Table(name)
	if !ok {
		a.statusMsg = StyleError.Render("unknown table: " + name)
		return
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Column", "Type", "Samples"})
	for _, col := range tb.Columns {
		t.AppendRow(table.Row{col.Name, col.Type, strings.Join(col.Samples, ", ")})
	}

	header := StyleBold.Render(tb.Name) +
		StyleDimmed.Render("  "+agent.FormatRowCount(tb.RowCount)+" rows")
	lines := append([]string{header, ""}, strings.Split(t.Render(), "\n")...)
	a.viewport.SetContentLines(lines)
	a.viewport.Home()
}

func (a *App) showSQL() {
	last, ok := a.sess.LastTurn()
	if !ok || last.SQL == "" {
		a.statusMsg = "no generated SQL yet"
		return
	}

	lines := []string{StyleBold.Render("Last generated SQL"), ""}
	lines = append(lines, strings.Split(last.SQL, "\n")...)
	if last.Plan != nil && last.Plan.Description != "" {
		lines = append(lines, "", StyleDimmed.Render(last.Plan.Description))
	}
	a.viewport.SetContentLines(lines)
	a.viewport.Home()
}

func (a *App) reload() tea.Cmd {
	a.statusMsg = "reloading dataset…"
	ds := a.agent.Dataset()
	return func() tea.Msg {
		return ReloadDoneMsg{Err: ds.Reload(context.Background())}
	}
}

func (a *App) sidebarWidth() int {
	w := (a.width - 2) / 5
	if w < 20 {
		w = 20
	}
	return w
}

// transcriptWidth is the usable line width inside the viewport.
func (a *App) transcriptWidth() int {
	w := a.width - 2 - a.sidebarWidth() - 5
	if w < 20 {
		w = 20
	}
	return w
}

// View implements tea.Model.
func (a *App) View() string {
	if a.width == 0 {
		return "loading..."
	}

	header := a.renderHeader()

	var inner string
	if a.showHelp {
		inner = a.renderHelp()
	} else {
		inner = a.renderMain()
	}

	frameHeight := a.height - 4
	if frameHeight < 0 {
		frameHeight = 0
	}
	frame := StyleBorder.
		Width(a.width - 2).
		Height(frameHeight).
		Render(inner)

	return header + "\n" + frame + "\n" + a.renderStatusBar()
}

func (a *App) renderMain() string {
	innerW := a.width - 2
	innerH := a.height - 4
	sidebarW := a.sidebarWidth()
	contentW := innerW - sidebarW - 1
	inputH := 2
	transcriptH := innerH - inputH - 1
	if transcriptH < 3 {
		transcriptH = 3
	}

	sidebar := a.renderSidebar(sidebarW, innerH)

	a.viewport.SetSize(contentW-2, transcriptH-1)
	borderColor := ColorDim
	transcriptFocus := "  "
	if a.focus == focusTranscript {
		borderColor = ColorAccent
		transcriptFocus = lipgloss.NewStyle().Foreground(ColorAccent).Render(" ●")
	}
	transcript := lipgloss.NewStyle().
		Width(contentW).
		Height(transcriptH).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(borderColor).
		Render(transcriptFocus + a.viewport.Render())

	right := lipgloss.JoinVertical(lipgloss.Left, transcript, a.renderInput(contentW, inputH))
	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, right)
}

func (a *App) renderSidebar(width, height int) string {
	headerStyle := StyleBold.BorderBottom(true).BorderForeground(ColorDim).Width(width - 2)
	title := "   Tables"
	if a.focus == focusSidebar {
		title = lipgloss.NewStyle().Foreground(ColorAccent).Render(" ●") + " Tables"
	}
	list := []string{headerStyle.Render(title)}

	if len(a.schema.Tables) == 0 {
		list = append(list, StyleDimmed.Render(" (no tables)"))
	}
	for i, tb := range a.schema.Tables {
		display := tb.Name + " (" + agent.FormatRowCount(tb.RowCount) + ")"
		if runes := []rune(display); len(runes) > width-4 {
			display = string(runes[:width-4]) + "…"
		}
		switch {
		case i == a.tableIdx && a.focus == focusSidebar:
			list = append(list, StyleListItemActive.Render("▸ "+display))
		case i == a.tableIdx:
			list = append(list, StyleDimmed.Render("▸ "+display))
		default:
			list = append(list, StyleDimmed.Render("  "+display))
		}
	}

	// Pad so the border extends to the bottom
	for len(list) < height {
		list = append(list, "")
	}

	borderColor := ColorDim
	if a.focus == focusSidebar {
		borderColor = ColorAccent
	}
	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		Border(lipgloss.NormalBorder(), false, true, false, false).
		BorderForeground(borderColor).
		Render(strings.Join(list, "\n"))
}

func (a *App) renderInput(width, height int) string {
	focus := "  "
	if a.focus == focusInput {
		focus = lipgloss.NewStyle().Foreground(ColorAccent).Render("● ")
	}

	prompt := StylePrompt.Render("Ask> ")
	text := a.input
	switch {
	case a.thinking:
		text = StyleDimmed.Render("⏳ thinking…")
	case a.focus == focusInput:
		text += "█"
	case a.input == "":
		text = StyleDimmed.Render("(press tab to focus input)")
	default:
		text = StyleDimmed.Render(text)
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		Padding(0, 1).
		Render(focus + prompt + text)
}

// renderHeader draws a simple text bar: logo + version + dataset info.
func (a *App) renderHeader() string {
	logo := StyleBold.Render("🐘 paiViz")
	version := StyleDimmed.Render(" v" + appVersion)

	info := StyleSuccess.Render(fmt.Sprintf("  ⚡ %s (%d tables)",
		a.agent.Dataset().Backend(), len(a.schema.Tables))) +
		StyleDimmed.Render("  │  "+a.agent.Provider())

	content := logo + version + info

	// Fill gap to right align dimensions
	right := StyleDimmed.Render(fmt.Sprintf("%d×%d", a.width, a.height))
	gap := a.width - lipgloss.Width(content) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}

	return lipgloss.NewStyle().
		Width(a.width).
		Render(content + strings.Repeat(" ", gap) + right)
}

func (a *App) renderStatusBar() string {
	var content string

	switch {
	case a.mode == ModeCommand:
		content = StylePrompt.Render(":") + a.cmdInput + "█"
	case a.statusMsg != "":
		content = a.statusMsg
	default:
		var parts []string
		for _, h := range a.helpItems() {
			parts = append(parts,
				StyleHelpKey.Render(h.Key)+" "+StyleHelpDesc.Render(h.Desc))
		}
		content = strings.Join(parts, "  │  ")
	}

	return StyleStatusBar.Width(a.width).Render(content)
}

func (a *App) helpItems() []KeyBinding {
	global := []KeyBinding{
		{Key: ":", Desc: "command"},
		{Key: "Tab", Desc: "focus"},
		{Key: "Ctrl+C", Desc: "quit"},
	}
	switch a.focus {
	case focusSidebar:
		return append([]KeyBinding{
			{Key: "↑/↓", Desc: "navigate"},
			{Key: "Enter", Desc: "schema"},
		}, global...)
	case focusTranscript:
		return append([]KeyBinding{
			{Key: "↑/↓", Desc: "scroll"},
			{Key: "w", Desc: "wrap"},
		}, global...)
	default:
		return append([]KeyBinding{
			{Key: "Enter", Desc: "ask"},
			{Key: "↑/↓", Desc: "history"},
		}, global...)
	}
}

func (a *App) renderHelp() string {
	help := []string{
		StyleTitle.Render("⌨ paiViz Keyboard Shortcuts"),
		"",
		StyleHelpKey.Render("Tab / Shift+Tab") + "  Cycle focus (input, tables, transcript)",
		StyleHelpKey.Render("Enter") + "            Ask the typed question",
		StyleHelpKey.Render("↑/↓") + "              Input history, or scroll",
		StyleHelpKey.Render("PgUp/PgDn") + "        Page through the transcript",
		StyleHelpKey.Render("w") + "                Toggle line wrapping (transcript)",
		StyleHelpKey.Render("Ctrl+C") + "           Quit",
		"",
		StyleTitle.Render("Commands"),
		"",
		StyleHelpKey.Render(":tables") + "          List dataset tables",
		StyleHelpKey.Render(":schema [table]") + "  Show a table's columns and samples",
		StyleHelpKey.Render(":sql") + "             Show the last generated SQL",
		StyleHelpKey.Render(":reload") + "          Reload the dataset",
		StyleHelpKey.Render(":clear") + "           Start a new conversation",
		StyleHelpKey.Render(":quit") + "            Quit",
		"",
		StyleDimmed.Render("Press esc to close"),
	}

	contentHeight := a.height - 5
	if contentHeight < 0 {
		contentHeight = 0
	}
	return lipgloss.NewStyle().
		Width(a.width - 4).
		Height(contentHeight).
		Padding(1, 2).
		Render(strings.Join(help, "\n"))
}
