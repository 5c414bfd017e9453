package tui

import (
	"github.com/DachengChen/paiViz/agent"
	tea "github.com/charmbracelet/bubbletea"
)

// Start launches the full-screen chat interface over a started agent.
func Start(ag *agent.Agent) error {
	p := tea.NewProgram(NewApp(ag), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
