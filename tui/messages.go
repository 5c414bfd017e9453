// messages.go defines Bubble Tea messages used for async communication.
//
// Agent turns and dataset reloads run in background commands and send
// their results back via these message types, so the UI never blocks.
package tui

import (
	"github.com/DachengChen/paiViz/agent"
)

// TurnDoneMsg is sent when an agent turn completes, successfully or not.
// Err is only set when the turn was canceled before anything was recorded.
type TurnDoneMsg struct {
	Turn agent.Turn
	Err  error
}

// ReloadDoneMsg is sent when a dataset reload completes.
type ReloadDoneMsg struct {
	Err error
}
