package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// TurnError is the recorded failure descriptor of a turn.
type TurnError struct {
	// Stage is "synthesis" or "execution".
	Stage string `json:"stage"`

	// Kind is the taxonomy kind within that stage.
	Kind string `json:"kind"`

	Message string `json:"message"`
}

// Turn is one completed question/answer exchange, successful or failed.
type Turn struct {
	// Index is the position within the session, assigned on append.
	Index int

	Question string

	// Plan is the synthesized query plan; nil when synthesis failed.
	Plan *Plan

	// SQL is the executed statement; empty when execution never ran.
	SQL string

	// Viz holds the classified result; nil on failure.
	Viz *VisualizationSpec

	// Narrative is the optional plain-language summary.
	Narrative string

	// Suggestions are optional follow-up questions.
	Suggestions []string

	// Err describes the failure; nil on success.
	Err *TurnError

	CreatedAt time.Time
	Elapsed   time.Duration
}

func (t Turn) Failed() bool { return t.Err != nil }

// Session is an append-only conversation history. Safe for concurrent
// use; turns are never modified after append.
type Session struct {
	ID string

	mu        sync.Mutex
	turns     []Turn
	clock     clockwork.Clock
	createdAt time.Time
}

// NewSession creates an empty session with a fresh ID.
func NewSession(clock clockwork.Clock) *Session {
	return &Session{
		ID:        uuid.NewString(),
		clock:     clock,
		createdAt: clock.Now(),
	}
}

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Len returns the number of recorded turns.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// AppendTurn records a completed turn, assigning its index and
// timestamp, and returns the stored value.
func (s *Session) AppendTurn(t Turn) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.Index = len(s.turns)
	t.CreatedAt = s.clock.Now()
	s.turns = append(s.turns, t)
	return t
}

// RecentContext returns up to limit most recent turns, oldest first.
// The returned slice is a copy; mutating it does not touch the session.
func (s *Session) RecentContext(limit int) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || len(s.turns) == 0 {
		return nil
	}
	start := len(s.turns) - limit
	if start < 0 {
		start = 0
	}

	out := make([]Turn, len(s.turns)-start)
	copy(out, s.turns[start:])
	return out
}

// Turns returns a copy of the full history, oldest first.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// LastTurn returns the most recent turn, if any.
func (s *Session) LastTurn() (Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.turns) == 0 {
		return Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

// Clear drops the history while keeping the session ID.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}
