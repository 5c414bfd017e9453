package agent

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionAppendAssignsIndexAndTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSession(clock)
	assert.NotEmpty(t, s.ID)

	first := s.AppendTurn(Turn{Question: "how many orders?"})
	clock.Advance(time.Minute)
	second := s.AppendTurn(Turn{Question: "and by month?"})

	assert.Equal(t, 0, first.Index)
	assert.Equal(t, 1, second.Index)
	assert.Equal(t, time.Minute, second.CreatedAt.Sub(first.CreatedAt))
	assert.Equal(t, 2, s.Len())
}

func TestSessionRecentContextOldestFirst(t *testing.T) {
	s := NewSession(clockwork.NewFakeClock())
	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		s.AppendTurn(Turn{Question: q})
	}

	recent := s.RecentContext(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "q3", recent[0].Question)
	assert.Equal(t, "q4", recent[1].Question)

	all := s.RecentContext(10)
	require.Len(t, all, 4)
	assert.Equal(t, "q1", all[0].Question)

	assert.Nil(t, s.RecentContext(0))
}

func TestSessionRecentContextIsACopy(t *testing.T) {
	s := NewSession(clockwork.NewFakeClock())
	s.AppendTurn(Turn{Question: "original"})

	recent := s.RecentContext(1)
	recent[0].Question = "mutated"

	again := s.RecentContext(1)
	assert.Equal(t, "original", again[0].Question)
}

func TestSessionFailedTurnsAreRecorded(t *testing.T) {
	s := NewSession(clockwork.NewFakeClock())
	s.AppendTurn(Turn{
		Question: "broken",
		Err:      &TurnError{Stage: "synthesis", Kind: "unknown_reference", Message: "unknown column(s): nope"},
	})

	last, ok := s.LastTurn()
	require.True(t, ok)
	assert.True(t, last.Failed())
	assert.Equal(t, "unknown_reference", last.Err.Kind)
}

func TestSessionClearKeepsID(t *testing.T) {
	s := NewSession(clockwork.NewFakeClock())
	id := s.ID
	s.AppendTurn(Turn{Question: "q"})
	s.Clear()

	assert.Equal(t, id, s.ID)
	assert.Zero(t, s.Len())
	_, ok := s.LastTurn()
	assert.False(t, ok)
}

func TestSessionConcurrentAppends(t *testing.T) {
	s := NewSession(clockwork.NewFakeClock())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AppendTurn(Turn{Question: "q"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.Len())
	turns := s.Turns()
	for i, turn := range turns {
		assert.Equal(t, i, turn.Index)
	}
}
