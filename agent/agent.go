// Package agent implements the conversational analytics pipeline: one
// question in, one classified (or failed) turn out.
//
// Design decisions:
//   - A turn runs sequentially: synthesize, execute, classify, narrate.
//     Sessions are independent; concurrent turns on different sessions
//     never share mutable state.
//   - Every finished turn is appended to its session, failures included,
//     so follow-ups can reference what went wrong. Cancellation is the
//     one exception: an aborted turn leaves the session untouched.
//   - Respond returns an error only for cancellation. Pipeline failures
//     come back inside the turn's Err descriptor.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/DachengChen/paiViz/ai"
	"github.com/DachengChen/paiViz/config"
	"github.com/DachengChen/paiViz/dataset"
)

// Agent orchestrates the per-turn pipeline over one dataset and one
// completion provider. Safe for concurrent use across sessions.
type Agent struct {
	provider ai.Provider
	ds       dataset.Dataset
	cfg      config.AgentConfig
	log      *slog.Logger
	clock    clockwork.Clock

	synth *Synthesizer
	exec  *Executor
}

// New wires an agent with the real clock.
func New(provider ai.Provider, ds dataset.Dataset, cfg config.AgentConfig, log *slog.Logger) *Agent {
	return NewWithClock(provider, ds, cfg, log, clockwork.NewRealClock())
}

// NewWithClock is New with an injectable clock for tests.
func NewWithClock(provider ai.Provider, ds dataset.Dataset, cfg config.AgentConfig, log *slog.Logger, clock clockwork.Clock) *Agent {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Agent{
		provider: provider,
		ds:       ds,
		cfg:      cfg,
		log:      log,
		clock:    clock,
		synth:    NewSynthesizer(provider, cfg.CompletionTimeout, log),
		exec:     NewExecutor(ds, cfg.RowCap, cfg.QueryTimeout, log),
	}
}

// NewSession starts an empty conversation.
func (a *Agent) NewSession() *Session {
	return NewSession(a.clock)
}

// Dataset exposes the underlying dataset for surfaces that show schema
// details alongside the conversation.
func (a *Agent) Dataset() dataset.Dataset { return a.ds }

// Provider names the completion backend in use.
func (a *Agent) Provider() string { return a.provider.Name() }

// Respond runs one full turn for the question and appends the outcome
// to the session.
//
// The returned error is non-nil only when ctx ended first; in that case
// nothing is appended. Every other failure is recorded as a failed turn
// and returned with a nil error.
func (a *Agent) Respond(ctx context.Context, sess *Session, question string) (Turn, error) {
	started := a.clock.Now()
	question = strings.TrimSpace(question)

	if question == "" {
		return a.recordFailure(sess, question, started, &TurnError{
			Stage:   "synthesis",
			Kind:    string(SynthesisUnparseable),
			Message: "empty question",
		}, nil, "")
	}

	history := sess.RecentContext(a.cfg.ContextWindow)
	schema := a.ds.Schema()

	plan, err := a.synth.Synthesize(ctx, question, schema, a.ds.Backend(), history)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Turn{}, ctxErr
		}
		return a.recordFailure(sess, question, started, turnErrorFrom(err), nil, "")
	}

	rs, err := a.exec.Execute(ctx, plan)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Turn{}, ctxErr
		}
		return a.recordFailure(sess, question, started, turnErrorFrom(err), plan, "")
	}

	viz := Classify(rs)
	turn := Turn{
		Question: question,
		Plan:     plan,
		SQL:      rs.SQL,
		Viz:      &viz,
		Elapsed:  a.clock.Now().Sub(started),
	}

	if a.cfg.Narrative && !rs.Empty() {
		turn.Narrative = a.narrate(ctx, question, rs)
	}
	if a.cfg.Suggestions {
		turn.Suggestions = a.suggestFollowUps(ctx, question, rs)
	}

	stored := sess.AppendTurn(turn)
	a.log.Info("turn completed",
		"session", sess.ID,
		"turn", stored.Index,
		"shape", viz.Shape,
		"strategy", viz.Strategy,
		"rows", rs.RowCount(),
	)
	return stored, nil
}

func (a *Agent) recordFailure(sess *Session, question string, started time.Time, terr *TurnError, plan *Plan, sql string) (Turn, error) {
	turn := Turn{
		Question: question,
		Plan:     plan,
		SQL:      sql,
		Err:      terr,
		Elapsed:  a.clock.Now().Sub(started),
	}
	stored := sess.AppendTurn(turn)
	a.log.Warn("turn failed",
		"session", sess.ID,
		"turn", stored.Index,
		"stage", terr.Stage,
		"kind", terr.Kind,
		"message", terr.Message,
	)
	return stored, nil
}

// turnErrorFrom flattens a pipeline error into the recorded descriptor.
func turnErrorFrom(err error) *TurnError {
	var se *SynthesisError
	if errors.As(err, &se) {
		return &TurnError{Stage: "synthesis", Kind: string(se.Kind), Message: se.Message}
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return &TurnError{Stage: "execution", Kind: string(ee.Kind), Message: ee.Message}
	}
	return &TurnError{Stage: "agent", Kind: "internal", Message: err.Error()}
}
