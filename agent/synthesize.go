package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DachengChen/paiViz/ai"
	"github.com/DachengChen/paiViz/dataset"
)

// Synthesizer turns a question plus conversation context into a
// validated query plan.
type Synthesizer struct {
	provider ai.Provider
	log      *slog.Logger
	timeout  time.Duration
}

func NewSynthesizer(provider ai.Provider, timeout time.Duration, log *slog.Logger) *Synthesizer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Synthesizer{provider: provider, timeout: timeout, log: log}
}

// Synthesize asks the completion service for a plan and validates it.
// An unparseable first reply gets exactly one corrective retry. Errors
// are *SynthesisError, except user cancellation which passes through.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, schema dataset.Schema, backend string, history []Turn) (*Plan, error) {
	system := planSystemPrompt(schema, backend, history)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.provider.Complete(callCtx, system, question)
	if err != nil {
		return nil, completionError(ctx, err)
	}

	plan, parseErr := ParsePlan(reply)
	if parseErr != nil {
		s.log.Warn("plan unparseable, retrying once", "provider", s.provider.Name(), "error", parseErr)

		// The retry gets its own deadline; the first call may have
		// spent most of the budget.
		retryCtx, cancelRetry := context.WithTimeout(ctx, s.timeout)
		defer cancelRetry()

		reply, err = s.provider.Complete(retryCtx, system, correctionPrompt(question, reply, parseErr))
		if err != nil {
			return nil, completionError(ctx, err)
		}
		plan, parseErr = ParsePlan(reply)
		if parseErr != nil {
			return nil, &SynthesisError{
				Kind:    SynthesisUnparseable,
				Message: "the completion service did not produce a usable plan",
				Err:     parseErr,
			}
		}
	}

	if plan.Clarification != "" {
		return nil, &SynthesisError{Kind: SynthesisAmbiguousIntent, Message: plan.Clarification}
	}
	if err := plan.Validate(schema); err != nil {
		return nil, &SynthesisError{Kind: SynthesisUnknownReference, Message: err.Error()}
	}

	return plan, nil
}

// completionError maps provider failures onto the synthesis taxonomy.
// When the caller's own context ended, its error passes through so a
// user abort never reads as a failed turn.
func completionError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var svcErr *ai.ServiceError
	if errors.As(err, &svcErr) {
		return &SynthesisError{
			Kind:    SynthesisTimeout,
			Message: "completion service " + string(svcErr.Kind),
			Err:     svcErr,
		}
	}
	return &SynthesisError{Kind: SynthesisTimeout, Message: "completion service failed", Err: err}
}
