// Package ai implements the completion service collaborators.
//
// Design decisions:
//   - Provider is a narrow interface (one system prompt, one user prompt,
//     one text reply) so backends are swappable without touching the agent.
//   - Providers are stateless and safe for concurrent use; conversation
//     context is the caller's job and arrives flattened inside the prompts.
//   - Transport-level failures come back as *ServiceError so callers can
//     tell transient conditions (timeout, rate limit) from everything else.
//   - Exactly one outbound request per Complete call; retry policy belongs
//     to the caller.
package ai

import (
	"context"
	"errors"
	"fmt"
)

// Provider is the interface all completion backends implement.
type Provider interface {
	// Complete sends one prompt pair and returns the model's text reply.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Name returns the provider name for display and logs.
	Name() string
}

// ServiceErrorKind categorizes completion service failures.
type ServiceErrorKind string

const (
	// ServiceTimeout means the request exceeded its deadline.
	ServiceTimeout ServiceErrorKind = "timeout"

	// ServiceRateLimited means the backend said slow down (HTTP 429).
	ServiceRateLimited ServiceErrorKind = "rate_limited"

	// ServiceUnavailable covers network failures and 5xx responses.
	ServiceUnavailable ServiceErrorKind = "unavailable"
)

// ServiceError is a categorized completion service failure.
type ServiceError struct {
	Kind    ServiceErrorKind
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("completion service %s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("completion service %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("completion service %s", e.Kind)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Transient reports whether the caller may reasonably retry.
func (e *ServiceError) Transient() bool {
	return e.Kind == ServiceTimeout || e.Kind == ServiceRateLimited
}

// serviceErrorFromStatus maps an HTTP status onto a ServiceError, or nil
// for statuses the caller should treat as success.
func serviceErrorFromStatus(provider string, status int, body string) *ServiceError {
	switch {
	case status == 200:
		return nil
	case status == 429:
		return &ServiceError{Kind: ServiceRateLimited, Message: fmt.Sprintf("%s API (%d): %s", provider, status, truncate(body, 200))}
	case status >= 500:
		return &ServiceError{Kind: ServiceUnavailable, Message: fmt.Sprintf("%s API (%d): %s", provider, status, truncate(body, 200))}
	default:
		return &ServiceError{Kind: ServiceUnavailable, Message: fmt.Sprintf("%s API (%d): %s", provider, status, truncate(body, 200))}
	}
}

// wrapTransportErr converts request errors into ServiceError, keeping
// context cancellation distinct so callers can tell a user abort from a
// deadline.
func wrapTransportErr(provider string, ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == context.Canceled {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ServiceError{Kind: ServiceTimeout, Message: provider + " request timed out", Err: err}
	}
	return &ServiceError{Kind: ServiceUnavailable, Message: provider + " request failed", Err: err}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
