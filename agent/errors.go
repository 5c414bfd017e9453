package agent

import "fmt"

// SynthesisErrorKind categorizes plan synthesis failures.
type SynthesisErrorKind string

const (
	// SynthesisUnparseable means no usable plan came back, even after
	// the corrective retry.
	SynthesisUnparseable SynthesisErrorKind = "unparseable"

	// SynthesisUnknownReference means the plan names tables or columns
	// that do not exist in the dataset.
	SynthesisUnknownReference SynthesisErrorKind = "unknown_reference"

	// SynthesisAmbiguousIntent means the question needs clarification
	// before a plan can be produced.
	SynthesisAmbiguousIntent SynthesisErrorKind = "ambiguous_intent"

	// SynthesisTimeout covers completion service trouble: timeouts,
	// rate limits and outages.
	SynthesisTimeout SynthesisErrorKind = "timeout"
)

// SynthesisError reports why no executable plan could be produced.
type SynthesisError struct {
	Kind    SynthesisErrorKind
	Message string
	Err     error
}

func (e *SynthesisError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("plan synthesis %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("plan synthesis %s", e.Kind)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// ExecutionErrorKind categorizes query execution failures.
type ExecutionErrorKind string

const (
	// ExecutionResourceExceeded means the plan was refused before it
	// could hog the dataset (e.g. an unconstrained join).
	ExecutionResourceExceeded ExecutionErrorKind = "resource_exceeded"

	// ExecutionTimeout means the query ran past its deadline.
	ExecutionTimeout ExecutionErrorKind = "timeout"

	// ExecutionInvalidReference means the plan no longer matches the
	// dataset schema at execution time.
	ExecutionInvalidReference ExecutionErrorKind = "invalid_reference"

	// ExecutionDataset covers backend errors while running the query.
	ExecutionDataset ExecutionErrorKind = "dataset_error"
)

// ExecutionError reports why a plan could not be executed.
type ExecutionError struct {
	Kind    ExecutionErrorKind
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("query execution %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("query execution %s", e.Kind)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
