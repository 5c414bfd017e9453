package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DachengChen/paiViz/dataset"
)

// Executor runs validated plans against the dataset under a row cap and
// a deadline.
type Executor struct {
	ds      dataset.Dataset
	log     *slog.Logger
	rowCap  int
	timeout time.Duration
}

func NewExecutor(ds dataset.Dataset, rowCap int, timeout time.Duration, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Executor{ds: ds, rowCap: rowCap, timeout: timeout, log: log}
}

// Execute revalidates the plan against the current schema, generates
// SQL and collects the result. Errors are *ExecutionError, except user
// cancellation which passes through.
//
// One row beyond the cap is requested so truncation by the cap can be
// told apart from a result that exactly fills it.
func (e *Executor) Execute(ctx context.Context, plan *Plan) (*ResultSet, error) {
	if expr := plan.unsafeExpression(); expr != "" {
		return nil, &ExecutionError{
			Kind:    ExecutionResourceExceeded,
			Message: "unsupported operation in plan expression: " + expr,
		}
	}

	// The plan may have been synthesized against an older schema.
	if err := plan.Validate(e.ds.Schema()); err != nil {
		return nil, &ExecutionError{Kind: ExecutionInvalidReference, Message: err.Error()}
	}

	fetch := *plan
	userLimited := plan.Limit > 0 && plan.Limit <= e.rowCap
	if !userLimited {
		fetch.Limit = e.rowCap + 1
	}

	sql, err := fetch.ToSQL()
	if err != nil {
		if errors.Is(err, errUnconstrainedJoin) {
			return nil, &ExecutionError{
				Kind:    ExecutionResourceExceeded,
				Message: "refusing a join without a condition: " + err.Error(),
				Err:     err,
			}
		}
		return nil, &ExecutionError{Kind: ExecutionInvalidReference, Message: err.Error(), Err: err}
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.ds.Query(queryCtx, sql)
	if err != nil {
		return nil, e.queryError(ctx, err)
	}

	truncated := false
	if !userLimited && len(res.Rows) > e.rowCap {
		res.Rows = res.Rows[:e.rowCap]
		truncated = true
	}

	rs := newResultSet(res, sql, truncated)
	e.log.Debug("query executed",
		"rows", rs.RowCount(),
		"truncated", rs.Truncated,
		"duration", res.Duration,
	)
	return rs, nil
}

// queryError maps a dataset failure onto the execution taxonomy. When
// the caller's own context ended, its error passes through untouched;
// only the executor's deadline becomes ExecutionTimeout.
func (e *Executor) queryError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ExecutionError{Kind: ExecutionTimeout, Message: "query ran past its deadline", Err: err}
	}
	return &ExecutionError{Kind: ExecutionDataset, Message: err.Error(), Err: err}
}
