package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DachengChen/paiViz/ai"
	"github.com/DachengChen/paiViz/config"
	"github.com/DachengChen/paiViz/dataset"
)

type promptPair struct {
	system string
	user   string
}

// fakeProvider replays scripted replies in order and records every
// prompt pair. A scripted error is returned instead of a reply.
type fakeProvider struct {
	mu      sync.Mutex
	replies []any
	calls   []promptPair
}

var _ ai.Provider = (*fakeProvider)(nil)

func (f *fakeProvider) Complete(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, promptPair{system: system, user: user})
	if len(f.replies) == 0 {
		return "", errors.New("no scripted reply left")
	}
	next := f.replies[0]
	f.replies = f.replies[1:]
	if err, ok := next.(error); ok {
		return "", err
	}
	return next.(string), nil
}

func (f *fakeProvider) Name() string { return "Fake" }

// fakeDataset serves a fixed schema and scripted results, recording the
// SQL it receives. The last result repeats once the script runs out.
type fakeDataset struct {
	mu      sync.Mutex
	schema  dataset.Schema
	results []*dataset.Result
	err     error
	delay   time.Duration
	queries []string
}

var _ dataset.Dataset = (*fakeDataset)(nil)

func (f *fakeDataset) Schema() dataset.Schema { return f.schema }

func (f *fakeDataset) Query(ctx context.Context, query string) (*dataset.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return &dataset.Result{}, nil
	}
	res := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	// Copy the row slice so caller-side truncation cannot reach the script.
	cp := *res
	cp.Rows = append([][]any(nil), res.Rows...)
	return &cp, nil
}

func (f *fakeDataset) Reload(context.Context) error { return nil }
func (f *fakeDataset) Backend() string              { return "duckdb" }
func (f *fakeDataset) Close() error                 { return nil }

func newTestAgent(provider ai.Provider, ds dataset.Dataset, cfg config.AgentConfig) *Agent {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWithClock(provider, ds, cfg, log, clockwork.NewFakeClock())
}

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		ContextWindow:     8,
		RowCap:            200,
		CompletionTimeout: time.Second,
		QueryTimeout:      time.Second,
	}
}

const topCategoriesPlan = `{
	"tables": ["order_items", "products"],
	"joins": ["order_items.product_id = products.product_id"],
	"select": ["product_category_name", "sum(price) AS revenue"],
	"group_by": ["product_category_name"],
	"sort": {"column": "revenue", "order": "desc"},
	"limit": 5,
	"shape": "series",
	"description": "Top 5 categories by revenue"
}`

const monthlyTrendPlan = `{
	"tables": ["orders", "order_items"],
	"joins": ["orders.order_id = order_items.order_id"],
	"select": ["strftime('%Y-%m', order_purchase_timestamp) AS month", "sum(price) AS revenue"],
	"group_by": ["month"],
	"sort": {"column": "month", "order": "asc"},
	"shape": "series",
	"description": "Monthly revenue trend"
}`

const statusCountPlan = `{
	"tables": ["orders"],
	"select": ["order_status", "count(*) AS n"],
	"group_by": ["order_status"],
	"shape": "series",
	"description": "Orders by status"
}`

func categoryRevenueResult() *dataset.Result {
	return &dataset.Result{
		Columns: []string{"product_category_name", "revenue"},
		Rows: [][]any{
			{"beleza_saude", 1258681.34},
			{"relogios_presentes", 1205005.68},
			{"cama_mesa_banho", 1036988.68},
			{"esporte_lazer", 988048.97},
			{"informatica_acessorios", 911954.32},
		},
	}
}

func TestRespondCategoricalSeriesRendersBar(t *testing.T) {
	provider := &fakeProvider{replies: []any{topCategoriesPlan}}
	ds := &fakeDataset{schema: testSchema(), results: []*dataset.Result{categoryRevenueResult()}}
	a := newTestAgent(provider, ds, testAgentConfig())
	sess := a.NewSession()

	turn, err := a.Respond(context.Background(), sess, "What are the top 5 product categories by revenue?")
	require.NoError(t, err)
	require.Nil(t, turn.Err)

	require.NotNil(t, turn.Viz)
	assert.Equal(t, ShapeSeries, turn.Viz.Shape)
	assert.Equal(t, StrategyBar, turn.Viz.Strategy)
	assert.Equal(t, 0, turn.Viz.LabelColumn)
	assert.Equal(t, 1, turn.Viz.ValueColumn)

	require.Len(t, ds.queries, 1)
	assert.Contains(t, ds.queries[0], "JOIN products")
	assert.Contains(t, ds.queries[0], "LIMIT 5")
	assert.Equal(t, ds.queries[0], turn.SQL)

	assert.Equal(t, 0, turn.Index)
	assert.Equal(t, 1, sess.Len())
}

func TestRespondFollowUpUsesHistory(t *testing.T) {
	provider := &fakeProvider{replies: []any{topCategoriesPlan, monthlyTrendPlan}}
	ds := &fakeDataset{schema: testSchema(), results: []*dataset.Result{
		categoryRevenueResult(),
		{
			Columns: []string{"month", "revenue"},
			Rows: [][]any{
				{"2017-01", 120312.87},
				{"2017-02", 247303.02},
				{"2017-03", 374344.30},
			},
		},
	}}
	a := newTestAgent(provider, ds, testAgentConfig())
	sess := a.NewSession()

	_, err := a.Respond(context.Background(), sess, "What are the top 5 product categories by revenue?")
	require.NoError(t, err)

	turn, err := a.Respond(context.Background(), sess, "How did that trend month by month?")
	require.NoError(t, err)
	require.Nil(t, turn.Err)
	assert.Equal(t, ShapeSeries, turn.Viz.Shape)
	assert.Equal(t, StrategyLine, turn.Viz.Strategy)

	require.Len(t, provider.calls, 2)
	followUp := provider.calls[1].system
	assert.Contains(t, followUp, "## Conversation so far")
	assert.Contains(t, followUp, "Q1: What are the top 5 product categories by revenue?")
	assert.Contains(t, followUp, "A1: Top 5 categories by revenue")
	assert.Equal(t, 2, sess.Len())
}

func TestRespondUnknownColumnFailsWithoutQuerying(t *testing.T) {
	provider := &fakeProvider{replies: []any{
		`{"tables": ["order_items"], "select": ["sum(discount) AS total_discount"], "shape": "scalar"}`,
		`{"tables": ["orders"], "select": ["count(*) AS total"], "shape": "scalar"}`,
	}}
	ds := &fakeDataset{schema: testSchema(), results: []*dataset.Result{{
		Columns: []string{"total"},
		Rows:    [][]any{{int64(99441)}},
	}}}
	a := newTestAgent(provider, ds, testAgentConfig())
	sess := a.NewSession()

	turn, err := a.Respond(context.Background(), sess, "What was the total discount?")
	require.NoError(t, err)
	require.NotNil(t, turn.Err)
	assert.Equal(t, "synthesis", turn.Err.Stage)
	assert.Equal(t, string(SynthesisUnknownReference), turn.Err.Kind)
	assert.Contains(t, turn.Err.Message, "discount")
	assert.Nil(t, turn.Plan)
	assert.Empty(t, ds.queries)
	assert.Equal(t, 1, sess.Len())

	next, err := a.Respond(context.Background(), sess, "How many orders are there?")
	require.NoError(t, err)
	assert.Nil(t, next.Err)
	assert.Equal(t, StrategyMetric, next.Viz.Strategy)
	assert.Equal(t, 2, sess.Len())
}

func TestRespondEmptyResultIsNoticeNotError(t *testing.T) {
	provider := &fakeProvider{replies: []any{
		`{"tables": ["orders"], "select": ["order_id", "order_status"], "filters": ["order_status = 'on_hold'"], "shape": "table"}`,
	}}
	ds := &fakeDataset{schema: testSchema(), results: []*dataset.Result{{
		Columns: []string{"order_id", "order_status"},
	}}}
	a := newTestAgent(provider, ds, testAgentConfig())
	sess := a.NewSession()

	turn, err := a.Respond(context.Background(), sess, "Show orders that are on hold")
	require.NoError(t, err)
	assert.Nil(t, turn.Err)
	assert.Equal(t, ShapeEmpty, turn.Viz.Shape)
	assert.Equal(t, StrategyNotice, turn.Viz.Strategy)
	assert.Len(t, ds.queries, 1)
}

func TestRespondServiceTimeoutRecordsSynthesisFailure(t *testing.T) {
	provider := &fakeProvider{replies: []any{
		&ai.ServiceError{Kind: ai.ServiceTimeout, Message: "request timed out"},
		topCategoriesPlan,
	}}
	ds := &fakeDataset{schema: testSchema(), results: []*dataset.Result{categoryRevenueResult()}}
	a := newTestAgent(provider, ds, testAgentConfig())
	sess := a.NewSession()

	turn, err := a.Respond(context.Background(), sess, "What are the top 5 product categories by revenue?")
	require.NoError(t, err)
	require.NotNil(t, turn.Err)
	assert.Equal(t, "synthesis", turn.Err.Stage)
	assert.Equal(t, string(SynthesisTimeout), turn.Err.Kind)
	assert.Contains(t, turn.Err.Message, "completion service")
	assert.Nil(t, turn.Plan)
	assert.Equal(t, 1, sess.Len())

	next, err := a.Respond(context.Background(), sess, "What are the top 5 product categories by revenue?")
	require.NoError(t, err)
	assert.Nil(t, next.Err)
	assert.Equal(t, 2, sess.Len())
}

func TestRespondCancellationLeavesSessionUnchanged(t *testing.T) {
	provider := &fakeProvider{replies: []any{topCategoriesPlan}}
	ds := &fakeDataset{schema: testSchema()}
	a := newTestAgent(provider, ds, testAgentConfig())
	sess := a.NewSession()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Respond(ctx, sess, "What are the top 5 product categories by revenue?")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, sess.Len())
	assert.Empty(t, provider.calls)
}

func TestRespondRetriesOnceOnUnparseableReply(t *testing.T) {
	provider := &fakeProvider{replies: []any{
		"I think you want revenue by category.",
		topCategoriesPlan,
	}}
	ds := &fakeDataset{schema: testSchema(), results: []*dataset.Result{categoryRevenueResult()}}
	a := newTestAgent(provider, ds, testAgentConfig())
	sess := a.NewSession()

	turn, err := a.Respond(context.Background(), sess, "What are the top 5 product categories by revenue?")
	require.NoError(t, err)
	assert.Nil(t, turn.Err)

	require.Len(t, provider.calls, 2)
	assert.Contains(t, provider.calls[1].user, "could not be used")
	assert.Contains(t, provider.calls[1].user, "What are the top 5 product categories by revenue?")
}

func TestRespondGivesUpAfterSecondUnparseableReply(t *testing.T) {
	provider := &fakeProvider{replies: []any{"no plan here", "still no plan"}}
	ds := &fakeDataset{schema: testSchema()}
	a := newTestAgent(provider, ds, testAgentConfig())
	sess := a.NewSession()

	turn, err := a.Respond(context.Background(), sess, "What are the top categories?")
	require.NoError(t, err)
	require.NotNil(t, turn.Err)
	assert.Equal(t, string(SynthesisUnparseable), turn.Err.Kind)
	assert.Len(t, provider.calls, 2)
	assert.Empty(t, ds.queries)
}

func TestRespondClarificationIsAmbiguousIntent(t *testing.T) {
	provider := &fakeProvider{replies: []any{
		`{"clarification": "Which year should the revenue cover?"}`,
	}}
	ds := &fakeDataset{schema: testSchema()}
	a := newTestAgent(provider, ds, testAgentConfig())
	sess := a.NewSession()

	turn, err := a.Respond(context.Background(), sess, "How much revenue?")
	require.NoError(t, err)
	require.NotNil(t, turn.Err)
	assert.Equal(t, "synthesis", turn.Err.Stage)
	assert.Equal(t, string(SynthesisAmbiguousIntent), turn.Err.Kind)
	assert.Equal(t, "Which year should the revenue cover?", turn.Err.Message)
	assert.Empty(t, ds.queries)
}

func TestRespondDatasetErrorRecordsExecutionFailure(t *testing.T) {
	provider := &fakeProvider{replies: []any{statusCountPlan}}
	ds := &fakeDataset{schema: testSchema(), err: errors.New("catalog error: table vanished")}
	a := newTestAgent(provider, ds, testAgentConfig())
	sess := a.NewSession()

	turn, err := a.Respond(context.Background(), sess, "Orders by status")
	require.NoError(t, err)
	require.NotNil(t, turn.Err)
	assert.Equal(t, "execution", turn.Err.Stage)
	assert.Equal(t, string(ExecutionDataset), turn.Err.Kind)
	assert.Contains(t, turn.Err.Message, "catalog error")
	assert.NotNil(t, turn.Plan)
}

func TestRespondQueryTimeout(t *testing.T) {
	cfg := testAgentConfig()
	cfg.QueryTimeout = 20 * time.Millisecond

	provider := &fakeProvider{replies: []any{statusCountPlan}}
	ds := &fakeDataset{schema: testSchema(), delay: 500 * time.Millisecond}
	a := newTestAgent(provider, ds, cfg)
	sess := a.NewSession()

	turn, err := a.Respond(context.Background(), sess, "Orders by status")
	require.NoError(t, err)
	require.NotNil(t, turn.Err)
	assert.Equal(t, "execution", turn.Err.Stage)
	assert.Equal(t, string(ExecutionTimeout), turn.Err.Kind)
}

func TestRespondRefusesUnconstrainedJoin(t *testing.T) {
	provider := &fakeProvider{replies: []any{
		`{"tables": ["orders", "order_items"], "select": ["count(*) AS n"], "shape": "scalar"}`,
	}}
	ds := &fakeDataset{schema: testSchema()}
	a := newTestAgent(provider, ds, testAgentConfig())
	sess := a.NewSession()

	turn, err := a.Respond(context.Background(), sess, "How many order lines?")
	require.NoError(t, err)
	require.NotNil(t, turn.Err)
	assert.Equal(t, "execution", turn.Err.Stage)
	assert.Equal(t, string(ExecutionResourceExceeded), turn.Err.Kind)
	assert.Empty(t, ds.queries)
}

func TestRespondRowCapTruncates(t *testing.T) {
	cfg := testAgentConfig()
	cfg.RowCap = 3

	provider := &fakeProvider{replies: []any{statusCountPlan}}
	ds := &fakeDataset{schema: testSchema(), results: []*dataset.Result{{
		Columns: []string{"order_status", "n"},
		Rows: [][]any{
			{"delivered", int64(96478)},
			{"shipped", int64(1107)},
			{"canceled", int64(625)},
			{"unavailable", int64(609)},
			{"invoiced", int64(314)},
		},
	}}}
	a := newTestAgent(provider, ds, cfg)
	sess := a.NewSession()

	turn, err := a.Respond(context.Background(), sess, "Orders by status")
	require.NoError(t, err)
	require.Nil(t, turn.Err)

	require.Len(t, ds.queries, 1)
	assert.Contains(t, ds.queries[0], "LIMIT 4")
	assert.True(t, turn.Viz.Result.Truncated)
	assert.Equal(t, 3, turn.Viz.Result.RowCount())
}

func TestRespondUserLimitWithinCapIsKept(t *testing.T) {
	cfg := testAgentConfig()
	cfg.RowCap = 3

	provider := &fakeProvider{replies: []any{
		`{"tables": ["orders"], "select": ["order_status", "count(*) AS n"], "group_by": ["order_status"], "limit": 2, "shape": "series"}`,
	}}
	ds := &fakeDataset{schema: testSchema(), results: []*dataset.Result{{
		Columns: []string{"order_status", "n"},
		Rows: [][]any{
			{"delivered", int64(96478)},
			{"shipped", int64(1107)},
		},
	}}}
	a := newTestAgent(provider, ds, cfg)
	sess := a.NewSession()

	turn, err := a.Respond(context.Background(), sess, "Top 2 statuses")
	require.NoError(t, err)
	require.Len(t, ds.queries, 1)
	assert.Contains(t, ds.queries[0], "LIMIT 2")
	assert.False(t, turn.Viz.Result.Truncated)
}

func TestRespondEmptyQuestionFailsWithoutProvider(t *testing.T) {
	provider := &fakeProvider{}
	ds := &fakeDataset{schema: testSchema()}
	a := newTestAgent(provider, ds, testAgentConfig())
	sess := a.NewSession()

	turn, err := a.Respond(context.Background(), sess, "   ")
	require.NoError(t, err)
	require.NotNil(t, turn.Err)
	assert.Equal(t, string(SynthesisUnparseable), turn.Err.Kind)
	assert.Empty(t, provider.calls)
	assert.Equal(t, 1, sess.Len())
}

func TestRespondNarrativeAndSuggestions(t *testing.T) {
	cfg := testAgentConfig()
	cfg.Narrative = true
	cfg.Suggestions = true

	provider := &fakeProvider{replies: []any{
		topCategoriesPlan,
		"Beauty and health leads with R$ 1,258,681.34 in revenue.",
		`["How does beleza_saude trend by month?", "Which states buy the most?", "What is the average order value?"]`,
	}}
	ds := &fakeDataset{schema: testSchema(), results: []*dataset.Result{categoryRevenueResult()}}
	a := newTestAgent(provider, ds, cfg)
	sess := a.NewSession()

	turn, err := a.Respond(context.Background(), sess, "What are the top 5 product categories by revenue?")
	require.NoError(t, err)
	require.Nil(t, turn.Err)

	assert.Equal(t, "Beauty and health leads with R$ 1,258,681.34 in revenue.", turn.Narrative)
	assert.Len(t, turn.Suggestions, 3)

	require.Len(t, provider.calls, 3)
	assert.Contains(t, provider.calls[1].system, "summarize")
	assert.Contains(t, provider.calls[1].user, "Result (5 rows)")
	assert.Contains(t, provider.calls[2].system, "follow-up")
}

func TestRespondNarrationFailureDoesNotFailTurn(t *testing.T) {
	cfg := testAgentConfig()
	cfg.Narrative = true

	provider := &fakeProvider{replies: []any{
		topCategoriesPlan,
		&ai.ServiceError{Kind: ai.ServiceUnavailable, Message: "backend down"},
	}}
	ds := &fakeDataset{schema: testSchema(), results: []*dataset.Result{categoryRevenueResult()}}
	a := newTestAgent(provider, ds, cfg)
	sess := a.NewSession()

	turn, err := a.Respond(context.Background(), sess, "What are the top 5 product categories by revenue?")
	require.NoError(t, err)
	assert.Nil(t, turn.Err)
	assert.Equal(t, "The query returned 5 rows.", turn.Narrative)
}

func TestExecuteRefusesUnsafeExpression(t *testing.T) {
	ds := &fakeDataset{schema: testSchema()}
	exec := NewExecutor(ds, 200, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))

	plan := &Plan{
		Tables:  []string{"orders"},
		Select:  []string{"count(*) AS n"},
		Filters: []string{"order_status = 'x'; DROP TABLE orders"},
	}
	_, err := exec.Execute(context.Background(), plan)

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ExecutionResourceExceeded, ee.Kind)
	assert.Contains(t, ee.Message, "unsupported operation")
	assert.Empty(t, ds.queries)
}
