package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DachengChen/paiViz/dataset"
)

func TestInferColumnType(t *testing.T) {
	tests := []struct {
		name   string
		values []any
		want   ColumnType
	}{
		{"revenue", []any{1.5, 2.0}, ColumnNumeric},
		{"orders", []any{int64(1), int64(2)}, ColumnNumeric},
		{"order_status", []any{"delivered", "shipped"}, ColumnCategorical},
		{"purchase_date", []any{time.Now()}, ColumnTemporal},
		{"month", []any{"2017-01", "2017-02"}, ColumnTemporal},
		{"order_date", []any{"2017-10-02", "2018-01-15"}, ColumnTemporal},
		{"ts", []any{"2017-10-02 10:56:33"}, ColumnTemporal},
		{"customer_id", []any{"c1"}, ColumnIdentifier},
		{"order_key", []any{int64(5)}, ColumnIdentifier},
		{"id", []any{"x"}, ColumnIdentifier},
		{"mixed", []any{"2017-01", "not a date"}, ColumnCategorical},
		{"count", []any{int64(2017)}, ColumnNumeric},
		{"flag", []any{true, false}, ColumnCategorical},
		{"nullable", []any{nil, nil, 3.5}, ColumnNumeric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferColumnType(tt.name, tt.values))
		})
	}
}

func TestInferColumnTypeEmptyFallsBackToName(t *testing.T) {
	assert.Equal(t, ColumnTemporal, inferColumnType("delivery_date", nil))
	assert.Equal(t, ColumnTemporal, inferColumnType("created_at", []any{nil}))
	assert.Equal(t, ColumnCategorical, inferColumnType("order_status", nil))
}

func TestNewResultSet(t *testing.T) {
	res := &dataset.Result{
		Columns: []string{"product_category_name", "revenue"},
		Rows: [][]any{
			{"beleza_saude", 1258681.34},
			{"esporte_lazer", 988048.97},
		},
		Duration: 12 * time.Millisecond,
	}

	rs := newResultSet(res, "SELECT ...", true)
	require.Len(t, rs.Columns, 2)
	assert.Equal(t, ColumnCategorical, rs.Columns[0].Type)
	assert.Equal(t, ColumnNumeric, rs.Columns[1].Type)
	assert.True(t, rs.Truncated)
	assert.Equal(t, 2, rs.RowCount())
	assert.False(t, rs.Empty())
	assert.Equal(t, []string{"product_category_name", "revenue"}, rs.ColumnNames())
	assert.Equal(t, 12*time.Millisecond, rs.Duration)
}
