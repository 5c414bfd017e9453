// Package dataset loads the Olist e-commerce tables and answers
// read-only queries against them.
//
// Design decisions:
//   - Three interchangeable backends behind one interface: duckdb and
//     sqlite ingest the CSV files themselves, postgres points at a
//     pre-loaded warehouse.
//   - The schema is introspected once at open and cached. Reload
//     re-ingests and re-introspects; queries never mutate data.
//   - Query returns raw column values. Semantic typing (temporal,
//     categorical, ...) is the agent's concern, not the dataset's.
package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/DachengChen/paiViz/config"
)

// Dataset is the read-only storage interface the agent queries.
type Dataset interface {
	// Schema returns the cached table catalog.
	Schema() Schema

	// Query runs one SELECT and collects all rows.
	Query(ctx context.Context, query string) (*Result, error)

	// Reload re-ingests the source data and refreshes the schema.
	Reload(ctx context.Context) error

	// Backend names the storage engine ("duckdb", "sqlite", "postgres").
	Backend() string

	Close() error
}

// Result holds the raw output of one query.
type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

// Column describes one table column as reported by the backend.
type Column struct {
	Name string
	Type string

	// Samples holds up to three distinct non-null values, used to give
	// the completion service a feel for the data.
	Samples []string
}

// Table describes one loaded table.
type Table struct {
	Name     string
	RowCount int64
	Columns  []Column
}

// Schema is the catalog of loaded tables.
type Schema struct {
	Tables []Table
}

// Open connects the configured backend and loads the schema.
func Open(ctx context.Context, cfg config.DatasetConfig, log *slog.Logger) (Dataset, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	switch cfg.Backend {
	case "duckdb":
		return openDuckDB(ctx, cfg, log)
	case "sqlite":
		return openSQLite(ctx, cfg, log)
	case "postgres":
		return openPostgres(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown dataset backend %q (want duckdb, sqlite or postgres)", cfg.Backend)
	}
}

// Table looks up a table by name, case-insensitively.
func (s Schema) Table(name string) (Table, bool) {
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Table{}, false
}

// TableNames returns all table names in catalog order.
func (s Schema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}

// Column looks up a column by name, case-insensitively.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Context renders the schema as a text block for the completion service
// system prompt: one heading per table, one line per column with type
// and sample values.
func (s Schema) Context() string {
	var sb strings.Builder
	sb.WriteString("## Tables\n")
	for _, t := range s.Tables {
		fmt.Fprintf(&sb, "\n### %s (%d rows)\n", t.Name, t.RowCount)
		for _, c := range t.Columns {
			fmt.Fprintf(&sb, "- %s: %s", c.Name, c.Type)
			if len(c.Samples) > 0 {
				fmt.Fprintf(&sb, " (e.g. %s)", strings.Join(c.Samples, ", "))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// olistTables maps the canonical Olist file names onto friendly table
// names. Unknown CSV files fall back to a cleaned-up file stem.
var olistTables = map[string]string{
	"olist_orders_dataset":              "orders",
	"olist_order_items_dataset":         "order_items",
	"olist_products_dataset":            "products",
	"olist_customers_dataset":           "customers",
	"olist_sellers_dataset":             "sellers",
	"olist_order_payments_dataset":      "order_payments",
	"olist_order_reviews_dataset":       "order_reviews",
	"olist_geolocation_dataset":         "geolocation",
	"product_category_name_translation": "product_category",
}

// csvSources lists the CSV files in dir with their target table names,
// sorted by table name for stable load order.
func csvSources(dir string) (map[string]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CSV files found in %s", dir)
	}

	sources := make(map[string]string, len(files))
	for _, f := range files {
		sources[tableNameFor(f)] = f
	}
	return sources, nil
}

func tableNameFor(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if name, ok := olistTables[stem]; ok {
		return name
	}
	stem = strings.TrimPrefix(stem, "olist_")
	stem = strings.TrimSuffix(stem, "_dataset")
	return stem
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// collectRows drains a database/sql result set into a Result.
func collectRows(rows *sql.Rows, start time.Time) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res.Duration = time.Since(start)
	return res, nil
}

// normalizeValue maps driver-specific scan types onto the small set the
// agent understands.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

// sampleValue renders a value for schema context, shortened so long
// free-text fields do not blow up the prompt.
func sampleValue(v any) string {
	s := fmt.Sprintf("%v", normalizeValue(v))
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 40 {
		s = s[:37] + "..."
	}
	return s
}
