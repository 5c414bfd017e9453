package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/DachengChen/paiViz/config"
)

// duckDB ingests the CSV files with read_csv_auto, which infers column
// types (dates included) far better than hand-rolled parsing.
type duckDB struct {
	db  *sql.DB
	cfg config.DatasetConfig
	log *slog.Logger

	mu     sync.RWMutex
	schema Schema
}

func openDuckDB(ctx context.Context, cfg config.DatasetConfig, log *slog.Logger) (*duckDB, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	d := &duckDB{db: db, cfg: cfg, log: log}
	if err := d.Reload(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *duckDB) Backend() string { return "duckdb" }

func (d *duckDB) Schema() Schema {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.schema
}

func (d *duckDB) Query(ctx context.Context, query string) (*Result, error) {
	start := time.Now()
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows, start)
}

func (d *duckDB) Reload(ctx context.Context) error {
	sources, err := csvSources(d.cfg.DataDir)
	if err != nil {
		return err
	}

	for _, table := range sortedKeys(sources) {
		abs, err := filepath.Abs(sources[table])
		if err != nil {
			return err
		}
		load := fmt.Sprintf(
			"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto('%s', header=true)",
			table, abs)
		if _, err := d.db.ExecContext(ctx, load); err != nil {
			return fmt.Errorf("load %s: %w", sources[table], err)
		}
	}

	schema, err := d.introspect(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.schema = schema
	d.mu.Unlock()

	d.log.Info("dataset loaded", "backend", "duckdb", "tables", len(schema.Tables))
	return nil
}

func (d *duckDB) Close() error { return d.db.Close() }

func (d *duckDB) introspect(ctx context.Context) (Schema, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'main'
		ORDER BY table_name`)
	if err != nil {
		return Schema{}, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return Schema{}, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return Schema{}, err
	}

	var schema Schema
	for _, name := range names {
		table, err := d.describeTable(ctx, name)
		if err != nil {
			return Schema{}, err
		}
		schema.Tables = append(schema.Tables, table)
	}
	return schema, nil
}

func (d *duckDB) describeTable(ctx context.Context, name string) (Table, error) {
	table := Table{Name: name}

	rows, err := d.db.QueryContext(ctx, `
		SELECT column_name, data_type FROM information_schema.columns
		WHERE table_schema = 'main' AND table_name = ?
		ORDER BY ordinal_position`, name)
	if err != nil {
		return Table{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return Table{}, err
		}
		table.Columns = append(table.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return Table{}, err
	}

	count := fmt.Sprintf("SELECT count(*) FROM %s", name)
	if err := d.db.QueryRowContext(ctx, count).Scan(&table.RowCount); err != nil {
		return Table{}, err
	}

	for i := range table.Columns {
		table.Columns[i].Samples = d.sampleColumn(ctx, name, table.Columns[i].Name)
	}
	return table, nil
}

// sampleColumn fetches a few distinct values; failures just leave the
// column without samples.
func (d *duckDB) sampleColumn(ctx context.Context, table, column string) []string {
	query := fmt.Sprintf(
		`SELECT DISTINCT "%s" FROM %s WHERE "%s" IS NOT NULL LIMIT 3`,
		column, table, column)
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var samples []string
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return samples
		}
		samples = append(samples, sampleValue(v))
	}
	return samples
}
