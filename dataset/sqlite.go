package dataset

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go sqlite driver

	"github.com/DachengChen/paiViz/config"
)

// sqliteDS ingests the CSV files by hand: SQLite has no CSV reader, so
// column affinities are inferred by scanning the values. Dates stay TEXT,
// which mirrors how SQLite stores them anyway.
type sqliteDS struct {
	db  *sql.DB
	cfg config.DatasetConfig
	log *slog.Logger

	mu     sync.RWMutex
	schema Schema
}

func openSQLite(ctx context.Context, cfg config.DatasetConfig, log *slog.Logger) (*sqliteDS, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// The in-memory database lives per connection; a second pool
	// connection would see an empty catalog.
	db.SetMaxOpenConns(1)

	s := &sqliteDS{db: db, cfg: cfg, log: log}
	if err := s.Reload(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqliteDS) Backend() string { return "sqlite" }

func (s *sqliteDS) Schema() Schema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schema
}

func (s *sqliteDS) Query(ctx context.Context, query string) (*Result, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows, start)
}

func (s *sqliteDS) Reload(ctx context.Context) error {
	sources, err := csvSources(s.cfg.DataDir)
	if err != nil {
		return err
	}

	for _, table := range sortedKeys(sources) {
		if err := s.loadCSV(ctx, table, sources[table]); err != nil {
			return fmt.Errorf("load %s: %w", sources[table], err)
		}
	}

	schema, err := s.introspect(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.schema = schema
	s.mu.Unlock()

	s.log.Info("dataset loaded", "backend", "sqlite", "tables", len(schema.Tables))
	return nil
}

func (s *sqliteDS) Close() error { return s.db.Close() }

// loadCSV creates the table with inferred affinities and inserts all
// rows in one transaction. Empty fields become NULL.
func (s *sqliteDS) loadCSV(ctx context.Context, table, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	columns := make([]string, len(header))
	copy(columns, header)

	affinities, records, err := scanAffinities(r, len(columns))
	if err != nil {
		return err
	}

	var ddl strings.Builder
	fmt.Fprintf(&ddl, "CREATE TABLE %q (", table)
	for i, col := range columns {
		if i > 0 {
			ddl.WriteString(", ")
		}
		fmt.Fprintf(&ddl, "%q %s", col, affinities[i])
	}
	ddl.WriteString(")")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %q", table)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, ddl.String()); err != nil {
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf("INSERT INTO %q VALUES (%s)", table, placeholders))
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	for _, rec := range records {
		for i := range args {
			if i < len(rec) && rec[i] != "" {
				args[i] = rec[i]
			} else {
				args[i] = nil
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// scanAffinities reads all records and decides INTEGER, REAL or TEXT per
// column. Empty fields do not influence the decision.
func scanAffinities(r *csv.Reader, n int) ([]string, [][]string, error) {
	couldInt := make([]bool, n)
	couldReal := make([]bool, n)
	seen := make([]bool, n)
	for i := range couldInt {
		couldInt[i] = true
		couldReal[i] = true
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		row := make([]string, len(rec))
		copy(row, rec)
		records = append(records, row)

		for i := 0; i < n && i < len(row); i++ {
			v := row[i]
			if v == "" {
				continue
			}
			seen[i] = true
			if couldInt[i] {
				if _, err := strconv.ParseInt(v, 10, 64); err != nil {
					couldInt[i] = false
				}
			}
			if couldReal[i] {
				if _, err := strconv.ParseFloat(v, 64); err != nil {
					couldReal[i] = false
				}
			}
		}
	}

	affinities := make([]string, n)
	for i := range affinities {
		switch {
		case seen[i] && couldInt[i]:
			affinities[i] = "INTEGER"
		case seen[i] && couldReal[i]:
			affinities[i] = "REAL"
		default:
			affinities[i] = "TEXT"
		}
	}
	return affinities, records, nil
}

func (s *sqliteDS) introspect(ctx context.Context) (Schema, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
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
		table, err := s.describeTable(ctx, name)
		if err != nil {
			return Schema{}, err
		}
		schema.Tables = append(schema.Tables, table)
	}
	return schema, nil
}

func (s *sqliteDS) describeTable(ctx context.Context, name string) (Table, error) {
	table := Table{Name: name}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", name))
	if err != nil {
		return Table{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid          int
			colName      string
			colType      string
			notNull      int
			defaultValue any
			pk           int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &defaultValue, &pk); err != nil {
			return Table{}, err
		}
		table.Columns = append(table.Columns, Column{Name: colName, Type: colType})
	}
	if err := rows.Err(); err != nil {
		return Table{}, err
	}

	count := fmt.Sprintf("SELECT count(*) FROM %q", name)
	if err := s.db.QueryRowContext(ctx, count).Scan(&table.RowCount); err != nil {
		return Table{}, err
	}

	for i := range table.Columns {
		table.Columns[i].Samples = s.sampleColumn(ctx, name, table.Columns[i].Name)
	}
	return table, nil
}

func (s *sqliteDS) sampleColumn(ctx context.Context, table, column string) []string {
	query := fmt.Sprintf(
		`SELECT DISTINCT %q FROM %q WHERE %q IS NOT NULL LIMIT 3`,
		column, table, column)
	rows, err := s.db.QueryContext(ctx, query)
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
