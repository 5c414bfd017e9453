package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DachengChen/paiViz/config"
	"github.com/DachengChen/paiViz/tunnel"
)

// postgresDS points at a warehouse that already holds the Olist tables;
// Reload only refreshes the catalog. Connects through an SSH tunnel when
// one is configured.
type postgresDS struct {
	pool *pgxpool.Pool
	tun  *tunnel.Tunnel
	log  *slog.Logger

	mu     sync.RWMutex
	schema Schema
}

func openPostgres(ctx context.Context, cfg config.DatasetConfig, log *slog.Logger) (*postgresDS, error) {
	pg := cfg.Postgres
	host, port := pg.Host, pg.Port

	var tun *tunnel.Tunnel
	if pg.SSH.Enabled {
		t, err := tunnel.New(pg.SSH, pg.Host, pg.Port)
		if err != nil {
			return nil, fmt.Errorf("ssh tunnel: %w", err)
		}
		endpoint, err := t.Start(ctx)
		if err != nil {
			return nil, fmt.Errorf("ssh tunnel start: %w", err)
		}
		tun = t
		host, port = endpoint.Host, endpoint.Port
	}

	pool, err := pgxpool.New(ctx, pg.DSN(host, port))
	if err != nil {
		if tun != nil {
			tun.Stop()
		}
		return nil, fmt.Errorf("pgx connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		if tun != nil {
			tun.Stop()
		}
		return nil, fmt.Errorf("pgx ping: %w", err)
	}

	p := &postgresDS{pool: pool, tun: tun, log: log}
	if err := p.Reload(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *postgresDS) Backend() string { return "postgres" }

func (p *postgresDS) Schema() Schema {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.schema
}

func (p *postgresDS) Query(ctx context.Context, query string) (*Result, error) {
	start := time.Now()
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := &Result{}
	for _, fd := range rows.FieldDescriptions() {
		res.Columns = append(res.Columns, fd.Name)
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizePgValue(v)
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res.Duration = time.Since(start)
	return res, nil
}

// Reload refreshes the catalog; the warehouse data itself is managed
// elsewhere.
func (p *postgresDS) Reload(ctx context.Context) error {
	schema, err := p.introspect(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.schema = schema
	p.mu.Unlock()

	p.log.Info("dataset loaded", "backend", "postgres", "tables", len(schema.Tables))
	return nil
}

func (p *postgresDS) Close() error {
	p.pool.Close()
	if p.tun != nil {
		p.tun.Stop()
	}
	return nil
}

func (p *postgresDS) introspect(ctx context.Context) (Schema, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
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
		table, err := p.describeTable(ctx, name)
		if err != nil {
			return Schema{}, err
		}
		schema.Tables = append(schema.Tables, table)
	}
	return schema, nil
}

func (p *postgresDS) describeTable(ctx context.Context, name string) (Table, error) {
	table := Table{Name: name}

	rows, err := p.pool.Query(ctx, `
		SELECT column_name, data_type FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
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

	count := fmt.Sprintf("SELECT count(*) FROM %q", name)
	if err := p.pool.QueryRow(ctx, count).Scan(&table.RowCount); err != nil {
		return Table{}, err
	}

	for i := range table.Columns {
		table.Columns[i].Samples = p.sampleColumn(ctx, name, table.Columns[i].Name)
	}
	return table, nil
}

func (p *postgresDS) sampleColumn(ctx context.Context, table, column string) []string {
	query := fmt.Sprintf(
		`SELECT DISTINCT %q FROM %q WHERE %q IS NOT NULL LIMIT 3`,
		column, table, column)
	rows, err := p.pool.Query(ctx, query)
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

// normalizePgValue folds pgx-specific types into the common value set.
func normalizePgValue(v any) any {
	if n, ok := v.(pgtype.Numeric); ok {
		if f, err := n.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
	}
	return normalizeValue(v)
}
