// Package postgres provides a Postgres-backed run-state store for fleet
// deployments where many workers share one state database.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chirag2653/website-to-skill-folder/internal/state"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for run-state rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists one JSONB run-state row per site.
type Store struct {
	pool  pgxPool
	table string
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("state.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, cfg.Table)
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "site_run_state"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Load fetches and decodes the JSONB state for a site.
func (s *Store) Load(ctx context.Context, site string) (state.RunState, error) {
	query := fmt.Sprintf(`SELECT state FROM %s WHERE site = $1`, s.table)
	var payload []byte
	if err := s.pool.QueryRow(ctx, query, site).Scan(&payload); err != nil {
		if err == pgx.ErrNoRows {
			return state.RunState{}, state.ErrNotFound
		}
		return state.RunState{}, fmt.Errorf("load run state: %w", err)
	}
	var st state.RunState
	if err := json.Unmarshal(payload, &st); err != nil {
		return state.RunState{}, fmt.Errorf("decode run state for %s: %w", site, err)
	}
	if st.Resources == nil {
		st.Resources = make(map[string]state.ResourceRecord)
	}
	return st, nil
}

// Save upserts the site's state row. The row replacement is a single
// statement, so readers never observe a partial record.
func (s *Store) Save(ctx context.Context, st state.RunState) error {
	if st.Site == "" {
		return fmt.Errorf("run state has no site")
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode run state: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (site, state, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (site) DO UPDATE
SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := s.pool.Exec(ctx, query, st.Site, payload); err != nil {
		return fmt.Errorf("save run state: %w", err)
	}
	return nil
}

// List returns all sites with a state row.
func (s *Store) List(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT site FROM %s ORDER BY site`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list run states: %w", err)
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, fmt.Errorf("scan site row: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate site rows: %w", err)
	}
	return sites, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}
