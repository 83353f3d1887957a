// Package postgres bootstraps the PostgreSQL connection pool the governance
// engine uses for its durable tool-metadata registry (LoadRegistry,
// UpsertTool) and, optionally, its Postgres audit sink.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/adriacb/enact/internal/model"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new PostgreSQL connection pool. The password is injected
// via the parsed config's struct field rather than the DSN string, so it
// never appears in an error-path string representation or log line.
func New(ctx context.Context, cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	if cfg.MaxConns == 0 {
		cfg.MaxConns = 25
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.ConnConfig.Password = cfg.Password
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Str("database", cfg.Database).
		Msg("postgres: connection pool established")

	return &DB{Pool: pool}, nil
}

// Close releases the connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Info().Msg("postgres: connection pool closed")
	}
}

// Health reports whether the pool can still reach the database.
func (db *DB) Health(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("postgres: pool not initialized")
	}
	return db.Pool.Ping(ctx)
}

// WithTx runs fn inside a transaction, rolling back on any error fn returns
// and on a failed commit.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.Error().Err(rbErr).Msg("postgres: rollback after handler error failed")
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.Error().Err(rbErr).Msg("postgres: rollback after commit failure failed")
		}
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// schema creates the tables the registry and audit sink need, idempotently.
const schema = `
CREATE TABLE IF NOT EXISTS tools (
	name           TEXT PRIMARY KEY,
	allowed_agents TEXT[] NOT NULL DEFAULT '{}',
	allowed_groups TEXT[] NOT NULL DEFAULT '{}',
	expires_at     TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_records (
	id              BIGSERIAL PRIMARY KEY,
	correlation_id  TEXT NOT NULL,
	ts              TIMESTAMPTZ NOT NULL,
	agent_id        TEXT NOT NULL,
	tool            TEXT NOT NULL,
	function        TEXT NOT NULL,
	allow           BOOLEAN NOT NULL,
	reason          TEXT NOT NULL,
	decision_source TEXT NOT NULL DEFAULT '',
	duration_ms     BIGINT NOT NULL,
	payload         JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_records_agent_id_idx ON audit_records (agent_id);
CREATE INDEX IF NOT EXISTS audit_records_ts_idx ON audit_records (ts);
`

// Migrate applies the registry/audit schema. Safe to call on every startup.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: applying schema: %w", err)
	}
	return nil
}

// toolRegisterer is the subset of *registry.Registry that LoadRegistry
// needs, expressed as an interface so tests can substitute a fake without
// a live pool.
type toolRegisterer interface {
	RegisterTool(entry model.ToolEntry) error
}

// LoadRegistry reads every row of the tools table and registers each as a
// tool entry on reg, so tool access-list metadata registered before a
// restart is still in effect after one. Handle and Policy are left nil:
// a handle is an opaque, process-local callable that nothing in SQL can
// represent, and policy assignment remains config-file/API-driven (see
// UpsertTool). A row that fails to register (a name already registered on
// reg) is logged and skipped rather than aborting startup.
func LoadRegistry(ctx context.Context, db *DB, reg toolRegisterer) error {
	rows, err := db.Pool.Query(ctx, `SELECT name, allowed_agents, allowed_groups, expires_at FROM tools`)
	if err != nil {
		return fmt.Errorf("postgres: querying tools: %w", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var (
			name          string
			allowedAgents []string
			allowedGroups []string
			expiresAt     *time.Time
		)
		if err := rows.Scan(&name, &allowedAgents, &allowedGroups, &expiresAt); err != nil {
			return fmt.Errorf("postgres: scanning tool row: %w", err)
		}

		entry := model.ToolEntry{
			Name:          name,
			AllowedAgents: toSet(allowedAgents),
			AllowedGroups: toSet(allowedGroups),
			ExpiresAt:     expiresAt,
		}
		if err := reg.RegisterTool(entry); err != nil {
			log.Warn().Err(err).Str("tool", name).Msg("postgres: skipping tool row, registry rejected it")
			continue
		}
		loaded++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: reading tool rows: %w", err)
	}

	log.Info().Int("tools", loaded).Msg("postgres: loaded tool registry from database")
	return nil
}

// UpsertTool persists a tool entry's access-list metadata: name,
// allowed_agents, allowed_groups, expires_at. Called from the RegisterTool
// API handler so a tool registered at runtime survives a restart via
// LoadRegistry. Policy is not persisted here for the same reason
// LoadRegistry does not restore one: model.Policy has no general SQL
// encoding.
func UpsertTool(ctx context.Context, db *DB, entry model.ToolEntry) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO tools (name, allowed_agents, allowed_groups, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE SET
			allowed_agents = EXCLUDED.allowed_agents,
			allowed_groups = EXCLUDED.allowed_groups,
			expires_at     = EXCLUDED.expires_at,
			updated_at     = now()
	`, entry.Name, fromSet(entry.AllowedAgents), fromSet(entry.AllowedGroups), entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("postgres: upserting tool %q: %w", entry.Name, err)
	}
	return nil
}

// toSet converts a SQL TEXT[] column into the set shape model.ToolEntry
// expects. A nil/empty slice yields a nil map, matching the zero value
// RegisterTool callers already pass for "no access list configured."
func toSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

// fromSet converts a set back into a slice for the TEXT[] column. Order
// is not significant; pgx marshals any []string into a Postgres array.
func fromSet(set map[string]struct{}) []string {
	if len(set) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	return out
}
