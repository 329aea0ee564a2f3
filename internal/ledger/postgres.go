package ledger

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/linkvault/internal/archive"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the connection pool for the Postgres backend.
type PostgresConfig struct {
	DSN             string
	Table           string
	PermanentTable  string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PostgresBackend stores ledger state in Postgres. The permanent table is
// insert-only from the pipeline's point of view; rows are only ever removed
// by an operator.
type PostgresBackend struct {
	pool           pgPool
	table          string
	permanentTable string
}

// NewPostgresBackend connects a pool and returns the backend.
func NewPostgresBackend(ctx context.Context, cfg PostgresConfig) (*PostgresBackend, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgresBackendWithPool(pool, cfg.Table, cfg.PermanentTable)
}

// NewPostgresBackendWithPool constructs a backend from an existing pool
// (primarily for testing).
func NewPostgresBackendWithPool(pool pgPool, table, permanentTable string) (*PostgresBackend, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "link_failures"
	}
	if permanentTable == "" {
		permanentTable = "link_failures_permanent"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if !validTableName.MatchString(permanentTable) {
		return nil, fmt.Errorf("invalid table name %q", permanentTable)
	}
	return &PostgresBackend{pool: pool, table: table, permanentTable: permanentTable}, nil
}

// Close releases the underlying pool resources.
func (b *PostgresBackend) Close() {
	if b == nil || b.pool == nil {
		return
	}
	b.pool.Close()
}

// Load reads every failure record.
func (b *PostgresBackend) Load(ctx context.Context) (map[archive.ArticleID]archive.FailureRecord, error) {
	query := fmt.Sprintf(
		`SELECT article_id, url, failure_count, last_failure_at, cooldown_until, permanent FROM %s`,
		b.table,
	)
	rows, err := b.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	records := make(map[archive.ArticleID]archive.FailureRecord)
	for rows.Next() {
		var (
			record        archive.FailureRecord
			id            string
			lastFailureAt *time.Time
			cooldownUntil *time.Time
		)
		if err := rows.Scan(&id, &record.URL, &record.FailureCount, &lastFailureAt, &cooldownUntil, &record.Permanent); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		record.ArticleID = archive.ArticleID(id)
		record.LastFailureAt = lastFailureAt
		record.CooldownUntil = cooldownUntil
		records[record.ArticleID] = record
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return records, nil
}

// Put upserts one failure record.
func (b *PostgresBackend) Put(ctx context.Context, record archive.FailureRecord) error {
	query := fmt.Sprintf(`
INSERT INTO %s (article_id, url, failure_count, last_failure_at, cooldown_until, permanent)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (article_id) DO UPDATE SET
	url = EXCLUDED.url,
	failure_count = EXCLUDED.failure_count,
	last_failure_at = EXCLUDED.last_failure_at,
	cooldown_until = EXCLUDED.cooldown_until,
	permanent = EXCLUDED.permanent`,
		b.table,
	)
	_, err := b.pool.Exec(ctx, query,
		string(record.ArticleID),
		record.URL,
		record.FailureCount,
		record.LastFailureAt,
		record.CooldownUntil,
		record.Permanent,
	)
	if err != nil {
		return fmt.Errorf("upsert ledger row: %w", err)
	}
	return nil
}

// MarkPermanent appends to the permanent table. ON CONFLICT DO NOTHING
// keeps the set append-only and idempotent.
func (b *PostgresBackend) MarkPermanent(ctx context.Context, record archive.FailureRecord) error {
	query := fmt.Sprintf(`
INSERT INTO %s (article_id, url, failure_count, marked_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (article_id) DO NOTHING`,
		b.permanentTable,
	)
	_, err := b.pool.Exec(ctx, query,
		string(record.ArticleID),
		record.URL,
		record.FailureCount,
		record.LastFailureAt,
	)
	if err != nil {
		return fmt.Errorf("append permanent row: %w", err)
	}
	return nil
}
