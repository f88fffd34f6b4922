// Package postgres implements the catalog and cart stores on PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-cart/db"
)

// migrationLockID serializes schema setup between processes sharing a
// database, such as the API server and the seeder.
const migrationLockID = 0x6b617274

// PoolOptions tunes the connection pool. Zero values keep the pgxpool
// defaults or the settings carried by the connection URL.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	// StatementTimeout is set as statement_timeout on every connection, so
	// the server abandons queries the caller has already given up on.
	StatementTimeout time.Duration
}

// ParseConfig builds the pool configuration for databaseURL. Every
// connection gets shopspring/decimal support for NUMERIC columns.
func ParseConfig(databaseURL string, opts PoolOptions) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = min(opts.MinConns, cfg.MaxConns)
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if opts.StatementTimeout > 0 {
		cfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(opts.StatementTimeout.Milliseconds(), 10)
	}

	cfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	return cfg, nil
}

// NewPool opens a pool for databaseURL and checks that the server answers.
func NewPool(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := ParseConfig(databaseURL, opts)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// RunMigrations applies the embedded schema in one transaction. The schema
// is idempotent; the advisory lock keeps concurrent starters from
// interleaving its statements.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", int64(migrationLockID)); err != nil {
			return fmt.Errorf("acquiring migration lock: %w", err)
		}
		if _, err := tx.Exec(ctx, db.Schema); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
