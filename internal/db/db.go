package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect establishes a connection pool to the database and returns the pool
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	// Ping the database to verify connection
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Bootstrap runs a service's embedded DDL. Statements are expected to be
// idempotent (CREATE TABLE IF NOT EXISTS) so every instance can run them at
// start without coordination.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool, ddl string) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	return nil
}
