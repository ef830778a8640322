// Package store persists control-plane state in Postgres via pgx. Every
// write path in this package binds the invariants spec §3 names: config
// versions are inserted, never updated; a bot's desired/applied pointers are
// repointed inside the same transaction that touches them.
package store

import (
	"context"
	"fmt"
	"time"

	"botfleet/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store bundles the Postgres-backed implementations of every IXStore
// interface core/interfaces.go declares, sharing one connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger core.ILogger
}

// Open creates a pgx pool against dsn and pings it before returning, so
// startup fails fast (per spec §6's exit-code contract) rather than lazily
// on the first request.
func Open(ctx context.Context, dsn string, maxConns int, connMaxLifetime time.Duration, logger core.ILogger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}
	if connMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = connMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool, logger: logger.WithField("component", "store")}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies connectivity, backing the /healthz database check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Bots returns the IBotStore view over this pool.
func (s *Store) Bots() *BotStore {
	return &BotStore{pool: s.pool, logger: s.logger}
}

// Configs returns the IConfigStore view over this pool.
func (s *Store) Configs() *ConfigStore {
	return &ConfigStore{pool: s.pool, logger: s.logger}
}

// Events returns the IEventStore view over this pool.
func (s *Store) Events() *EventStore {
	return &EventStore{pool: s.pool}
}

// Metrics returns the IMetricStore view over this pool.
func (s *Store) Metrics() *MetricStore {
	return &MetricStore{pool: s.pool}
}

// PlatformConfigs returns the IPlatformConfigStore view over this pool.
func (s *Store) PlatformConfigs() *PlatformConfigStore {
	return &PlatformConfigStore{pool: s.pool}
}

// Migrate applies the schemaSQL schema from schema.go idempotently (CREATE TABLE IF NOT
// EXISTS / CREATE INDEX IF NOT EXISTS throughout), matching spec §6's
// "migrations fail" startup-failure exit code.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
