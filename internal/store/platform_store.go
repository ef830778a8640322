package store

import (
	"context"
	"errors"
	"fmt"

	"botfleet/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PlatformConfigStore implements core.IPlatformConfigStore: admin-managed
// key/value rows with a full audit trail of every mutation.
type PlatformConfigStore struct {
	pool *pgxpool.Pool
}

// Get fetches a single platform config row.
func (s *PlatformConfigStore) Get(ctx context.Context, key string) (*core.PlatformConfig, error) {
	var pc core.PlatformConfig
	err := s.pool.QueryRow(ctx, `SELECT key, value, encrypted, category, updated_by, updated_at FROM platform_config WHERE key = $1`, key).
		Scan(&pc.Key, &pc.Value, &pc.Encrypted, &pc.Category, &pc.UpdatedBy, &pc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("platform config key %q not found", key)
	}
	if err != nil {
		return nil, fmt.Errorf("get platform config: %w", err)
	}
	return &pc, nil
}

// Set upserts cfg and appends an audit log entry recording the prior value,
// changedBy, and timestamp — every mutation is traceable per spec §3.
func (s *PlatformConfigStore) Set(ctx context.Context, cfg *core.PlatformConfig, changedBy string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var oldValue string
	err = tx.QueryRow(ctx, `SELECT value FROM platform_config WHERE key = $1`, cfg.Key).Scan(&oldValue)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read prior value: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO platform_config (key, value, encrypted, category, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (key) DO UPDATE SET value = $2, encrypted = $3, category = $4, updated_by = $5, updated_at = now()`,
		cfg.Key, cfg.Value, cfg.Encrypted, cfg.Category, changedBy)
	if err != nil {
		return fmt.Errorf("upsert platform config: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO config_audit_log (key, old_value, new_value, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, now())`, cfg.Key, oldValue, cfg.Value, changedBy)
	if err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}

	return tx.Commit(ctx)
}

// Audit returns the most recent audit entries for key, newest first.
func (s *PlatformConfigStore) Audit(ctx context.Context, key string, limit int) ([]*core.ConfigAuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, key, old_value, new_value, changed_by, changed_at FROM config_audit_log
		WHERE key = $1 ORDER BY changed_at DESC LIMIT $2`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []*core.ConfigAuditLog
	for rows.Next() {
		var a core.ConfigAuditLog
		var id int64
		if err := rows.Scan(&id, &a.Key, &a.OldValue, &a.NewValue, &a.ChangedBy, &a.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		a.ID = fmt.Sprintf("%d", id)
		out = append(out, &a)
	}
	return out, rows.Err()
}
