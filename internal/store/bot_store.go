package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"botfleet/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BotStore implements core.IBotStore over a shared pgx pool.
type BotStore struct {
	pool   *pgxpool.Pool
	logger core.ILogger
}

// CreateBot inserts a new bot row in Provisioning status.
func (s *BotStore) CreateBot(ctx context.Context, bot *core.Bot) error {
	now := time.Now()
	bot.CreatedAt, bot.UpdatedAt = now, now
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bots (id, user_id, name, status, host_id, host_ip, wallet_address,
			desired_version_id, applied_version_id, config_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		bot.ID, bot.UserID, bot.Name, bot.Status, bot.HostID, bot.HostIP, bot.WalletAddress,
		bot.DesiredVersionID, bot.AppliedVersionID, bot.ConfigStatus, bot.CreatedAt, bot.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert bot: %w", err)
	}
	return nil
}

func scanBot(row pgx.Row) (*core.Bot, error) {
	var b core.Bot
	var lastHeartbeat *time.Time
	err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.Status, &b.HostID, &b.HostIP, &b.WalletAddress,
		&b.DesiredVersionID, &b.AppliedVersionID, &b.ConfigStatus, &b.CreatedAt, &b.UpdatedAt, &lastHeartbeat)
	if err != nil {
		return nil, err
	}
	if lastHeartbeat != nil {
		b.LastHeartbeatAt = *lastHeartbeat
	}
	return &b, nil
}

const botColumns = `id, user_id, name, status, host_id, host_ip, wallet_address,
	desired_version_id, applied_version_id, config_status, created_at, updated_at, last_heartbeat_at`

// GetBot fetches a single bot by id.
func (s *BotStore) GetBot(ctx context.Context, id string) (*core.Bot, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+botColumns+` FROM bots WHERE id = $1`, id)
	bot, err := scanBot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("bot %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get bot: %w", err)
	}
	return bot, nil
}

// ListBotsByUser lists every bot owned by userID.
func (s *BotStore) ListBotsByUser(ctx context.Context, userID string) ([]*core.Bot, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+botColumns+` FROM bots WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close()

	var bots []*core.Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	return bots, rows.Err()
}

// UpdateStatus transitions a bot's lifecycle status.
func (s *BotStore) UpdateStatus(ctx context.Context, id string, status core.BotStatus) error {
	ct, err := s.pool.Exec(ctx, `UPDATE bots SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update bot status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("bot %s not found", id)
	}
	return nil
}

// SetDesiredVersion repoints desired_version_id and resets config_status to
// Pending, since the worker has not acknowledged the new version yet.
func (s *BotStore) SetDesiredVersion(ctx context.Context, botID string, versionID string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE bots SET desired_version_id = $1, config_status = $2, updated_at = now()
		WHERE id = $3`, versionID, core.ConfigPending, botID)
	if err != nil {
		return fmt.Errorf("set desired version: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("bot %s not found", botID)
	}
	return nil
}

// SetAppliedVersion is called by the config-ack endpoint once the hash
// matches the current desired hash.
func (s *BotStore) SetAppliedVersion(ctx context.Context, botID string, versionID string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE bots SET applied_version_id = $1, config_status = $2, updated_at = now()
		WHERE id = $3`, versionID, core.ConfigApplied, botID)
	if err != nil {
		return fmt.Errorf("set applied version: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("bot %s not found", botID)
	}
	return nil
}

// SetWallet is last-write-wins per spec §4.3's wallet_report contract.
func (s *BotStore) SetWallet(ctx context.Context, botID string, address string) error {
	ct, err := s.pool.Exec(ctx, `UPDATE bots SET wallet_address = $1, updated_at = now() WHERE id = $2`, address, botID)
	if err != nil {
		return fmt.Errorf("set wallet: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("bot %s not found", botID)
	}
	return nil
}

// TouchHeartbeat records the worker's liveness timestamp.
func (s *BotStore) TouchHeartbeat(ctx context.Context, botID string, at int64) error {
	ct, err := s.pool.Exec(ctx, `UPDATE bots SET last_heartbeat_at = $1, updated_at = now() WHERE id = $2`,
		time.Unix(at, 0), botID)
	if err != nil {
		return fmt.Errorf("touch heartbeat: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("bot %s not found", botID)
	}
	return nil
}

// ListStuck finds bots sitting in status past olderThanSecs, feeding the
// orphan sweeper's scan.
func (s *BotStore) ListStuck(ctx context.Context, status core.BotStatus, olderThanSecs int64) ([]*core.Bot, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanSecs) * time.Second)
	rows, err := s.pool.Query(ctx, `SELECT `+botColumns+` FROM bots WHERE status = $1 AND updated_at < $2`, status, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stuck bots: %w", err)
	}
	defer rows.Close()

	var bots []*core.Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	return bots, rows.Err()
}

// DeleteBot removes a bot row outright. Only called after Teardown succeeds
// for a bot in Destroying status; config_versions rows cascade-delete with
// it per schema.go's ON DELETE CASCADE.
func (s *BotStore) DeleteBot(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM bots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete bot: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("bot %s not found", id)
	}
	return nil
}

// TryAdvisoryLock attempts a non-blocking Postgres session-level advisory
// lock keyed on botID's hash, so a concurrent user-initiated destroy and the
// orphan sweeper never both act on the same bot (spec §4.2). The returned
// release func must be called exactly once when the caller's critical
// section ends; it releases the lock on the same connection it was taken on.
func (s *BotStore) TryAdvisoryLock(ctx context.Context, botID string) (bool, func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	err = conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, botID).Scan(&acquired)
	if err != nil {
		conn.Release()
		return false, nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return false, nil, nil
	}

	release := func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, botID)
		conn.Release()
	}
	return true, release, nil
}
