package store

import (
	"context"
	"errors"
	"fmt"

	"botfleet/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ConfigStore implements core.IConfigStore. ConfigVersion rows are
// content-addressed and immutable: CreateVersion is the only write, and it
// runs inside a transaction that also repoints the owning bot's
// desired_version_id, matching the atomic-append-plus-retarget spec §4.1
// calls for.
type ConfigStore struct {
	pool   *pgxpool.Pool
	logger core.ILogger
}

const configColumns = `id, bot_id, version, persona, asset_focus, custom_assets, algorithm, strictness,
	max_position_usdc_raw, max_daily_loss_usdc, max_drawdown_pct, trading_mode,
	max_price_impact_pct, max_slippage_bps, confirm_timeout_secs, quote_cache_secs,
	llm_provider, llm_key_cipher, created_at`

const configColumnsAliased = `cv.id, cv.bot_id, cv.version, cv.persona, cv.asset_focus, cv.custom_assets, cv.algorithm, cv.strictness,
	cv.max_position_usdc_raw, cv.max_daily_loss_usdc, cv.max_drawdown_pct, cv.trading_mode,
	cv.max_price_impact_pct, cv.max_slippage_bps, cv.confirm_timeout_secs, cv.quote_cache_secs,
	cv.llm_provider, cv.llm_key_cipher, cv.created_at`

func scanConfigVersion(row pgx.Row) (*core.ConfigVersion, error) {
	var cv core.ConfigVersion
	err := row.Scan(&cv.ID, &cv.BotID, &cv.Version, &cv.Persona, &cv.AssetFocus, &cv.CustomAssets,
		&cv.Algorithm, &cv.Strictness, &cv.RiskCaps.MaxPositionUSDCRaw, &cv.RiskCaps.MaxDailyLossUSDC,
		&cv.RiskCaps.MaxDrawdownPct, &cv.TradingMode, &cv.Execution.MaxPriceImpactPct,
		&cv.Execution.MaxSlippageBps, &cv.Execution.ConfirmTimeoutSecs, &cv.Execution.QuoteCacheSecs,
		&cv.LLMProvider, &cv.LLMKeyCipher, &cv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &cv, nil
}

// CreateVersion inserts a new immutable ConfigVersion and atomically
// repoints the bot's desired_version_id in the same transaction, enforcing
// strictly-increasing Version per bot via the (bot_id, version) unique
// constraint plus a serializable re-check of LatestVersion.
func (s *ConfigStore) CreateVersion(ctx context.Context, cv *core.ConfigVersion) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var latest int64
	err = tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM config_versions WHERE bot_id = $1`, cv.BotID).Scan(&latest)
	if err != nil {
		return fmt.Errorf("read latest version: %w", err)
	}
	cv.Version = latest + 1

	if cv.RiskCaps.MaxDailyLossUSDC.Equal(decimal.Decimal{}) {
		cv.RiskCaps.MaxDailyLossUSDC = decimal.Zero
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO config_versions (`+configColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		cv.ID, cv.BotID, cv.Version, cv.Persona, cv.AssetFocus, cv.CustomAssets, cv.Algorithm, cv.Strictness,
		cv.RiskCaps.MaxPositionUSDCRaw, cv.RiskCaps.MaxDailyLossUSDC, cv.RiskCaps.MaxDrawdownPct, cv.TradingMode,
		cv.Execution.MaxPriceImpactPct, cv.Execution.MaxSlippageBps, cv.Execution.ConfirmTimeoutSecs,
		cv.Execution.QuoteCacheSecs, cv.LLMProvider, cv.LLMKeyCipher, cv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert config version: %w", err)
	}

	_, err = tx.Exec(ctx, `UPDATE bots SET desired_version_id = $1, config_status = $2, updated_at = now() WHERE id = $3`,
		cv.ID, core.ConfigPending, cv.BotID)
	if err != nil {
		return fmt.Errorf("retarget desired version: %w", err)
	}

	return tx.Commit(ctx)
}

// GetDesired returns the ConfigVersion currently pointed at by the bot's
// desired_version_id.
func (s *ConfigStore) GetDesired(ctx context.Context, botID string) (*core.ConfigVersion, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+configColumnsAliased+`
		FROM config_versions cv JOIN bots b ON b.desired_version_id = cv.id
		WHERE b.id = $1`, botID)
	cv, err := scanConfigVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("bot %s has no desired config", botID)
	}
	if err != nil {
		return nil, fmt.Errorf("get desired config: %w", err)
	}
	return cv, nil
}

// GetApplied returns the ConfigVersion the worker has most recently
// acknowledged, or nil if none has been applied yet.
func (s *ConfigStore) GetApplied(ctx context.Context, botID string) (*core.ConfigVersion, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+configColumnsAliased+`
		FROM config_versions cv JOIN bots b ON b.applied_version_id = cv.id
		WHERE b.id = $1`, botID)
	cv, err := scanConfigVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get applied config: %w", err)
	}
	return cv, nil
}

// GetByID fetches a single content-addressed ConfigVersion row; safe to cache.
func (s *ConfigStore) GetByID(ctx context.Context, id string) (*core.ConfigVersion, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+configColumns+` FROM config_versions WHERE id = $1`, id)
	cv, err := scanConfigVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("config version %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get config version: %w", err)
	}
	return cv, nil
}

// LatestVersion returns the highest Version issued for botID, or 0 if none.
func (s *ConfigStore) LatestVersion(ctx context.Context, botID string) (int64, error) {
	var latest int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM config_versions WHERE bot_id = $1`, botID).Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("latest version: %w", err)
	}
	return latest, nil
}
