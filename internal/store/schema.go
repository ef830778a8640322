package store

// schemaSQL is the relational schema for every durable table the control
// plane owns. Config versions are append-only; bots carry the mutable
// desired/applied pointers spec §3 names as an invariant.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS bots (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL,
	name               TEXT NOT NULL,
	status             TEXT NOT NULL,
	host_id            TEXT NOT NULL DEFAULT '',
	host_ip            TEXT NOT NULL DEFAULT '',
	wallet_address     TEXT NOT NULL DEFAULT '',
	desired_version_id TEXT NOT NULL DEFAULT '',
	applied_version_id TEXT NOT NULL DEFAULT '',
	config_status      TEXT NOT NULL DEFAULT 'PENDING',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_heartbeat_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_bots_user_id ON bots (user_id);
CREATE INDEX IF NOT EXISTS idx_bots_status ON bots (status);

CREATE TABLE IF NOT EXISTS config_versions (
	id             TEXT PRIMARY KEY,
	bot_id         TEXT NOT NULL REFERENCES bots (id) ON DELETE CASCADE,
	version        BIGINT NOT NULL,
	persona        TEXT NOT NULL DEFAULT '',
	asset_focus    TEXT NOT NULL DEFAULT '',
	custom_assets  TEXT[] NOT NULL DEFAULT '{}',
	algorithm      TEXT NOT NULL,
	strictness     TEXT NOT NULL,
	max_position_usdc_raw BIGINT NOT NULL DEFAULT 0,
	max_daily_loss_usdc   NUMERIC NOT NULL DEFAULT 0,
	max_drawdown_pct      NUMERIC NOT NULL DEFAULT 0,
	trading_mode   TEXT NOT NULL,
	max_price_impact_pct NUMERIC NOT NULL DEFAULT 0,
	max_slippage_bps     INT NOT NULL DEFAULT 0,
	confirm_timeout_secs INT NOT NULL DEFAULT 30,
	quote_cache_secs     INT NOT NULL DEFAULT 5,
	llm_provider   TEXT NOT NULL DEFAULT '',
	llm_key_cipher BYTEA,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (bot_id, version)
);

CREATE INDEX IF NOT EXISTS idx_config_versions_bot_id ON config_versions (bot_id);

CREATE TABLE IF NOT EXISTS events (
	id         BIGSERIAL PRIMARY KEY,
	bot_id     TEXT NOT NULL,
	event_type TEXT NOT NULL,
	message    TEXT NOT NULL DEFAULT '',
	metadata   JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_events_bot_id_created_at ON events (bot_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events (created_at);

CREATE TABLE IF NOT EXISTS metrics (
	id         BIGSERIAL PRIMARY KEY,
	bot_id     TEXT NOT NULL,
	timestamp  TIMESTAMPTZ NOT NULL,
	equity     NUMERIC NOT NULL,
	pnl        NUMERIC NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_metrics_bot_id_timestamp ON metrics (bot_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_metrics_timestamp ON metrics (timestamp);

CREATE TABLE IF NOT EXISTS platform_config (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	encrypted  BOOLEAN NOT NULL DEFAULT false,
	category   TEXT NOT NULL DEFAULT '',
	updated_by TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS config_audit_log (
	id         BIGSERIAL PRIMARY KEY,
	key        TEXT NOT NULL,
	old_value  TEXT NOT NULL DEFAULT '',
	new_value  TEXT NOT NULL DEFAULT '',
	changed_by TEXT NOT NULL DEFAULT '',
	changed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_config_audit_log_key ON config_audit_log (key, changed_at DESC);
`
