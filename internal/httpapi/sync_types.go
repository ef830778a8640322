package httpapi

// The types below mirror the wire shapes internal/worker/client.go encodes
// and decodes for the bot-facing sync protocol (spec §4.3/§6). Each side
// defines its own copy rather than sharing a package, matching the protocol's
// nature as an HTTP contract, not a Go type shared across process boundaries.

type cronJobPayload struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Message  string `json:"message"`
}

type configPayload struct {
	Version     int64  `json:"version"`
	Hash        string `json:"hash"`
	AgentConfig struct {
		Name               string `json:"name"`
		Persona            string `json:"persona"`
		MaxPositionUSDCRaw uint64 `json:"max_position_usdc_raw"`
		MaxDailyLossUSDC   string `json:"max_daily_loss_usdc"`
		MaxDrawdownPct     string `json:"max_drawdown_pct"`
	} `json:"agent_config"`
	CronJobs      []cronJobPayload `json:"cron_jobs"`
	TradingParams struct {
		AssetFocus    string   `json:"asset_focus"`
		CustomAssets  []string `json:"custom_assets,omitempty"`
		AlgorithmMode string   `json:"algorithm_mode"`
		Strictness    string   `json:"strictness"`
		TradingMode   string   `json:"trading_mode"`
	} `json:"trading_params"`
	Execution struct {
		MaxPriceImpactPct  string `json:"max_price_impact_pct"`
		MaxSlippageBps     int    `json:"max_slippage_bps"`
		ConfirmTimeoutSecs int    `json:"confirm_timeout_secs"`
		QuoteCacheSecs     int    `json:"quote_cache_secs"`
	} `json:"execution"`
	LLMConfig struct {
		Provider string `json:"provider"`
		APIKey   string `json:"api_key"`
	} `json:"llm_config"`
}

type configAckRequest struct {
	Version   int64  `json:"version"`
	Hash      string `json:"hash"`
	AppliedAt int64  `json:"applied_at"`
}

type walletReportRequest struct {
	WalletAddress string `json:"wallet_address"`
}

type metricPayload struct {
	Timestamp int64  `json:"timestamp"`
	Equity    string `json:"equity"`
	PnL       string `json:"pnl"`
}

type heartbeatRequest struct {
	Status    string          `json:"status"`
	Timestamp int64           `json:"timestamp"`
	Metrics   []metricPayload `json:"metrics,omitempty"`
}

type heartbeatResponse struct {
	NeedsConfigUpdate bool   `json:"needs_config_update"`
	Message           string `json:"message"`
}

type eventPayload struct {
	EventType string            `json:"event_type"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

type eventsRequest struct {
	Events []eventPayload `json:"events"`
}
