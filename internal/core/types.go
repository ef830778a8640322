package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// BotStatus is the lifecycle status of a bot as tracked by the control plane.
type BotStatus string

const (
	BotProvisioning BotStatus = "PROVISIONING"
	BotOnline       BotStatus = "ONLINE"
	BotOffline      BotStatus = "OFFLINE"
	BotPaused       BotStatus = "PAUSED"
	BotError        BotStatus = "ERROR"
	BotDestroying   BotStatus = "DESTROYING"
)

// ConfigStatus tracks whether a bot's applied config matches its desired config.
type ConfigStatus string

const (
	ConfigPending ConfigStatus = "PENDING"
	ConfigApplied ConfigStatus = "APPLIED"
	ConfigFailed  ConfigStatus = "FAILED"
)

// Bot is the control plane's record of a single worker.
type Bot struct {
	ID               string
	UserID           string
	Name             string
	Status           BotStatus
	HostID           string
	HostIP           string
	WalletAddress    string
	DesiredVersionID string
	AppliedVersionID string
	ConfigStatus     ConfigStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastHeartbeatAt  time.Time
}

// AlgorithmMode selects the pluggable strategy a worker runs; the strategies
// themselves are an external collaborator.
type AlgorithmMode string

const (
	AlgoTrend         AlgorithmMode = "TREND"
	AlgoMeanReversion AlgorithmMode = "MEAN_REVERSION"
	AlgoBreakout      AlgorithmMode = "BREAKOUT"
)

// Strictness governs how conservative a bot's schedule and risk posture are.
type Strictness string

const (
	StrictnessConservative Strictness = "CONSERVATIVE"
	StrictnessModerate     Strictness = "MODERATE"
	StrictnessAggressive   Strictness = "AGGRESSIVE"
)

// TradingMode is Paper or Live.
type TradingMode string

const (
	ModePaper TradingMode = "PAPER"
	ModeLive  TradingMode = "LIVE"
)

// ExecutionParams bounds how a trade is allowed to execute.
type ExecutionParams struct {
	MaxPriceImpactPct  decimal.Decimal
	MaxSlippageBps     int
	ConfirmTimeoutSecs int
	QuoteCacheSecs     int
}

// RiskCaps bounds position sizing and exposure for a bot.
type RiskCaps struct {
	MaxPositionUSDCRaw uint64
	MaxDailyLossUSDC   decimal.Decimal
	MaxDrawdownPct     decimal.Decimal
}

// ConfigVersion is an immutable, content-addressed snapshot of a bot's
// trading contract. Never mutated after creation; Version increases by
// exactly 1 per bot.
type ConfigVersion struct {
	ID           string
	BotID        string
	Version      int64
	Persona      string
	AssetFocus   string
	CustomAssets []string
	Algorithm    AlgorithmMode
	Strictness   Strictness
	RiskCaps     RiskCaps
	TradingMode  TradingMode
	Execution    ExecutionParams
	LLMProvider  string
	LLMKeyCipher []byte // encrypted via internal/config.Crypto when a key is configured
	CreatedAt    time.Time
}

// Hash is the bot-facing content hash of the form "{id}:{version}".
func (c ConfigVersion) Hash() string {
	return c.ID + ":" + itoa(c.Version)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// IntentState is the state lattice a TradeIntent progresses through.
// Monotonic; only the named sinks are terminal.
type IntentState string

const (
	IntentCreated           IntentState = "CREATED"
	IntentShieldCheckPassed IntentState = "SHIELD_CHECK_PASSED"
	IntentShieldCheckFailed IntentState = "SHIELD_CHECK_FAILED"
	IntentImpactTooHigh     IntentState = "IMPACT_TOO_HIGH"
	IntentQuoteObtained     IntentState = "QUOTE_OBTAINED"
	IntentSubmitted         IntentState = "SUBMITTED"
	IntentConfirmed         IntentState = "CONFIRMED"
	IntentFailed            IntentState = "FAILED"
)

// IsTerminal reports whether a state is one of the lattice's sinks.
func (s IntentState) IsTerminal() bool {
	switch s {
	case IntentConfirmed, IntentFailed, IntentShieldCheckFailed, IntentImpactTooHigh:
		return true
	default:
		return false
	}
}

// TradeIntent is a prospective trade, deduplicated by its Fingerprint.
type TradeIntent struct {
	ID                  string
	BotID               string
	InputMint           string
	OutputMint          string
	InAmountRaw         uint64
	Mode                TradingMode
	Algorithm           AlgorithmMode
	Confidence          float64
	Rationale           string
	State               IntentState
	StrategyFingerprint string // canonicalized as the desired ConfigVersion id, per spec §9
	Signature           string
	OutAmountRaw        uint64
	FailureStage        string
	FailureReason       string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Fingerprint is the deduplication key per spec §4.5:
// (bot_id, input_mint, output_mint, in_amount, mode, strategy_fingerprint).
type Fingerprint struct {
	BotID               string
	InputMint           string
	OutputMint          string
	InAmountRaw         uint64
	Mode                TradingMode
	StrategyFingerprint string
}

// Position is a single mint held in a bot's portfolio.
type Position struct {
	Mint             string
	Symbol           string
	QuantityRaw      uint64
	AvgEntryPrice    decimal.Decimal
	CurrentPrice     decimal.Decimal
	UnknownCostBasis bool
}

// Portfolio tracks a bot's cash and mint positions. CashUSDCRaw never
// exceeds math.MaxUint64 and sells use saturating arithmetic.
type Portfolio struct {
	BotID         string
	CashUSDCRaw   uint64
	Positions     map[string]*Position
	LastUpdatedAt time.Time
}

// EventType enumerates the trade taxonomy plus lifecycle/system events.
type EventType string

const (
	EventTradeIntentCreated EventType = "trade_intent_created"
	EventTradeBlocked       EventType = "trade_blocked"
	EventTradeSubmitted     EventType = "trade_submitted"
	EventTradeConfirmed     EventType = "trade_confirmed"
	EventTradeFailed        EventType = "trade_failed"
	EventPortfolioSnapshot  EventType = "portfolio_snapshot"
	EventBotShutdown        EventType = "bot_shutdown"
)

// Event is an append-only record surfaced by a bot or the control plane.
type Event struct {
	ID        string
	BotID     string
	EventType EventType
	Message   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Metric is one point of a bot's equity/pnl time series.
type Metric struct {
	BotID     string
	Timestamp time.Time
	Equity    decimal.Decimal
	PnL       decimal.Decimal
}

// PlatformConfig is an admin-managed, audited key/value row.
type PlatformConfig struct {
	Key       string
	Value     string
	Encrypted bool
	Category  string
	UpdatedBy string
	UpdatedAt time.Time
}

// ConfigAuditLog records every mutation to a PlatformConfig row.
type ConfigAuditLog struct {
	ID        string
	Key       string
	OldValue  string
	NewValue  string
	ChangedBy string
	ChangedAt time.Time
}

// ShieldVerdict is the outcome of the pre-trade safety oracle.
type ShieldVerdict string

const (
	ShieldAllow ShieldVerdict = "ALLOW"
	ShieldWarn  ShieldVerdict = "WARN"
	ShieldBlock ShieldVerdict = "BLOCK"
)

// TradeSignal is the pluggable algorithm's output for one trading-decision
// tick: a prospective swap plus the confidence/rationale carried into the
// resulting TradeIntent. A nil signal means the algorithm chose not to act.
type TradeSignal struct {
	InputMint   string
	OutputMint  string
	InAmountRaw uint64
	Confidence  float64
	Rationale   string
}

// Quote is the market-data service's pricing response for a prospective trade.
type Quote struct {
	InAmountRaw    uint64
	ExpectedOutRaw uint64
	PriceImpactPct decimal.Decimal
	FeeBps         int
}

// ExecutionResult is the outcome of the submit/confirm stages.
type ExecutionResult struct {
	Signature           string
	OutAmountRaw        uint64
	RealizedPrice       decimal.Decimal
	SlippageBpsEstimate decimal.Decimal
}

// TradeStage is the sole driver of a trade's downstream fan-out.
type TradeStage string

const (
	StageBlocked   TradeStage = "BLOCKED"
	StageSubmitted TradeStage = "SUBMITTED"
	StageConfirmed TradeStage = "CONFIRMED"
	StageFailed    TradeStage = "FAILED"
)

// TradeError is a structured error, never a free-form string, per spec §9.
type TradeError struct {
	Stage   string
	Code    string
	Message string
}

// NormalizedTradeResult is the single value produced by the trade pipeline;
// StageReached drives both intent-state updates and event emission.
type NormalizedTradeResult struct {
	IntentID     string
	StageReached TradeStage
	Signature    string
	Quote        *Quote
	Execution    *ExecutionResult
	Error        *TradeError
	InputMint    string
	OutputMint   string
	Side         string // "BUY" or "SELL", derived from InputMint == USDC
	TradingMode  TradingMode
	ShieldResult *ShieldVerdict
}

// ReconciliationOutcome classifies one mint's comparison between internal
// and on-chain state during a reconciliation pass.
type ReconciliationOutcome string

const (
	ReconcileMatch        ReconciliationOutcome = "MATCH"
	ReconcileDiscrepancy  ReconciliationOutcome = "DISCREPANCY"
	ReconcileMissingChain ReconciliationOutcome = "MISSING_ON_CHAIN"
	ReconcileNewChain     ReconciliationOutcome = "NEW_ON_CHAIN"
)

// ReconciliationResult summarizes one mint's outcome for a single pass.
type ReconciliationResult struct {
	Mint        string
	Outcome     ReconciliationOutcome
	InternalQty uint64
	OnChainQty  uint64
}

// ReconciliationStatus is the latest snapshot exposed to the status surface.
type ReconciliationStatus struct {
	ReconciliationID string
	Status           string // "never_run" | "running" | "completed" | "failed"
	StartedAt        time.Time
	CompletedAt      time.Time
	Results          []ReconciliationResult
}

// USDCMint is the canonical quote-currency mint used to classify a trade as
// a buy (input is USDC) or a sell (output is USDC).
const USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
