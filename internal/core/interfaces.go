// Package core defines the interfaces shared across the control plane and
// worker runtime.
package core

import (
	"context"
)

// ILogger defines the interface for structured logging.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// IBotStore persists Bot rows and the desired/applied version pointers.
type IBotStore interface {
	CreateBot(ctx context.Context, bot *Bot) error
	GetBot(ctx context.Context, id string) (*Bot, error)
	ListBotsByUser(ctx context.Context, userID string) ([]*Bot, error)
	UpdateStatus(ctx context.Context, id string, status BotStatus) error
	SetDesiredVersion(ctx context.Context, botID string, versionID string) error
	SetAppliedVersion(ctx context.Context, botID string, versionID string) error
	SetWallet(ctx context.Context, botID string, address string) error
	TouchHeartbeat(ctx context.Context, botID string, at int64) error
	ListStuck(ctx context.Context, status BotStatus, olderThanSecs int64) ([]*Bot, error)
	TryAdvisoryLock(ctx context.Context, botID string) (bool, func(), error)
	DeleteBot(ctx context.Context, id string) error
}

// IConfigStore persists immutable ConfigVersion rows.
type IConfigStore interface {
	CreateVersion(ctx context.Context, cv *ConfigVersion) error
	GetDesired(ctx context.Context, botID string) (*ConfigVersion, error)
	GetApplied(ctx context.Context, botID string) (*ConfigVersion, error)
	GetByID(ctx context.Context, id string) (*ConfigVersion, error)
	LatestVersion(ctx context.Context, botID string) (int64, error)
}

// IEventStore persists append-only Event rows with retention.
type IEventStore interface {
	Append(ctx context.Context, events ...*Event) error
	List(ctx context.Context, botID string, cursor string, limit int) ([]*Event, string, error)
	DeleteOlderThan(ctx context.Context, cutoffUnix int64) (int64, error)
}

// IMetricStore persists the bot equity/pnl time series with retention.
type IMetricStore interface {
	Append(ctx context.Context, m *Metric) error
	Series(ctx context.Context, botID string, sinceUnix int64) ([]*Metric, error)
	DeleteOlderThan(ctx context.Context, cutoffUnix int64) (int64, error)
}

// IPlatformConfigStore persists encrypted platform config with an audit log.
type IPlatformConfigStore interface {
	Get(ctx context.Context, key string) (*PlatformConfig, error)
	Set(ctx context.Context, cfg *PlatformConfig, changedBy string) error
	Audit(ctx context.Context, key string, limit int) ([]*ConfigAuditLog, error)
}

// IInfraProvider is the infrastructure provider the Provisioning Orchestrator
// drives; wrapped in retry + circuit breaker by the orchestrator, never here.
type IInfraProvider interface {
	ProvisionHost(ctx context.Context, botID string) (hostID string, ip string, err error)
	ReleaseHost(ctx context.Context, hostID string) error
	CheckHost(ctx context.Context, hostID string) error
}

// ICircuitBreaker exposes the three-state breaker status for observability.
type ICircuitBreaker interface {
	State() string // "closed" | "open" | "half_open"
}

// IAlertChannel fans an alert out to an external webhook.
type IAlertChannel interface {
	Name() string
	Send(ctx context.Context, alert AlertPayload) error
}

// AlertPayload is the message handed to every configured channel.
type AlertPayload struct {
	Key       string
	Level     string
	Title     string
	Message   string
	Fields    map[string]string
}

// IIntentRegistry gives fingerprint-keyed idempotency to trade attempts.
type IIntentRegistry interface {
	TryCreate(fp Fingerprint, intent *TradeIntent) (created *TradeIntent, existingID string, skip bool)
	UpdateState(id string, state IntentState, mutate func(*TradeIntent)) error
	Get(id string) (*TradeIntent, bool)
	Cleanup(ttl int64) int
}

// IShieldOracle is the external pre-trade safety check.
type IShieldOracle interface {
	Check(ctx context.Context, inputMint, outputMint string) (ShieldVerdict, string, error)
}

// IQuoteProvider is the external market-data service.
type IQuoteProvider interface {
	Quote(ctx context.Context, inputMint, outputMint string, inAmountRaw uint64) (*Quote, error)
}

// IExecutor dispatches a trade in Paper or Live mode and polls confirmation.
type IExecutor interface {
	Submit(ctx context.Context, intent *TradeIntent, quote *Quote) (signature string, err error)
	Confirm(ctx context.Context, signature string, timeoutSecs int) (*ExecutionResult, error)
}

// IStrategy is the pluggable trading algorithm (trend/mean-reversion/
// breakout) the scheduler consults once per trading-decision tick. The
// strategies themselves are an external collaborator; this is only the seam.
type IStrategy interface {
	Decide(ctx context.Context, cfg *ConfigVersion, snapshot Portfolio) (*TradeSignal, error)
}

// IChainReader reads authoritative on-chain balances for reconciliation.
type IChainReader interface {
	WalletHoldings(ctx context.Context, walletAddress string) (map[string]uint64, error)
}

// IReconciler periodically compares the internal portfolio with on-chain truth.
type IReconciler interface {
	Reconcile(ctx context.Context) (*ReconciliationStatus, error)
	GetStatus() *ReconciliationStatus
	TriggerManual(ctx context.Context) error
}

// IHealthMonitor aggregates health status from different components.
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// IControlPlaneClient is the worker-side view of the sync protocol.
type IControlPlaneClient interface {
	Register(ctx context.Context, botID string, walletAddress string) error
	GetConfig(ctx context.Context, botID string) (*ConfigVersion, string, error)
	AckConfig(ctx context.Context, botID string, version int64, hash string) error
	ReportWallet(ctx context.Context, botID string, address string) error
	Heartbeat(ctx context.Context, botID string, status BotStatus, metrics []*Metric) (needsConfigUpdate bool, err error)
	SendEvents(ctx context.Context, botID string, events []*Event) error
}
