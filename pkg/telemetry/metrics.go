package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricBotsOnline              = "botfleet_bots_online"
	MetricBotsByStatus            = "botfleet_bots_by_status"
	MetricTradesSubmittedTotal    = "botfleet_trades_submitted_total"
	MetricTradesConfirmedTotal    = "botfleet_trades_confirmed_total"
	MetricTradesBlockedTotal      = "botfleet_trades_blocked_total"
	MetricTradesFailedTotal       = "botfleet_trades_failed_total"
	MetricReconciliationDiscreps  = "botfleet_reconciliation_discrepancies_total"
	MetricAlertsFiredTotal        = "botfleet_alerts_fired_total"
	MetricProvisioningLatencyMs   = "botfleet_provisioning_latency_ms"
	MetricProvisioningBreakerOpen = "botfleet_provisioning_breaker_open"
	MetricHeartbeatLatencyMs      = "botfleet_heartbeat_latency_ms"
)

// MetricsHolder holds initialized instruments for the control plane and
// worker processes.
type MetricsHolder struct {
	BotsOnline             metric.Int64ObservableGauge
	BotsByStatus           metric.Int64ObservableGauge
	TradesSubmittedTotal   metric.Int64Counter
	TradesConfirmedTotal   metric.Int64Counter
	TradesBlockedTotal     metric.Int64Counter
	TradesFailedTotal      metric.Int64Counter
	ReconciliationDiscreps metric.Int64Counter
	AlertsFiredTotal       metric.Int64Counter
	ProvisioningLatency    metric.Float64Histogram
	ProvisioningBreakerOpen metric.Int64ObservableGauge
	HeartbeatLatency       metric.Float64Histogram

	mu              sync.RWMutex
	botsOnlineCount int64
	botsByStatus    map[string]int64
	breakerOpenMap  map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			botsByStatus:   make(map[string]int64),
			breakerOpenMap: make(map[string]int64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.TradesSubmittedTotal, err = meter.Int64Counter(MetricTradesSubmittedTotal, metric.WithDescription("Total trades dispatched to submission"))
	if err != nil {
		return err
	}

	m.TradesConfirmedTotal, err = meter.Int64Counter(MetricTradesConfirmedTotal, metric.WithDescription("Total trades confirmed on-chain"))
	if err != nil {
		return err
	}

	m.TradesBlockedTotal, err = meter.Int64Counter(MetricTradesBlockedTotal, metric.WithDescription("Total trades blocked by shield or impact checks"))
	if err != nil {
		return err
	}

	m.TradesFailedTotal, err = meter.Int64Counter(MetricTradesFailedTotal, metric.WithDescription("Total trades that failed submission or confirmation"))
	if err != nil {
		return err
	}

	m.ReconciliationDiscreps, err = meter.Int64Counter(MetricReconciliationDiscreps, metric.WithDescription("Total on-chain vs internal portfolio discrepancies corrected"))
	if err != nil {
		return err
	}

	m.AlertsFiredTotal, err = meter.Int64Counter(MetricAlertsFiredTotal, metric.WithDescription("Total alerts fired across all cooldown keys"))
	if err != nil {
		return err
	}

	m.ProvisioningLatency, err = meter.Float64Histogram(MetricProvisioningLatencyMs, metric.WithDescription("Latency of infrastructure provisioning calls"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.HeartbeatLatency, err = meter.Float64Histogram(MetricHeartbeatLatencyMs, metric.WithDescription("Latency between expected and received worker heartbeats"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.BotsOnline, err = meter.Int64ObservableGauge(MetricBotsOnline, metric.WithDescription("Current count of bots with status ONLINE"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.botsOnlineCount)
			return nil
		}))
	if err != nil {
		return err
	}

	m.BotsByStatus, err = meter.Int64ObservableGauge(MetricBotsByStatus, metric.WithDescription("Current count of bots per lifecycle status"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for status, count := range m.botsByStatus {
				obs.Observe(count, metric.WithAttributes(attribute.String("status", status)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.ProvisioningBreakerOpen, err = meter.Int64ObservableGauge(MetricProvisioningBreakerOpen, metric.WithDescription("Infrastructure provider circuit breaker open state (1=open, 0=closed)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for provider, val := range m.breakerOpenMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("provider", provider)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// SetBotsOnline updates the observable gauge backing state.
func (m *MetricsHolder) SetBotsOnline(count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botsOnlineCount = count
}

// SetBotsByStatus replaces the per-status counts.
func (m *MetricsHolder) SetBotsByStatus(counts map[string]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botsByStatus = counts
}

// SetBreakerOpen records an infra provider's breaker state.
func (m *MetricsHolder) SetBreakerOpen(provider string, open bool) {
	val := int64(0)
	if open {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakerOpenMap[provider] = val
}
