package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"botfleet/internal/core"
)

// Key identifies one of the named alert conditions spec §4.8 enumerates,
// each with its own cooldown.
type Key string

const (
	KeyDailyLoss         Key = "daily_loss"
	KeyDrawdown          Key = "drawdown"
	KeyPositionSize      Key = "position_size"
	KeyOffline           Key = "offline"
	KeyRepeatedTradeFail Key = "repeated_trade_fail"
	KeyConfigMismatch    Key = "config_mismatch"
)

// Cooldowns are the per-key minimum interval between two firings of the
// same (bot, key) pair, per spec §4.8.
var Cooldowns = map[Key]time.Duration{
	KeyDailyLoss:         1 * time.Hour,
	KeyDrawdown:          30 * time.Minute,
	KeyPositionSize:      10 * time.Minute,
	KeyOffline:           15 * time.Minute,
	KeyRepeatedTradeFail: 10 * time.Minute,
	KeyConfigMismatch:    1 * time.Hour,
}

type cooldownEntry struct {
	lastFiredAt  time.Time
	count        int64
	acknowledged bool
}

// Evaluator is a cooldown-suppressed alert firing engine. One mutex guards
// the cooldown map, matching spec §5's single-lock shared-state model.
type Evaluator struct {
	mu       sync.Mutex
	cooldown map[string]*cooldownEntry
	manager  *AlertManager
	logger   core.ILogger
}

// NewEvaluator creates an Evaluator that fans firing alerts out via manager.
func NewEvaluator(manager *AlertManager, logger core.ILogger) *Evaluator {
	return &Evaluator{
		cooldown: make(map[string]*cooldownEntry),
		manager:  manager,
		logger:   logger.WithField("component", "alert_evaluator"),
	}
}

func entryKey(botID string, key Key) string {
	return botID + ":" + string(key)
}

// Fire attempts to fire the named alert for botID. It only fires when the
// cooldown has elapsed and the alert has not been acknowledged; otherwise it
// is a no-op. Firing records the timestamp and increments the count.
func (e *Evaluator) Fire(ctx context.Context, botID string, key Key, level, title, message string, fields map[string]string) {
	ek := entryKey(botID, key)
	cooldown := Cooldowns[key]

	e.mu.Lock()
	entry, ok := e.cooldown[ek]
	if !ok {
		entry = &cooldownEntry{}
		e.cooldown[ek] = entry
	}
	now := time.Now()
	if entry.acknowledged || now.Sub(entry.lastFiredAt) < cooldown {
		e.mu.Unlock()
		return
	}
	entry.lastFiredAt = now
	entry.count++
	e.mu.Unlock()

	e.manager.Alert(ctx, title, message, AlertLevel(level), fields)
}

// Acknowledge suppresses further firing of (botID, key) until the next
// cooldown-eligible condition resets it via Reset.
func (e *Evaluator) Acknowledge(botID string, key Key) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.cooldown[entryKey(botID, key)]; ok {
		entry.acknowledged = true
	}
}

// Reset clears the acknowledgement and cooldown state for (botID, key),
// e.g. once a heartbeat resumes after an offline alert.
func (e *Evaluator) Reset(botID string, key Key) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cooldown, entryKey(botID, key))
}

// CheckOffline fires KeyOffline when now-lastHeartbeat exceeds threshold.
func (e *Evaluator) CheckOffline(ctx context.Context, botID string, lastHeartbeatAt time.Time, threshold time.Duration) {
	if time.Since(lastHeartbeatAt) <= threshold {
		e.Reset(botID, KeyOffline)
		return
	}
	e.Fire(ctx, botID, KeyOffline, "CRITICAL",
		fmt.Sprintf("Bot %s offline", botID),
		fmt.Sprintf("no heartbeat received in %s", time.Since(lastHeartbeatAt).Round(time.Second)),
		map[string]string{"bot_id": botID})
}
