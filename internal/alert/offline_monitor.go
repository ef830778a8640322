package alert

import (
	"context"
	"time"

	"botfleet/internal/core"
)

// OfflineMonitor periodically scans for bots whose last heartbeat is older
// than the offline threshold and fires the cooldown-suppressed BotOffline
// alert through the shared Evaluator (spec §4.3, §4.8, §8 scenario 6).
type OfflineMonitor struct {
	bots      core.IBotStore
	evaluator *Evaluator
	logger    core.ILogger
	interval  time.Duration
	threshold time.Duration
}

// NewOfflineMonitor constructs an OfflineMonitor with the given scan period
// and offline threshold.
func NewOfflineMonitor(bots core.IBotStore, evaluator *Evaluator, logger core.ILogger, interval, threshold time.Duration) *OfflineMonitor {
	return &OfflineMonitor{
		bots:      bots,
		evaluator: evaluator,
		logger:    logger.WithField("component", "offline_monitor"),
		interval:  interval,
		threshold: threshold,
	}
}

// Run drives the scan loop until ctx is cancelled, matching the
// bootstrap.Runner contract.
func (m *OfflineMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.scanOnce(ctx)
		}
	}
}

func (m *OfflineMonitor) scanOnce(ctx context.Context) {
	stale, err := m.bots.ListStuck(ctx, core.BotOnline, int64(m.threshold.Seconds()))
	if err != nil {
		m.logger.Error("offline scan failed", "error", err.Error())
		return
	}
	for _, bot := range stale {
		m.evaluator.CheckOffline(ctx, bot.ID, bot.LastHeartbeatAt, m.threshold)
	}
}
