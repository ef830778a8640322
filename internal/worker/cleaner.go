package worker

import (
	"context"
	"sync"
	"time"

	"botfleet/internal/core"
)

// RetentionConfig bounds how long events, metrics, and trade intents survive
// before the cleanup timer purges them.
type RetentionConfig struct {
	EventRetention  time.Duration // default 30d
	MetricRetention time.Duration // default 90d
	IntentTTL       int64         // seconds, default 3600 (1h)
	Interval        time.Duration // cleanup ticker period, default 1h
}

// DefaultRetentionConfig matches the defaults named in spec §4.9a.
var DefaultRetentionConfig = RetentionConfig{
	EventRetention:  30 * 24 * time.Hour,
	MetricRetention: 90 * 24 * time.Hour,
	IntentTTL:       3600,
	Interval:        1 * time.Hour,
}

// Cleaner runs a periodic sweep that enforces event/metric retention and
// garbage-collects terminal trade intents past their TTL. Grounded in the
// same ticker-loop shape as Reconciler; a single pass never blocks trading.
type Cleaner struct {
	events   core.IEventStore
	metrics  core.IMetricStore
	registry core.IIntentRegistry
	logger   core.ILogger
	cfg      RetentionConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCleaner constructs a Cleaner. registry may be nil for control-plane-side
// event/metric-only cleanup; events/metrics may be nil for a worker that only
// GCs its in-memory intent registry.
func NewCleaner(events core.IEventStore, metrics core.IMetricStore, registry core.IIntentRegistry, logger core.ILogger, cfg RetentionConfig) *Cleaner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cleaner{
		events:   events,
		metrics:  metrics,
		registry: registry,
		logger:   logger.WithField("component", "cleaner"),
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the cleanup ticker loop.
func (c *Cleaner) Start(ctx context.Context) error {
	c.logger.Info("starting cleaner", "interval", c.cfg.Interval)
	c.wg.Add(1)
	go c.runLoop()
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (c *Cleaner) Stop() error {
	c.cancel()
	c.wg.Wait()
	return nil
}

func (c *Cleaner) runLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
			c.Sweep(ctx)
			cancel()
		}
	}
}

// Sweep runs one retention pass: event TTL, metric TTL, intent-registry GC.
// Each sub-step is independent; a failure in one never skips the others.
func (c *Cleaner) Sweep(ctx context.Context) {
	now := time.Now()

	if c.events != nil {
		cutoff := now.Add(-c.cfg.EventRetention).Unix()
		n, err := c.events.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			c.logger.Error("event retention sweep failed", "error", err.Error())
		} else if n > 0 {
			c.logger.Info("purged expired events", "count", n)
		}
	}

	if c.metrics != nil {
		cutoff := now.Add(-c.cfg.MetricRetention).Unix()
		n, err := c.metrics.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			c.logger.Error("metric retention sweep failed", "error", err.Error())
		} else if n > 0 {
			c.logger.Info("purged expired metrics", "count", n)
		}
	}

	if c.registry != nil {
		n := c.registry.Cleanup(c.cfg.IntentTTL)
		if n > 0 {
			c.logger.Info("purged expired trade intents", "count", n)
		}
	}
}
