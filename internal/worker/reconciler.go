// Package worker implements the per-bot worker runtime: the cooperative
// scheduler, retention cleanup, and on-chain portfolio reconciliation.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"botfleet/internal/alert"
	"botfleet/internal/core"
	"botfleet/internal/portfolio"
)

// Reconciler periodically compares on-chain holdings against the internal
// portfolio. Ticker-driven, mutex-guarded single-flight run, adapted from
// the teacher's position reconciler: reads are serial, corrections always
// apply, and a manual trigger is available for the admin surface.
type Reconciler struct {
	chain     core.IChainReader
	portfolio *portfolio.Portfolio
	events    core.IEventStore
	evaluator *alert.Evaluator
	logger    core.ILogger
	botID     string
	wallet    string
	interval  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	runMu  sync.Mutex

	statusMu   sync.RWMutex
	lastResult *core.ReconciliationStatus
}

// NewReconciler constructs a Reconciler for a single bot's wallet.
func NewReconciler(chain core.IChainReader, pf *portfolio.Portfolio, events core.IEventStore, evaluator *alert.Evaluator, logger core.ILogger, botID, wallet string, interval time.Duration) *Reconciler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		chain:     chain,
		portfolio: pf,
		events:    events,
		evaluator: evaluator,
		logger:    logger.WithField("component", "reconciler").WithField("bot_id", botID),
		botID:     botID,
		wallet:    wallet,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
		lastResult: &core.ReconciliationStatus{
			Status: "never_run",
		},
	}
}

// Start begins the reconciliation ticker loop.
func (r *Reconciler) Start(ctx context.Context) error {
	r.logger.Info("starting reconciler", "interval", r.interval)
	r.wg.Add(1)
	go r.runLoop()
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (r *Reconciler) Stop() error {
	r.cancel()
	r.wg.Wait()
	return nil
}

func (r *Reconciler) runLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(r.ctx, 30*time.Second)
			if _, err := r.Reconcile(ctx); err != nil {
				r.logger.Error("reconciliation failed", "error", err.Error())
			}
			cancel()
		}
	}
}

// Reconcile performs a single pass: Match/Discrepancy/MissingOnChain/NewOnChain
// per mint, per spec §4.7. Reconciliation is idempotent and serial.
func (r *Reconciler) Reconcile(ctx context.Context) (*core.ReconciliationStatus, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	recID := fmt.Sprintf("rec_%d", time.Now().UnixNano())
	start := time.Now()
	r.setStatus(&core.ReconciliationStatus{ReconciliationID: recID, Status: "running", StartedAt: start})

	holdings, err := r.chain.WalletHoldings(ctx, r.wallet)
	if err != nil {
		r.setStatus(&core.ReconciliationStatus{ReconciliationID: recID, Status: "failed", StartedAt: start, CompletedAt: time.Now()})
		return nil, fmt.Errorf("fetch wallet holdings: %w", err)
	}

	results := r.portfolio.Reconcile(holdings)

	r.setStatus(&core.ReconciliationStatus{
		ReconciliationID: recID,
		Status:           "completed",
		StartedAt:        start,
		CompletedAt:      time.Now(),
		Results:          results,
	})

	if r.events != nil {
		_ = r.events.Append(ctx, &core.Event{
			BotID:     r.botID,
			EventType: core.EventPortfolioSnapshot,
			Message:   fmt.Sprintf("reconciliation %s completed with %d results", recID, len(results)),
			CreatedAt: time.Now(),
		})
	}

	for _, res := range results {
		if res.Outcome == core.ReconcileDiscrepancy {
			r.logger.Warn("position divergence corrected", "mint", res.Mint, "internal", res.InternalQty, "on_chain", res.OnChainQty)
		}
	}

	return r.GetStatus(), nil
}

func (r *Reconciler) setStatus(s *core.ReconciliationStatus) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	r.lastResult = s
}

// GetStatus returns the most recent reconciliation snapshot.
func (r *Reconciler) GetStatus() *core.ReconciliationStatus {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.lastResult
}

// TriggerManual runs an out-of-band reconciliation immediately.
func (r *Reconciler) TriggerManual(ctx context.Context) error {
	r.logger.Info("manual reconciliation triggered")
	_, err := r.Reconcile(ctx)
	return err
}
