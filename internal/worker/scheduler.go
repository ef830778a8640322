package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"botfleet/internal/core"
	"botfleet/internal/intent"
	"botfleet/internal/portfolio"
	"botfleet/internal/trade"

	"github.com/google/uuid"
)

// SchedulerConfig bounds the cooperative scheduler's five named timer periods.
type SchedulerConfig struct {
	ConfigPollInterval      time.Duration
	HeartbeatInterval       time.Duration
	TradingDecisionInterval time.Duration
	ReconciliationInterval  time.Duration
	IntentGCInterval        time.Duration
	IntentTTLSecs           int64
	ShutdownTimeout         time.Duration
}

// Scheduler is the worker's single-threaded cooperative runtime: one select
// across five named timers plus the shutdown signal, generalized from
// reconciler.go/cleaner.go's ticker-loop shape per the Rust original's
// run_main_loop (tokio::select!). All shared state — current config,
// portfolio, intent registry, trade count — is touched only from inside the
// select body, so none of it needs its own lock (spec §4.4/§5).
type Scheduler struct {
	botID  string
	wallet string

	controlPlane core.IControlPlaneClient
	strategy     core.IStrategy
	engine       *trade.Engine
	registry     *intent.Registry
	pf           *portfolio.Portfolio
	reconciler   *Reconciler
	events       core.IEventStore
	logger       core.ILogger

	cfg SchedulerConfig

	currentConfig *core.ConfigVersion
	desiredHash   string
	tradeCount    int64

	mu sync.RWMutex // guards only currentConfig/desiredHash for the read-only status surface
}

// NewScheduler constructs a Scheduler for a single bot.
func NewScheduler(botID, wallet string, controlPlane core.IControlPlaneClient, strategy core.IStrategy,
	engine *trade.Engine, registry *intent.Registry, pf *portfolio.Portfolio, reconciler *Reconciler,
	events core.IEventStore, logger core.ILogger, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		botID:        botID,
		wallet:       wallet,
		controlPlane: controlPlane,
		strategy:     strategy,
		engine:       engine,
		registry:     registry,
		pf:           pf,
		reconciler:   reconciler,
		events:       events,
		logger:       logger.WithField("component", "scheduler").WithField("bot_id", botID),
		cfg:          cfg,
	}
}

// Run drives the scheduler until ctx is cancelled, at which point it flushes
// a final heartbeat and bot_shutdown event within ShutdownTimeout and returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler")

	configPoll := time.NewTicker(s.cfg.ConfigPollInterval)
	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	tradingDecision := time.NewTicker(s.cfg.TradingDecisionInterval)
	reconciliation := time.NewTicker(s.cfg.ReconciliationInterval)
	intentGC := time.NewTicker(s.cfg.IntentGCInterval)
	defer configPoll.Stop()
	defer heartbeat.Stop()
	defer tradingDecision.Stop()
	defer reconciliation.Stop()
	defer intentGC.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil

		case <-configPoll.C:
			s.pollConfig(ctx)

		case <-heartbeat.C:
			s.sendHeartbeat(ctx)

		case <-tradingDecision.C:
			s.decide(ctx)

		case <-reconciliation.C:
			if s.reconciler != nil {
				if _, err := s.reconciler.Reconcile(ctx); err != nil {
					s.logger.Error("reconciliation cycle failed", "error", err.Error())
				}
			}

		case <-intentGC.C:
			if n := s.registry.Cleanup(s.cfg.IntentTTLSecs); n > 0 {
				s.logger.Info("garbage-collected expired intents", "count", n)
			}
		}
	}
}

// pollConfig implements the apply-config protocol from spec §4.4: fetch the
// desired version, ack under its hash, and only on ack success swap
// current_config atomically. A Conflict on ack discards this tick's result
// and is retried on the next poll.
func (s *Scheduler) pollConfig(ctx context.Context) {
	next, hash, err := s.controlPlane.GetConfig(ctx, s.botID)
	if err != nil {
		s.logger.Error("config poll failed", "error", err.Error())
		return
	}

	s.mu.RLock()
	unchanged := s.currentConfig != nil && s.currentConfig.ID == next.ID && s.currentConfig.Version == next.Version
	s.mu.RUnlock()
	if unchanged {
		return
	}

	if err := s.controlPlane.AckConfig(ctx, s.botID, next.Version, hash); err != nil {
		s.logger.Warn("config ack rejected, will retry next tick", "error", err.Error())
		return
	}

	s.mu.Lock()
	prev := s.currentConfig
	s.currentConfig = next
	s.desiredHash = hash
	s.mu.Unlock()

	if prev != nil && prev.TradingMode != next.TradingMode {
		s.logger.Warn("trading mode transition", "bot_id", s.botID, "from", prev.TradingMode, "to", next.TradingMode)
	}
	s.logger.Info("applied new config version", "version", next.Version)
}

// sendHeartbeat reports liveness; a needs_config_update response short-circuits
// to an immediate config poll rather than waiting for the next tick.
func (s *Scheduler) sendHeartbeat(ctx context.Context) {
	needsUpdate, err := s.controlPlane.Heartbeat(ctx, s.botID, core.BotOnline, nil)
	if err != nil {
		s.logger.Error("heartbeat failed", "error", err.Error())
		return
	}
	if needsUpdate {
		s.pollConfig(ctx)
	}
}

// decide consults the pluggable strategy and, if it produces a signal, runs
// it through the idempotent intent registry and the trade pipeline. Per-bot
// in-flight trades are serial by construction: the scheduler is
// single-threaded, so only one trade runs at a time.
func (s *Scheduler) decide(ctx context.Context) {
	s.mu.RLock()
	cfg := s.currentConfig
	s.mu.RUnlock()
	if cfg == nil {
		return
	}

	signal, err := s.strategy.Decide(ctx, cfg, s.pf.Snapshot())
	if err != nil {
		s.logger.Error("strategy decision failed", "error", err.Error())
		return
	}
	if signal == nil {
		return
	}

	fp := core.Fingerprint{
		BotID:               s.botID,
		InputMint:           signal.InputMint,
		OutputMint:          signal.OutputMint,
		InAmountRaw:         signal.InAmountRaw,
		Mode:                cfg.TradingMode,
		StrategyFingerprint: cfg.ID,
	}

	candidate := &core.TradeIntent{
		ID:                  uuid.New().String(),
		BotID:               s.botID,
		InputMint:           signal.InputMint,
		OutputMint:          signal.OutputMint,
		InAmountRaw:         signal.InAmountRaw,
		Mode:                cfg.TradingMode,
		Algorithm:           cfg.Algorithm,
		Confidence:          signal.Confidence,
		Rationale:           signal.Rationale,
		State:               core.IntentCreated,
		StrategyFingerprint: cfg.ID,
		CreatedAt:           time.Now(),
		UpdatedAt:           time.Now(),
	}

	created, existingID, skip := s.registry.TryCreate(fp, candidate)
	if skip {
		if existingID != "" {
			s.logger.Debug("duplicate intent suppressed", "existing_intent_id", existingID)
		}
		return
	}

	s.tradeCount++
	result, err := s.engine.Execute(ctx, created, cfg)
	if err != nil {
		s.logger.Error("trade pipeline execution failed", "intent_id", created.ID, "error", err.Error())
		return
	}
	s.logger.Info("trade pipeline finished", "intent_id", created.ID, "stage", result.StageReached)
}

func (s *Scheduler) shutdown() {
	s.logger.Info("scheduler received shutdown signal, flushing final state")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if _, err := s.controlPlane.Heartbeat(ctx, s.botID, core.BotOffline, nil); err != nil {
		s.logger.Warn("final heartbeat failed", "error", err.Error())
	}

	if s.events != nil {
		_ = s.events.Append(ctx, &core.Event{
			BotID:     s.botID,
			EventType: core.EventBotShutdown,
			Message:   fmt.Sprintf("worker for bot %s shutting down after %d trades", s.botID, s.tradeCount),
			CreatedAt: time.Now(),
		})
	} else if err := s.controlPlane.SendEvents(ctx, s.botID, []*core.Event{{
		BotID:     s.botID,
		EventType: core.EventBotShutdown,
		Message:   fmt.Sprintf("worker for bot %s shutting down after %d trades", s.botID, s.tradeCount),
		CreatedAt: time.Now(),
	}}); err != nil {
		s.logger.Warn("final bot_shutdown event delivery failed", "error", err.Error())
	}
}
