package provisioning

import (
	"context"
	"sync"
	"time"

	"botfleet/internal/core"
)

// SweeperConfig bounds how long a bot may sit in Provisioning or Destroying
// before the sweeper treats it as orphaned.
type SweeperConfig struct {
	Interval            time.Duration
	ProvisioningTimeout time.Duration
	DestroyingTimeout   time.Duration
}

// Sweeper is a background timer that scans for bots stuck past their
// per-state timeout and recovers them. Each candidate is only acted on
// after taking the bot's non-blocking advisory lock, so a concurrent
// user-initiated destroy always wins; status is re-read inside the locked
// section to close the TOCTOU window spec §4.2 calls out explicitly.
type Sweeper struct {
	bots         core.IBotStore
	orchestrator *Orchestrator
	logger       core.ILogger
	cfg          SweeperConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper constructs a Sweeper.
func NewSweeper(bots core.IBotStore, orchestrator *Orchestrator, logger core.ILogger, cfg SweeperConfig) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		bots:         bots,
		orchestrator: orchestrator,
		logger:       logger.WithField("component", "orphan_sweeper"),
		cfg:          cfg,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins the sweep ticker loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info("starting orphan sweeper", "interval", s.cfg.Interval)
	s.wg.Add(1)
	go s.runLoop()
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Sweeper) runLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.ctx, 60*time.Second)
			s.SweepOnce(ctx)
			cancel()
		}
	}
}

// SweepOnce runs a single round over both stuck states. Bots that fail to
// acquire the advisory lock are skipped for this round, not retried within it.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	s.sweepState(ctx, core.BotProvisioning, s.cfg.ProvisioningTimeout)
	s.sweepState(ctx, core.BotDestroying, s.cfg.DestroyingTimeout)
}

func (s *Sweeper) sweepState(ctx context.Context, status core.BotStatus, timeout time.Duration) {
	stuck, err := s.bots.ListStuck(ctx, status, int64(timeout.Seconds()))
	if err != nil {
		s.logger.Error("list stuck bots failed", "status", status, "error", err.Error())
		return
	}

	for _, bot := range stuck {
		s.sweepOne(ctx, bot, status)
	}
}

func (s *Sweeper) sweepOne(ctx context.Context, bot *core.Bot, expectedStatus core.BotStatus) {
	acquired, release, err := s.bots.TryAdvisoryLock(ctx, bot.ID)
	if err != nil {
		s.logger.Error("advisory lock attempt failed", "bot_id", bot.ID, "error", err.Error())
		return
	}
	if !acquired {
		s.logger.Debug("skipping bot held by a concurrent operation", "bot_id", bot.ID)
		return
	}
	defer release()

	// Re-read status inside the lock to close the TOCTOU window: a
	// concurrent user-initiated destroy may have already moved the bot on.
	fresh, err := s.bots.GetBot(ctx, bot.ID)
	if err != nil {
		s.logger.Error("re-read bot failed", "bot_id", bot.ID, "error", err.Error())
		return
	}
	if fresh.Status != expectedStatus {
		s.logger.Debug("bot status changed before lock acquired, skipping", "bot_id", bot.ID, "status", fresh.Status)
		return
	}

	switch expectedStatus {
	case core.BotProvisioning:
		s.logger.Warn("provisioning timed out, transitioning to Error", "bot_id", bot.ID)
		if err := s.orchestrator.Teardown(ctx, fresh); err != nil {
			s.logger.Error("best-effort host release failed", "bot_id", bot.ID, "error", err.Error())
		}
		if err := s.bots.UpdateStatus(ctx, bot.ID, core.BotError); err != nil {
			s.logger.Error("transition to Error failed", "bot_id", bot.ID, "error", err.Error())
		}
	case core.BotDestroying:
		s.logger.Warn("destroying timed out, finalizing teardown", "bot_id", bot.ID)
		if err := s.orchestrator.Teardown(ctx, fresh); err != nil {
			s.logger.Error("best-effort host release failed", "bot_id", bot.ID, "error", err.Error())
			return
		}
		if err := s.bots.DeleteBot(ctx, bot.ID); err != nil {
			s.logger.Error("finalize destroy failed", "bot_id", bot.ID, "error", err.Error())
		}
	}
}
