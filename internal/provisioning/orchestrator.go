// Package provisioning drives the host lifecycle state machine behind every
// bot: Provisioning -> Online | Error, Online <-> Paused, any -> Destroying.
// Calls into the infrastructure provider are wrapped in bounded exponential
// backoff and a shared three-state circuit breaker, both from failsafe-go —
// the same resilience library already wired into pkg/http/client.go — since
// the teacher's hand-rolled internal/risk/circuit_breaker.go only expresses
// two states (Closed/Open) and cannot admit a HalfOpen probe.
package provisioning

import (
	"context"
	"fmt"
	"time"

	"botfleet/internal/core"
	"botfleet/pkg/concurrency"
	apperrors "botfleet/pkg/errors"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
)

// Config bounds the orchestrator's retry/breaker/concurrency posture,
// mirroring bootstrap.ProvisioningConfig.
type Config struct {
	MaxConcurrent           int
	RetryBase               time.Duration
	RetryCap                time.Duration
	RetryMaxAttempts        int
	BreakerFailureThreshold int
	BreakerFailureWindow    int
	BreakerRecoveryTimeout  time.Duration
}

// provisionResult is the value threaded through the failsafe pipeline; only
// its error carries meaning, but failsafe-go is generic over the result type.
type provisionResult struct {
	hostID string
	ip     string
}

// Orchestrator owns the shared circuit breaker and provisioning semaphore
// for the whole fleet, so a cascading provider outage pauses provisioning
// instead of melting the queue (spec §4.2).
type Orchestrator struct {
	provider core.IInfraProvider
	bots     core.IBotStore
	events   core.IEventStore
	logger   core.ILogger

	pipeline failsafe.Executor[provisionResult]
	breaker  circuitbreaker.CircuitBreaker[provisionResult]
	sem      *concurrency.WorkerPool
}

// New constructs an Orchestrator sharing one breaker and one bounded
// semaphore (pkg/concurrency's pond-backed WorkerPool, run NonBlocking so a
// full semaphore rejects instead of queuing) across every provisioning call.
func New(provider core.IInfraProvider, bots core.IBotStore, events core.IEventStore, logger core.ILogger, cfg Config) *Orchestrator {
	retryPolicy := retrypolicy.NewBuilder[provisionResult]().
		HandleIf(func(_ provisionResult, err error) bool { return err != nil }).
		WithBackoff(cfg.RetryBase, cfg.RetryCap).
		WithJitterFactor(0.25).
		WithMaxAttempts(cfg.RetryMaxAttempts).
		Build()

	breaker := circuitbreaker.NewBuilder[provisionResult]().
		HandleIf(func(_ provisionResult, err error) bool { return err != nil }).
		WithFailureThresholdRatio(uint(cfg.BreakerFailureThreshold), uint(cfg.BreakerFailureWindow)).
		WithDelay(cfg.BreakerRecoveryTimeout).
		Build()

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}

	return &Orchestrator{
		provider: provider,
		bots:     bots,
		events:   events,
		logger:   logger.WithField("component", "provisioning_orchestrator"),
		pipeline: failsafe.With[provisionResult](retryPolicy, breaker),
		breaker:  breaker,
		sem: concurrency.NewWorkerPool(concurrency.PoolConfig{
			Name:        "provisioning",
			MaxWorkers:  maxConcurrent,
			MaxCapacity: maxConcurrent,
			NonBlocking: true,
		}, logger),
	}
}

// State reports the shared breaker's state for the /healthz surface.
func (o *Orchestrator) State() string {
	switch {
	case o.breaker.IsOpen():
		return "open"
	case o.breaker.IsHalfOpen():
		return "half_open"
	default:
		return "closed"
	}
}

// Provision asks the provider for a bot's host. On success it emits
// bot_provisioned and leaves the bot in Provisioning; the worker's register
// call (Register) moves it to Online. When the call fails after its retries
// the bot moves to Error. While the breaker is already open it returns
// ErrProviderUnavailable without calling the provider or changing the bot's
// status. The provisioning semaphore bounds concurrent calls to
// maxConcurrent even when the breaker is closed.
func (o *Orchestrator) Provision(ctx context.Context, botID string) error {
	if o.breaker.IsOpen() {
		return apperrors.ErrProviderUnavailable
	}

	resultCh := make(chan error, 1)
	if err := o.sem.Submit(func() {
		resultCh <- o.provisionLocked(ctx, botID)
	}); err != nil {
		return apperrors.ErrTooManyProvisions
	}

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) provisionLocked(ctx context.Context, botID string) error {
	res, err := o.pipeline.GetWithExecution(func(exec failsafe.Execution[provisionResult]) (provisionResult, error) {
		hostID, ip, err := o.provider.ProvisionHost(ctx, botID)
		return provisionResult{hostID: hostID, ip: ip}, err
	})
	if err != nil {
		o.logger.Error("provisioning failed, transitioning bot to Error", "bot_id", botID, "error", err.Error())
		_ = o.bots.UpdateStatus(ctx, botID, core.BotError)
		o.emit(ctx, botID, core.EventType("bot_provision_failed"), err.Error())
		return apperrors.Wrap(apperrors.ResourceUnavailable, "provisioning failed", err)
	}

	o.logger.Info("host provisioned", "bot_id", botID, "host_id", res.hostID, "ip", res.ip)
	o.emit(ctx, botID, core.EventType("bot_provisioned"), fmt.Sprintf("host %s ready at %s", res.hostID, res.ip))
	return nil
}

// Register handles the worker's register call: Provisioning -> Online.
// Idempotent by bot_id; returns Conflict if the bot is not currently
// Provisioning (spec §4.3).
func (o *Orchestrator) Register(ctx context.Context, bot *core.Bot, walletAddress string) error {
	if bot.Status != core.BotProvisioning {
		return apperrors.Wrap(apperrors.Conflict, fmt.Sprintf("bot %s is not in Provisioning state", bot.ID), nil)
	}
	if err := o.bots.UpdateStatus(ctx, bot.ID, core.BotOnline); err != nil {
		return fmt.Errorf("register bot online: %w", err)
	}
	if walletAddress != "" {
		if err := o.bots.SetWallet(ctx, bot.ID, walletAddress); err != nil {
			return fmt.Errorf("set wallet on register: %w", err)
		}
	}
	o.emit(ctx, bot.ID, core.EventType("bot_registered"), "worker registered and is now online")
	return nil
}

// Pause transitions Online -> Paused.
func (o *Orchestrator) Pause(ctx context.Context, botID string) error {
	return o.bots.UpdateStatus(ctx, botID, core.BotPaused)
}

// Resume transitions Paused -> Online.
func (o *Orchestrator) Resume(ctx context.Context, botID string) error {
	return o.bots.UpdateStatus(ctx, botID, core.BotOnline)
}

// Destroy transitions any state into Destroying; the orphan sweeper (or an
// explicit Teardown call) later releases the host and removes the row.
func (o *Orchestrator) Destroy(ctx context.Context, botID string) error {
	if err := o.bots.UpdateStatus(ctx, botID, core.BotDestroying); err != nil {
		return err
	}
	o.emit(ctx, botID, core.EventType("bot_destroying"), "destroy requested")
	return nil
}

// Teardown releases the bot's host through the same resilient pipeline and
// reports whether the release itself succeeded; used by the orphan sweeper
// once it holds the advisory lock.
func (o *Orchestrator) Teardown(ctx context.Context, bot *core.Bot) error {
	if bot.HostID == "" {
		return nil
	}
	_, err := o.pipeline.GetWithExecution(func(exec failsafe.Execution[provisionResult]) (provisionResult, error) {
		return provisionResult{}, o.provider.ReleaseHost(ctx, bot.HostID)
	})
	if err != nil {
		return fmt.Errorf("release host %s: %w", bot.HostID, err)
	}
	return nil
}

func (o *Orchestrator) emit(ctx context.Context, botID string, eventType core.EventType, message string) {
	if o.events == nil {
		return
	}
	_ = o.events.Append(ctx, &core.Event{
		ID:        uuid.New().String(),
		BotID:     botID,
		EventType: eventType,
		Message:   message,
		CreatedAt: time.Now(),
	})
}
