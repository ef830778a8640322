package provisioning

import (
	"context"
	"testing"
	"time"

	"botfleet/internal/core"

	"github.com/stretchr/testify/require"
)

type sweeperBotStore struct {
	fakeOrchBotStore
	stuck          []*core.Bot
	lockAcquirable bool
	released       bool
	getBotResult   *core.Bot
	deletedIDs     []string
}

func newSweeperBotStore() *sweeperBotStore {
	return &sweeperBotStore{fakeOrchBotStore: *newFakeOrchBotStore(), lockAcquirable: true}
}

func (s *sweeperBotStore) ListStuck(ctx context.Context, status core.BotStatus, olderThanSecs int64) ([]*core.Bot, error) {
	var out []*core.Bot
	for _, b := range s.stuck {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *sweeperBotStore) TryAdvisoryLock(ctx context.Context, botID string) (bool, func(), error) {
	if !s.lockAcquirable {
		return false, nil, nil
	}
	return true, func() { s.released = true }, nil
}

func (s *sweeperBotStore) GetBot(ctx context.Context, id string) (*core.Bot, error) {
	return s.getBotResult, nil
}

func (s *sweeperBotStore) DeleteBot(ctx context.Context, id string) error {
	s.deletedIDs = append(s.deletedIDs, id)
	return nil
}

// A bot that cannot be locked (held by a concurrent operation) is skipped
// entirely this round: no teardown call, and the orchestrator is left alone.
func TestSweeper_SkipsBotItCannotLock(t *testing.T) {
	bots := newSweeperBotStore()
	bots.lockAcquirable = false
	bots.stuck = []*core.Bot{{ID: "bot-1", Status: core.BotProvisioning}}

	provider := &fakeProvider{}
	orch := New(provider, bots, nil, testLogger(t), Config{MaxConcurrent: 1, RetryMaxAttempts: 1, BreakerFailureThreshold: 100, BreakerFailureWindow: 100})

	sweeper := NewSweeper(bots, orch, testLogger(t), SweeperConfig{ProvisioningTimeout: time.Minute, DestroyingTimeout: time.Minute})
	sweeper.SweepOnce(context.Background())

	require.Equal(t, 0, provider.provisioned)
	require.False(t, bots.released)
}

// TOCTOU: by the time the lock is held, the bot's status has already moved
// on (e.g. a concurrent user-initiated destroy) — the sweeper must re-read
// status inside the lock and skip rather than acting on stale state.
func TestSweeper_ReReadsStatusInsideLockAndSkipsIfChanged(t *testing.T) {
	bots := newSweeperBotStore()
	bots.stuck = []*core.Bot{{ID: "bot-1", Status: core.BotProvisioning}}
	bots.getBotResult = &core.Bot{ID: "bot-1", Status: core.BotDestroying} // changed after listing, before lock

	provider := &fakeProvider{}
	orch := New(provider, bots, nil, testLogger(t), Config{MaxConcurrent: 1, RetryMaxAttempts: 1, BreakerFailureThreshold: 100, BreakerFailureWindow: 100})

	sweeper := NewSweeper(bots, orch, testLogger(t), SweeperConfig{ProvisioningTimeout: time.Minute, DestroyingTimeout: time.Minute})
	sweeper.SweepOnce(context.Background())

	require.Empty(t, bots.deletedIDs)
	require.NotEqual(t, core.BotError, bots.status("bot-1"))
	require.True(t, bots.released, "lock must still be released even when the sweep takes no action")
}

// A bot genuinely stuck in Provisioning past its timeout is torn down and
// moved to Error.
func TestSweeper_TornDownProvisioningBotMovesToError(t *testing.T) {
	bots := newSweeperBotStore()
	bots.stuck = []*core.Bot{{ID: "bot-1", Status: core.BotProvisioning}}
	bots.getBotResult = &core.Bot{ID: "bot-1", Status: core.BotProvisioning}

	provider := &fakeProvider{}
	orch := New(provider, bots, nil, testLogger(t), Config{MaxConcurrent: 1, RetryMaxAttempts: 1, BreakerFailureThreshold: 100, BreakerFailureWindow: 100})

	sweeper := NewSweeper(bots, orch, testLogger(t), SweeperConfig{ProvisioningTimeout: time.Minute, DestroyingTimeout: time.Minute})
	sweeper.SweepOnce(context.Background())

	require.Equal(t, core.BotError, bots.status("bot-1"))
	require.True(t, bots.released)
}

// A bot genuinely stuck in Destroying past its timeout is torn down and
// removed entirely.
func TestSweeper_TornDownDestroyingBotIsDeleted(t *testing.T) {
	bots := newSweeperBotStore()
	bots.stuck = []*core.Bot{{ID: "bot-1", Status: core.BotDestroying}}
	bots.getBotResult = &core.Bot{ID: "bot-1", Status: core.BotDestroying}

	provider := &fakeProvider{}
	orch := New(provider, bots, nil, testLogger(t), Config{MaxConcurrent: 1, RetryMaxAttempts: 1, BreakerFailureThreshold: 100, BreakerFailureWindow: 100})

	sweeper := NewSweeper(bots, orch, testLogger(t), SweeperConfig{ProvisioningTimeout: time.Minute, DestroyingTimeout: time.Minute})
	sweeper.SweepOnce(context.Background())

	require.Equal(t, []string{"bot-1"}, bots.deletedIDs)
}
