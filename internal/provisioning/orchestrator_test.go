package provisioning

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"botfleet/internal/core"
	"botfleet/pkg/logging"

	apperrors "botfleet/pkg/errors"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu          sync.Mutex
	failAlways  bool
	releaseErr  error
	gate        chan struct{} // when non-nil, ProvisionHost blocks until gate is closed
	entered     chan struct{} // closed (once) the instant ProvisionHost is entered
	provisioned int
}

func (f *fakeProvider) ProvisionHost(ctx context.Context, botID string) (string, string, error) {
	if f.entered != nil {
		select {
		case <-f.entered:
		default:
			close(f.entered)
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.provisioned++
	f.mu.Unlock()
	if f.failAlways {
		return "", "", fmt.Errorf("provider down")
	}
	return "host-" + botID, "10.0.0.1", nil
}

func (f *fakeProvider) ReleaseHost(ctx context.Context, hostID string) error { return f.releaseErr }
func (f *fakeProvider) CheckHost(ctx context.Context, hostID string) error  { return nil }

type fakeOrchBotStore struct {
	mu       sync.Mutex
	statuses map[string]core.BotStatus
}

func newFakeOrchBotStore() *fakeOrchBotStore {
	return &fakeOrchBotStore{statuses: make(map[string]core.BotStatus)}
}

func (f *fakeOrchBotStore) CreateBot(ctx context.Context, bot *core.Bot) error { return nil }
func (f *fakeOrchBotStore) GetBot(ctx context.Context, id string) (*core.Bot, error) {
	return nil, nil
}
func (f *fakeOrchBotStore) ListBotsByUser(ctx context.Context, userID string) ([]*core.Bot, error) {
	return nil, nil
}
func (f *fakeOrchBotStore) UpdateStatus(ctx context.Context, id string, status core.BotStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}
func (f *fakeOrchBotStore) SetDesiredVersion(ctx context.Context, botID, versionID string) error {
	return nil
}
func (f *fakeOrchBotStore) SetAppliedVersion(ctx context.Context, botID, versionID string) error {
	return nil
}
func (f *fakeOrchBotStore) SetWallet(ctx context.Context, botID, address string) error { return nil }
func (f *fakeOrchBotStore) TouchHeartbeat(ctx context.Context, botID string, at int64) error {
	return nil
}
func (f *fakeOrchBotStore) ListStuck(ctx context.Context, status core.BotStatus, olderThanSecs int64) ([]*core.Bot, error) {
	return nil, nil
}
func (f *fakeOrchBotStore) TryAdvisoryLock(ctx context.Context, botID string) (bool, func(), error) {
	return true, func() {}, nil
}
func (f *fakeOrchBotStore) DeleteBot(ctx context.Context, id string) error { return nil }

func (f *fakeOrchBotStore) status(id string) core.BotStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id]
}

func testLogger(t *testing.T) core.ILogger {
	t.Helper()
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	return logger
}

// Repeated provisioning failures trip the breaker open; once open, Provision
// fails fast with ErrProviderUnavailable instead of calling the provider
// again.
func TestOrchestrator_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	provider := &fakeProvider{failAlways: true}
	bots := newFakeOrchBotStore()
	o := New(provider, bots, nil, testLogger(t), Config{
		MaxConcurrent:           4,
		RetryBase:               time.Millisecond,
		RetryCap:                2 * time.Millisecond,
		RetryMaxAttempts:        1,
		BreakerFailureThreshold: 2,
		BreakerFailureWindow:    2,
		BreakerRecoveryTimeout:  time.Hour,
	})

	for i := 0; i < 2; i++ {
		botID := fmt.Sprintf("bot-%d", i)
		err := o.Provision(context.Background(), botID)
		require.Error(t, err)
		require.Equal(t, core.BotError, bots.status(botID))
	}

	require.Equal(t, "open", o.State())

	calls := provider.provisioned
	err := o.Provision(context.Background(), "bot-after-open")
	require.ErrorIs(t, err, apperrors.ErrProviderUnavailable)
	require.Equal(t, calls, provider.provisioned, "breaker-open call must not reach the provider")
}

// A successful Provision calls through to the provider exactly once and
// never trips the breaker.
func TestOrchestrator_SuccessfulProvisionKeepsBreakerClosed(t *testing.T) {
	provider := &fakeProvider{}
	bots := newFakeOrchBotStore()
	o := New(provider, bots, nil, testLogger(t), Config{
		MaxConcurrent:           4,
		RetryBase:               time.Millisecond,
		RetryCap:                2 * time.Millisecond,
		RetryMaxAttempts:        1,
		BreakerFailureThreshold: 2,
		BreakerFailureWindow:    2,
		BreakerRecoveryTimeout:  time.Hour,
	})

	err := o.Provision(context.Background(), "bot-1")
	require.NoError(t, err)
	require.Equal(t, "closed", o.State())
	require.Equal(t, 1, provider.provisioned)
}

// The provisioning semaphore rejects once MaxConcurrent in-flight calls are
// already occupying it, independent of the breaker.
func TestOrchestrator_SemaphoreRejectsBeyondMaxConcurrent(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{})
	provider := &fakeProvider{gate: gate, entered: entered}
	bots := newFakeOrchBotStore()
	o := New(provider, bots, nil, testLogger(t), Config{
		MaxConcurrent:           1,
		RetryBase:               time.Millisecond,
		RetryCap:                2 * time.Millisecond,
		RetryMaxAttempts:        1,
		BreakerFailureThreshold: 100,
		BreakerFailureWindow:    100,
		BreakerRecoveryTimeout:  time.Hour,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- o.Provision(context.Background(), "bot-first") }()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first Provision call never reached the provider")
	}

	err := o.Provision(context.Background(), "bot-second")
	require.ErrorIs(t, err, apperrors.ErrTooManyProvisions)

	close(gate)
	require.NoError(t, <-errCh)
}
