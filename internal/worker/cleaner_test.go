package worker

import (
	"context"
	"testing"
	"time"

	"botfleet/internal/core"
	"botfleet/pkg/logging"

	"github.com/stretchr/testify/require"
)

type fakeEventStore struct {
	deletedBefore int64
	callCount     int
}

func (f *fakeEventStore) Append(ctx context.Context, events ...*core.Event) error { return nil }
func (f *fakeEventStore) List(ctx context.Context, botID, cursor string, limit int) ([]*core.Event, string, error) {
	return nil, "", nil
}
func (f *fakeEventStore) DeleteOlderThan(ctx context.Context, cutoffUnix int64) (int64, error) {
	f.deletedBefore = cutoffUnix
	f.callCount++
	return 3, nil
}

type fakeMetricStore struct{ callCount int }

func (f *fakeMetricStore) Append(ctx context.Context, m *core.Metric) error { return nil }
func (f *fakeMetricStore) Series(ctx context.Context, botID string, sinceUnix int64) ([]*core.Metric, error) {
	return nil, nil
}
func (f *fakeMetricStore) DeleteOlderThan(ctx context.Context, cutoffUnix int64) (int64, error) {
	f.callCount++
	return 2, nil
}

type fakeRegistry struct{ cleanupCalls int }

func (f *fakeRegistry) TryCreate(fp core.Fingerprint, intent *core.TradeIntent) (*core.TradeIntent, string, bool) {
	return intent, "", false
}
func (f *fakeRegistry) UpdateState(id string, state core.IntentState, mutate func(*core.TradeIntent)) error {
	return nil
}
func (f *fakeRegistry) Get(id string) (*core.TradeIntent, bool) { return nil, false }
func (f *fakeRegistry) Cleanup(ttl int64) int {
	f.cleanupCalls++
	return 1
}

func TestCleaner_SweepInvokesAllThreeRetentionPaths(t *testing.T) {
	events := &fakeEventStore{}
	metrics := &fakeMetricStore{}
	registry := &fakeRegistry{}
	logger, err := logging.NewZapLogger("INFO")
	require.NoError(t, err)

	c := NewCleaner(events, metrics, registry, logger, DefaultRetentionConfig)
	c.Sweep(context.Background())

	require.Equal(t, 1, events.callCount)
	require.Equal(t, 1, metrics.callCount)
	require.Equal(t, 1, registry.cleanupCalls)
	require.True(t, events.deletedBefore <= time.Now().Add(-DefaultRetentionConfig.EventRetention).Unix()+1)
}

func TestCleaner_SweepToleratesNilCollaborators(t *testing.T) {
	logger, err := logging.NewZapLogger("INFO")
	require.NoError(t, err)
	c := NewCleaner(nil, nil, nil, logger, DefaultRetentionConfig)
	require.NotPanics(t, func() { c.Sweep(context.Background()) })
}
