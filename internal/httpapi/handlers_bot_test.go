package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"botfleet/internal/core"
	"botfleet/pkg/logging"

	"github.com/stretchr/testify/require"
)

var errNotFound = errors.New("not found")

type fakeBotStore struct {
	bots              map[string]*core.Bot
	appliedVersionIDs map[string]string
}

func newFakeBotStore(bots ...*core.Bot) *fakeBotStore {
	m := make(map[string]*core.Bot, len(bots))
	for _, b := range bots {
		m[b.ID] = b
	}
	return &fakeBotStore{bots: m, appliedVersionIDs: make(map[string]string)}
}

func (f *fakeBotStore) CreateBot(ctx context.Context, bot *core.Bot) error {
	f.bots[bot.ID] = bot
	return nil
}
func (f *fakeBotStore) GetBot(ctx context.Context, id string) (*core.Bot, error) {
	b, ok := f.bots[id]
	if !ok {
		return nil, errNotFound
	}
	return b, nil
}
func (f *fakeBotStore) ListBotsByUser(ctx context.Context, userID string) ([]*core.Bot, error) {
	return nil, nil
}
func (f *fakeBotStore) UpdateStatus(ctx context.Context, id string, status core.BotStatus) error {
	if b, ok := f.bots[id]; ok {
		b.Status = status
	}
	return nil
}
func (f *fakeBotStore) SetDesiredVersion(ctx context.Context, botID, versionID string) error {
	if b, ok := f.bots[botID]; ok {
		b.DesiredVersionID = versionID
	}
	return nil
}
func (f *fakeBotStore) SetAppliedVersion(ctx context.Context, botID, versionID string) error {
	f.appliedVersionIDs[botID] = versionID
	if b, ok := f.bots[botID]; ok {
		b.AppliedVersionID = versionID
	}
	return nil
}
func (f *fakeBotStore) SetWallet(ctx context.Context, botID, address string) error {
	if b, ok := f.bots[botID]; ok {
		b.WalletAddress = address
	}
	return nil
}
func (f *fakeBotStore) TouchHeartbeat(ctx context.Context, botID string, at int64) error { return nil }
func (f *fakeBotStore) ListStuck(ctx context.Context, status core.BotStatus, olderThanSecs int64) ([]*core.Bot, error) {
	return nil, nil
}
func (f *fakeBotStore) TryAdvisoryLock(ctx context.Context, botID string) (bool, func(), error) {
	return true, func() {}, nil
}
func (f *fakeBotStore) DeleteBot(ctx context.Context, id string) error {
	delete(f.bots, id)
	return nil
}

type fakeConfigStore struct {
	desired map[string]*core.ConfigVersion
}

func (f *fakeConfigStore) CreateVersion(ctx context.Context, cv *core.ConfigVersion) error {
	return nil
}
func (f *fakeConfigStore) GetDesired(ctx context.Context, botID string) (*core.ConfigVersion, error) {
	cv, ok := f.desired[botID]
	if !ok {
		return nil, errNotFound
	}
	return cv, nil
}
func (f *fakeConfigStore) GetApplied(ctx context.Context, botID string) (*core.ConfigVersion, error) {
	return nil, errNotFound
}
func (f *fakeConfigStore) GetByID(ctx context.Context, id string) (*core.ConfigVersion, error) {
	return nil, errNotFound
}
func (f *fakeConfigStore) LatestVersion(ctx context.Context, botID string) (int64, error) {
	return 0, nil
}

func newDeps(t *testing.T, bots core.IBotStore, configs core.IConfigStore) Deps {
	t.Helper()
	logger, err := logging.NewZapLogger("INFO")
	require.NoError(t, err)
	return Deps{
		Bots:           bots,
		Configs:        configs,
		Logger:         logger,
		UserRatePerMin: 1000,
		BotRatePerMin:  1000,
	}
}

func TestBotConfigAck_StaleHashIsConflictAndLeavesAppliedVersionUnchanged(t *testing.T) {
	bot := &core.Bot{ID: "bot-1", AppliedVersionID: "old-version"}
	desired := &core.ConfigVersion{ID: "cfg-2", BotID: "bot-1", Version: 2}

	bots := newFakeBotStore(bot)
	configs := &fakeConfigStore{desired: map[string]*core.ConfigVersion{"bot-1": desired}}

	router := NewRouter(newDeps(t, bots, configs))

	body, _ := json.Marshal(configAckRequest{Version: 1, Hash: "cfg-2:1"}) // stale: wrong version/hash
	req := httptest.NewRequest(http.MethodPost, "/v1/bot/bot-1/config_ack", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "old-version", bot.AppliedVersionID)
	require.Empty(t, bots.appliedVersionIDs)
}

func TestBotConfigAck_MatchingHashAppliesVersion(t *testing.T) {
	bot := &core.Bot{ID: "bot-1", AppliedVersionID: "old-version"}
	desired := &core.ConfigVersion{ID: "cfg-2", BotID: "bot-1", Version: 2}

	bots := newFakeBotStore(bot)
	configs := &fakeConfigStore{desired: map[string]*core.ConfigVersion{"bot-1": desired}}

	router := NewRouter(newDeps(t, bots, configs))

	body, _ := json.Marshal(configAckRequest{Version: desired.Version, Hash: desired.Hash()})
	req := httptest.NewRequest(http.MethodPost, "/v1/bot/bot-1/config_ack", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cfg-2", bots.appliedVersionIDs["bot-1"])
	require.Equal(t, "cfg-2", bot.AppliedVersionID)
}

func TestBotConfigAck_UnknownBotReturnsValidationError(t *testing.T) {
	bots := newFakeBotStore()
	configs := &fakeConfigStore{desired: map[string]*core.ConfigVersion{}}

	router := NewRouter(newDeps(t, bots, configs))

	body, _ := json.Marshal(configAckRequest{Version: 1, Hash: "x:1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/bot/missing-bot/config_ack", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
