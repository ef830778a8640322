package intent

import (
	"testing"

	"botfleet/internal/core"
	"botfleet/pkg/logging"

	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	return New(logger)
}

func testFingerprint() core.Fingerprint {
	return core.Fingerprint{
		BotID:               "bot-123",
		InputMint:           "SOL_MINT",
		OutputMint:          core.USDCMint,
		InAmountRaw:         1_000_000_000,
		Mode:                core.ModePaper,
		StrategyFingerprint: "cfg-v1",
	}
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := newTestRegistry(t)
	fp := testFingerprint()

	created, existingID, skip := r.TryCreate(fp, &core.TradeIntent{
		BotID: fp.BotID, InputMint: fp.InputMint, OutputMint: fp.OutputMint,
		InAmountRaw: fp.InAmountRaw, Mode: fp.Mode, Algorithm: core.AlgoTrend, Confidence: 0.75,
	})
	require.False(t, skip)
	require.Empty(t, existingID)
	require.NotNil(t, created)
	require.Equal(t, core.IntentCreated, created.State)

	err := r.UpdateState(created.ID, core.IntentShieldCheckPassed, nil)
	require.NoError(t, err)

	got, ok := r.Get(created.ID)
	require.True(t, ok)
	require.Equal(t, core.IntentShieldCheckPassed, got.State)

	err = r.UpdateState(created.ID, core.IntentConfirmed, func(i *core.TradeIntent) {
		i.Signature = "abc123"
		i.OutAmountRaw = 500_000_000
	})
	require.NoError(t, err)

	final, ok := r.Get(created.ID)
	require.True(t, ok)
	require.True(t, final.State.IsTerminal())
	require.Equal(t, "abc123", final.Signature)
}

func TestRegistry_TryCreate_SkipsWhileFreshAndPending(t *testing.T) {
	r := newTestRegistry(t)
	fp := testFingerprint()
	intent := &core.TradeIntent{BotID: fp.BotID, InputMint: fp.InputMint, OutputMint: fp.OutputMint, InAmountRaw: fp.InAmountRaw, Mode: fp.Mode}

	first, _, skip := r.TryCreate(fp, intent)
	require.False(t, skip)
	require.NotNil(t, first)

	_, existingID, skip := r.TryCreate(fp, &core.TradeIntent{BotID: fp.BotID, InputMint: fp.InputMint, OutputMint: fp.OutputMint, InAmountRaw: fp.InAmountRaw, Mode: fp.Mode})
	require.True(t, skip)
	require.Empty(t, existingID)
}

func TestRegistry_TryCreate_AlreadyExistsWhenTerminal(t *testing.T) {
	r := newTestRegistry(t)
	fp := testFingerprint()
	intent := &core.TradeIntent{BotID: fp.BotID, InputMint: fp.InputMint, OutputMint: fp.OutputMint, InAmountRaw: fp.InAmountRaw, Mode: fp.Mode}

	first, _, _ := r.TryCreate(fp, intent)
	require.NoError(t, r.UpdateState(first.ID, core.IntentConfirmed, nil))

	_, existingID, skip := r.TryCreate(fp, &core.TradeIntent{BotID: fp.BotID, InputMint: fp.InputMint, OutputMint: fp.OutputMint, InAmountRaw: fp.InAmountRaw, Mode: fp.Mode})
	require.True(t, skip)
	require.Equal(t, first.ID, existingID)
}

func TestRegistry_TryCreate_DifferentAmountDoesNotMatch(t *testing.T) {
	r := newTestRegistry(t)
	fp := testFingerprint()
	intent := &core.TradeIntent{BotID: fp.BotID, InputMint: fp.InputMint, OutputMint: fp.OutputMint, InAmountRaw: fp.InAmountRaw, Mode: fp.Mode}
	r.TryCreate(fp, intent)

	otherFp := fp
	otherFp.InAmountRaw = 2_000_000_000
	created, _, skip := r.TryCreate(otherFp, &core.TradeIntent{BotID: otherFp.BotID, InputMint: otherFp.InputMint, OutputMint: otherFp.OutputMint, InAmountRaw: otherFp.InAmountRaw, Mode: otherFp.Mode})
	require.False(t, skip)
	require.NotNil(t, created)
}

func TestRegistry_Cleanup(t *testing.T) {
	r := newTestRegistry(t)
	fp := testFingerprint()
	created, _, _ := r.TryCreate(fp, &core.TradeIntent{BotID: fp.BotID, InputMint: fp.InputMint, OutputMint: fp.OutputMint, InAmountRaw: fp.InAmountRaw, Mode: fp.Mode})
	require.NotNil(t, created)

	removed := r.Cleanup(0)
	require.Equal(t, 1, removed)
	_, ok := r.Get(created.ID)
	require.False(t, ok)
}
