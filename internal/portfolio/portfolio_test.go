package portfolio

import (
	"testing"

	"botfleet/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestApplyTradeResult_PaperBuyHappyPath(t *testing.T) {
	p := New("bot-1")
	p.data.CashUSDCRaw = 10_000_000_000 // 10,000 USDC at 6 decimals

	result := &core.NormalizedTradeResult{
		StageReached: core.StageConfirmed,
		Side:         "BUY",
		InputMint:    core.USDCMint,
		OutputMint:   "SOL_MINT",
		Quote:        &core.Quote{InAmountRaw: 1_000_000_000, ExpectedOutRaw: 5_000_000_000},
		Execution:    &core.ExecutionResult{Signature: "paper_trade_simulated", OutAmountRaw: 5_000_000_000},
	}

	saturated := p.ApplyTradeResult(result)
	require.False(t, saturated)

	snap := p.Snapshot()
	require.Equal(t, uint64(9_000_000_000), snap.CashUSDCRaw)
	pos, ok := snap.Positions["SOL_MINT"]
	require.True(t, ok)
	require.False(t, pos.UnknownCostBasis)
	require.Equal(t, uint64(5_000_000_000), pos.QuantityRaw)
}

func TestApplyTradeResult_NoEffectUnlessConfirmed(t *testing.T) {
	p := New("bot-1")
	result := &core.NormalizedTradeResult{StageReached: core.StageBlocked, Side: "BUY"}
	p.ApplyTradeResult(result)
	snap := p.Snapshot()
	require.Equal(t, uint64(0), snap.CashUSDCRaw)
	require.Empty(t, snap.Positions)
}

func TestApplyTradeResult_SellKeepsAvgEntryOnReduction(t *testing.T) {
	p := New("bot-1")
	p.data.Positions["SOL_MINT"] = &core.Position{Mint: "SOL_MINT", QuantityRaw: 10_000_000_000, AvgEntryPrice: decimal.NewFromFloat(0.2)}

	result := &core.NormalizedTradeResult{
		StageReached: core.StageConfirmed,
		Side:         "SELL",
		InputMint:    "SOL_MINT",
		OutputMint:   core.USDCMint,
		Quote:        &core.Quote{InAmountRaw: 4_000_000_000},
		Execution:    &core.ExecutionResult{OutAmountRaw: 800_000_000},
	}
	p.ApplyTradeResult(result)

	snap := p.Snapshot()
	require.Equal(t, uint64(800_000_000), snap.CashUSDCRaw)
	pos := snap.Positions["SOL_MINT"]
	require.Equal(t, uint64(6_000_000_000), pos.QuantityRaw)
	require.True(t, pos.AvgEntryPrice.Equal(decimal.NewFromFloat(0.2)))
}

func TestApplyTradeResult_SaturationNeverDecreasesCash(t *testing.T) {
	p := New("bot-1")
	p.data.CashUSDCRaw = ^uint64(0) - 1
	result := &core.NormalizedTradeResult{
		StageReached: core.StageConfirmed,
		Side:         "SELL",
		InputMint:    "SOL_MINT",
		OutputMint:   core.USDCMint,
		Quote:        &core.Quote{InAmountRaw: 1},
		Execution:    &core.ExecutionResult{OutAmountRaw: 10},
	}
	before := p.Snapshot().CashUSDCRaw
	saturated := p.ApplyTradeResult(result)
	after := p.Snapshot().CashUSDCRaw
	require.GreaterOrEqual(t, after, before)
	require.True(t, saturated)
}

func TestReconcile_DiscoversNewPosition(t *testing.T) {
	p := New("bot-1")
	results := p.Reconcile(map[string]uint64{"BONK_MINT": 1_000_000_000_000})

	require.Len(t, results, 1)
	require.Equal(t, core.ReconcileNewChain, results[0].Outcome)

	snap := p.Snapshot()
	pos := snap.Positions["BONK_MINT"]
	require.True(t, pos.UnknownCostBasis)
	require.True(t, pos.AvgEntryPrice.IsZero())
}

func TestReconcile_ConvergesOnSecondPass(t *testing.T) {
	p := New("bot-1")
	holdings := map[string]uint64{"SOL_MINT": 5_000_000_000}
	p.Reconcile(holdings)

	results := p.Reconcile(holdings)
	for _, r := range results {
		require.Equal(t, core.ReconcileMatch, r.Outcome)
	}
}

func TestReconcile_MissingOnChainRemovesPosition(t *testing.T) {
	p := New("bot-1")
	p.data.Positions["SOL_MINT"] = &core.Position{Mint: "SOL_MINT", QuantityRaw: 100}

	results := p.Reconcile(map[string]uint64{})
	require.Len(t, results, 1)
	require.Equal(t, core.ReconcileMissingChain, results[0].Outcome)
	require.Empty(t, p.Snapshot().Positions)
}
