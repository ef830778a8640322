package worker

import (
	"context"
	"testing"
	"time"

	"botfleet/internal/core"
	"botfleet/internal/portfolio"
	"botfleet/pkg/logging"

	"github.com/stretchr/testify/require"
)

type fakeChainReader struct {
	holdings map[string]uint64
}

func (f *fakeChainReader) WalletHoldings(ctx context.Context, walletAddress string) (map[string]uint64, error) {
	cp := make(map[string]uint64, len(f.holdings))
	for k, v := range f.holdings {
		cp[k] = v
	}
	return cp, nil
}

// After a confirmed trade result is applied to the portfolio, reconciling
// against matching on-chain holdings converges immediately: every mint
// reports Match, with no Discrepancy/MissingOnChain/NewOnChain entries.
func TestReconciler_ConvergesAfterMatchingTradeResult(t *testing.T) {
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	pf := portfolio.New("bot-1")
	result := &core.NormalizedTradeResult{
		StageReached: core.StageConfirmed,
		Side:         "BUY",
		InputMint:    core.USDCMint,
		OutputMint:   "SOL_MINT",
		Quote:        &core.Quote{InAmountRaw: 1_000_000_000},
		Execution:    &core.ExecutionResult{OutAmountRaw: 5_000_000_000},
	}
	saturated := pf.ApplyTradeResult(result)
	require.False(t, saturated)

	chain := &fakeChainReader{holdings: map[string]uint64{"SOL_MINT": 5_000_000_000}}
	r := NewReconciler(chain, pf, &fakeEventStore{}, nil, logger, "bot-1", "wallet-1", time.Minute)

	status, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, "completed", status.Status)
	require.Len(t, status.Results, 1)
	require.Equal(t, core.ReconcileMatch, status.Results[0].Outcome)

	// A second pass over unchanged on-chain state stays converged: empty of
	// anything but Match, never re-surfacing a stale discrepancy.
	status2, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, "completed", status2.Status)
	for _, res := range status2.Results {
		require.Equal(t, core.ReconcileMatch, res.Outcome)
	}
}

// A genuine on-chain divergence is reported as a Discrepancy and corrects
// the internal position; reconciling again afterward converges to Match.
func TestReconciler_DiscrepancyThenConverges(t *testing.T) {
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	pf := portfolio.New("bot-1")
	result := &core.NormalizedTradeResult{
		StageReached: core.StageConfirmed,
		Side:         "BUY",
		InputMint:    core.USDCMint,
		OutputMint:   "SOL_MINT",
		Quote:        &core.Quote{InAmountRaw: 1_000_000_000},
		Execution:    &core.ExecutionResult{OutAmountRaw: 5_000_000_000},
	}
	pf.ApplyTradeResult(result)

	// On-chain disagrees with the internally recorded quantity.
	chain := &fakeChainReader{holdings: map[string]uint64{"SOL_MINT": 4_000_000_000}}
	r := NewReconciler(chain, pf, &fakeEventStore{}, nil, logger, "bot-1", "wallet-1", time.Minute)

	status, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, core.ReconcileDiscrepancy, status.Results[0].Outcome)

	status2, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, core.ReconcileMatch, status2.Results[0].Outcome)
}

// A failed wallet read replaces the status with a "failed" snapshot and is
// reported as an error.
func TestReconciler_WalletReadFailureReportsFailedStatus(t *testing.T) {
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	pf := portfolio.New("bot-1")
	r := NewReconciler(&failingChainReader{}, pf, &fakeEventStore{}, nil, logger, "bot-1", "wallet-1", time.Minute)

	_, err = r.Reconcile(context.Background())
	require.Error(t, err)
	require.Equal(t, "failed", r.GetStatus().Status)
}

type failingChainReader struct{}

func (f *failingChainReader) WalletHoldings(ctx context.Context, walletAddress string) (map[string]uint64, error) {
	return nil, context.DeadlineExceeded
}
