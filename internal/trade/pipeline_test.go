package trade

import (
	"context"
	"fmt"
	"testing"

	"botfleet/internal/alert"
	"botfleet/internal/core"
	"botfleet/internal/intent"
	"botfleet/internal/portfolio"
	"botfleet/pkg/logging"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// mockDBOSContext scripts RunAsStep's results per call, executing the
// step function for its side effects exactly like the teacher's durable
// workflow tests do.
type mockDBOSContext struct {
	dbos.DBOSContext
	results []any
	errs    []error
	idx     int
}

func (m *mockDBOSContext) RunAsStep(ctx dbos.DBOSContext, fn dbos.StepFunc, opts ...dbos.StepOption) (any, error) {
	if m.idx >= len(m.results) {
		return nil, fmt.Errorf("unexpected step call at index %d", m.idx)
	}
	_, _ = fn(context.Background())
	res, err := m.results[m.idx], m.errs[m.idx]
	m.idx++
	return res, err
}

type fakeShield struct {
	verdict core.ShieldVerdict
	reason  string
}

func (f *fakeShield) Check(ctx context.Context, inputMint, outputMint string) (core.ShieldVerdict, string, error) {
	return f.verdict, f.reason, nil
}

type fakeQuotes struct{ quote *core.Quote }

func (f *fakeQuotes) Quote(ctx context.Context, inputMint, outputMint string, inAmountRaw uint64) (*core.Quote, error) {
	return f.quote, nil
}

type fakeExecutor struct {
	signature string
	result    *core.ExecutionResult
}

func (f *fakeExecutor) Submit(ctx context.Context, intent *core.TradeIntent, quote *core.Quote) (string, error) {
	return f.signature, nil
}

func (f *fakeExecutor) Confirm(ctx context.Context, signature string, timeoutSecs int) (*core.ExecutionResult, error) {
	return f.result, nil
}

type fakeEvents struct{ appended []*core.Event }

func (f *fakeEvents) Append(ctx context.Context, events ...*core.Event) error {
	f.appended = append(f.appended, events...)
	return nil
}
func (f *fakeEvents) List(ctx context.Context, botID, cursor string, limit int) ([]*core.Event, string, error) {
	return nil, "", nil
}
func (f *fakeEvents) DeleteOlderThan(ctx context.Context, cutoffUnix int64) (int64, error) {
	return 0, nil
}

func newTestWorkflows(t *testing.T, shield core.IShieldOracle, quotes core.IQuoteProvider, executor core.IExecutor, events *fakeEvents) (*Workflows, *portfolio.Portfolio) {
	t.Helper()
	logger, err := logging.NewZapLogger("INFO")
	require.NoError(t, err)
	registry := intent.New(logger)
	pf := portfolio.New("bot-1")
	manager := alert.NewAlertManager(logger)
	evaluator := alert.NewEvaluator(manager, logger)
	return NewWorkflows(shield, quotes, executor, registry, pf, events, evaluator, logger), pf
}

func confirmedInput() *Input {
	return &Input{
		Intent: &core.TradeIntent{ID: "intent-1", BotID: "bot-1", InputMint: core.USDCMint, OutputMint: "SOL_MINT", InAmountRaw: 1_000_000_000},
		Config: &core.ConfigVersion{Execution: core.ExecutionParams{MaxPriceImpactPct: decimal.NewFromInt(5), ConfirmTimeoutSecs: 30}},
	}
}

// Exactly one terminal event (submitted/confirmed/failed path) is emitted,
// preceded by exactly one trade_intent_created event, for a confirmed run.
func TestRunTrade_EventCompleteness_ConfirmedPath(t *testing.T) {
	events := &fakeEvents{}
	w, _ := newTestWorkflows(t,
		&fakeShield{verdict: core.ShieldAllow},
		&fakeQuotes{quote: &core.Quote{InAmountRaw: 1_000_000_000, ExpectedOutRaw: 5_000_000_000, PriceImpactPct: decimal.NewFromFloat(0.5)}},
		&fakeExecutor{signature: "sig-1", result: &core.ExecutionResult{OutAmountRaw: 5_000_000_000, RealizedPrice: decimal.NewFromFloat(0.2)}},
		events,
	)

	mockCtx := &mockDBOSContext{
		results: []any{shieldOutcome{verdict: core.ShieldAllow}, &core.Quote{InAmountRaw: 1_000_000_000, ExpectedOutRaw: 5_000_000_000, PriceImpactPct: decimal.NewFromFloat(0.5)}, "sig-1", &core.ExecutionResult{OutAmountRaw: 5_000_000_000, RealizedPrice: decimal.NewFromFloat(0.2)}},
		errs:    []error{nil, nil, nil, nil},
	}

	_, err := w.RunTrade(mockCtx, confirmedInput())
	require.NoError(t, err)

	var created, submitted, confirmed, blocked, failed int
	for _, e := range events.appended {
		switch e.EventType {
		case core.EventTradeIntentCreated:
			created++
		case core.EventTradeSubmitted:
			submitted++
		case core.EventTradeConfirmed:
			confirmed++
		case core.EventTradeBlocked:
			blocked++
		case core.EventTradeFailed:
			failed++
		}
	}
	require.Equal(t, 1, created)
	require.Equal(t, 1, confirmed)
	require.Equal(t, 0, blocked)
	require.Equal(t, 0, failed)
	require.Equal(t, core.EventTradeIntentCreated, events.appended[0].EventType)
}

// A shield BLOCK verdict must short-circuit to exactly one blocked event and
// never reach the quote/submit/confirm steps.
func TestRunTrade_EventCompleteness_ShieldBlocked(t *testing.T) {
	events := &fakeEvents{}
	w, _ := newTestWorkflows(t, &fakeShield{verdict: core.ShieldBlock, reason: "sanctioned mint"}, &fakeQuotes{}, &fakeExecutor{}, events)

	mockCtx := &mockDBOSContext{
		results: []any{shieldOutcome{verdict: core.ShieldBlock, reason: "sanctioned mint"}},
		errs:    []error{nil},
	}

	result, err := w.RunTrade(mockCtx, confirmedInput())
	require.NoError(t, err)
	require.Equal(t, core.StageBlocked, result.(*core.NormalizedTradeResult).StageReached)

	var created, blocked int
	for _, e := range events.appended {
		switch e.EventType {
		case core.EventTradeIntentCreated:
			created++
		case core.EventTradeBlocked:
			blocked++
		default:
			t.Fatalf("unexpected event %s on a blocked trade", e.EventType)
		}
	}
	require.Equal(t, 1, created)
	require.Equal(t, 1, blocked)
}

// A confirmed BUY conserves total portfolio value: cash decreases by exactly
// in_amount and the output mint position increases by exactly out_amount
// (paper-mode conservation, spec §4.6/§8).
func TestRunTrade_PortfolioConservation_Buy(t *testing.T) {
	events := &fakeEvents{}
	w, pf := newTestWorkflows(t,
		&fakeShield{verdict: core.ShieldAllow},
		&fakeQuotes{},
		&fakeExecutor{},
		events,
	)
	// A fresh portfolio holds no cash; a confirmed sell of an unheld mint
	// credits 10,000 USDC so the buy below has cash to spend.
	pf.ApplyTradeResult(&core.NormalizedTradeResult{
		StageReached: core.StageConfirmed,
		Side:         "SELL",
		InputMint:    "SEED_MINT",
		OutputMint:   core.USDCMint,
		Quote:        &core.Quote{},
		Execution:    &core.ExecutionResult{OutAmountRaw: 10_000_000_000},
	})
	cashBefore := pf.Snapshot().CashUSDCRaw

	mockCtx := &mockDBOSContext{
		results: []any{
			shieldOutcome{verdict: core.ShieldAllow},
			&core.Quote{InAmountRaw: 2_000_000_000, ExpectedOutRaw: 10_000_000_000, PriceImpactPct: decimal.NewFromFloat(0.1)},
			"sig-2",
			&core.ExecutionResult{OutAmountRaw: 10_000_000_000, RealizedPrice: decimal.NewFromFloat(0.2)},
		},
		errs: []error{nil, nil, nil, nil},
	}

	_, err := w.RunTrade(mockCtx, confirmedInput())
	require.NoError(t, err)

	snap := pf.Snapshot()
	require.Equal(t, cashBefore-2_000_000_000, snap.CashUSDCRaw)
	pos, ok := snap.Positions["SOL_MINT"]
	require.True(t, ok)
	require.Equal(t, uint64(10_000_000_000), pos.QuantityRaw)
}

// A quote-stage failure produces exactly one failed event and the portfolio
// is left untouched.
func TestRunTrade_EventCompleteness_QuoteStepFails(t *testing.T) {
	events := &fakeEvents{}
	w, pf := newTestWorkflows(t, &fakeShield{verdict: core.ShieldAllow}, &fakeQuotes{}, &fakeExecutor{}, events)

	mockCtx := &mockDBOSContext{
		results: []any{shieldOutcome{verdict: core.ShieldAllow}, nil},
		errs:    []error{nil, fmt.Errorf("quote service unavailable")},
	}

	result, err := w.RunTrade(mockCtx, confirmedInput())
	require.NoError(t, err)
	require.Equal(t, core.StageFailed, result.(*core.NormalizedTradeResult).StageReached)

	var failed int
	for _, e := range events.appended {
		if e.EventType == core.EventTradeFailed {
			failed++
		}
	}
	require.Equal(t, 1, failed)
	require.Empty(t, pf.Snapshot().Positions)
}
