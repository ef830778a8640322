// Package portfolio tracks a bot's cash and mint positions and applies the
// effects of confirmed trades and on-chain reconciliation passes.
package portfolio

import (
	"math"
	"sync"

	"botfleet/internal/core"

	"github.com/shopspring/decimal"
)

// Portfolio is mutated only from within the worker's single-threaded
// scheduler (per spec §5); the mutex exists solely to let the admin/status
// HTTP surface read a consistent snapshot concurrently.
type Portfolio struct {
	mu   sync.RWMutex
	data core.Portfolio
}

// New creates an empty Portfolio for botID.
func New(botID string) *Portfolio {
	return &Portfolio{
		data: core.Portfolio{
			BotID:     botID,
			Positions: make(map[string]*core.Position),
		},
	}
}

// Snapshot returns a shallow copy safe for read-only inspection.
func (p *Portfolio) Snapshot() core.Portfolio {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := p.data
	cp.Positions = make(map[string]*core.Position, len(p.data.Positions))
	for k, v := range p.data.Positions {
		pos := *v
		cp.Positions[k] = &pos
	}
	return cp
}

// saturatingAdd adds b to a, clamping at math.MaxUint64 instead of wrapping.
func saturatingAdd(a, b uint64) (sum uint64, saturated bool) {
	if a > math.MaxUint64-b {
		return math.MaxUint64, true
	}
	return a + b, false
}

// saturatingSub subtracts b from a, clamping at 0 instead of wrapping.
func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// ApplyTradeResult mutates the portfolio per spec §4.6. Only Confirmed
// results have any effect. Returns true if applying the result saturated
// the cash balance at math.MaxUint64, which the caller should log as a
// warning since it has a logger and this package does not.
func (p *Portfolio) ApplyTradeResult(result *core.NormalizedTradeResult) bool {
	if result.StageReached != core.StageConfirmed {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if result.Side == "BUY" {
		// input is USDC: cash reduced by in_amount, position added/weight-averaged.
		p.applyBuy(result)
		return false
	}
	return p.applySell(result)
}

func (p *Portfolio) applyBuy(result *core.NormalizedTradeResult) {
	in := result.Quote.InAmountRaw
	out := result.Execution.OutAmountRaw
	p.data.CashUSDCRaw = saturatingSub(p.data.CashUSDCRaw, in)

	tradePrice := decimal.Zero
	if out > 0 {
		tradePrice = decimal.NewFromInt(int64(in)).Div(decimal.NewFromInt(int64(out)))
	}

	pos, exists := p.data.Positions[result.OutputMint]
	if !exists {
		p.data.Positions[result.OutputMint] = &core.Position{
			Mint:             result.OutputMint,
			QuantityRaw:      out,
			AvgEntryPrice:    tradePrice,
			UnknownCostBasis: false,
		}
		return
	}

	// Weighted-average entry: new_avg = (old_qty*old_avg + added_qty*trade_price) / new_qty
	oldQty := decimal.NewFromInt(int64(pos.QuantityRaw))
	addedQty := decimal.NewFromInt(int64(out))
	newQty, _ := saturatingAdd(pos.QuantityRaw, out)
	if newQty > 0 {
		pos.AvgEntryPrice = oldQty.Mul(pos.AvgEntryPrice).Add(addedQty.Mul(tradePrice)).Div(decimal.NewFromInt(int64(newQty)))
	}
	pos.QuantityRaw = newQty
	pos.UnknownCostBasis = false
}

func (p *Portfolio) applySell(result *core.NormalizedTradeResult) bool {
	in := result.Quote.InAmountRaw
	out := result.Execution.OutAmountRaw

	pos, exists := p.data.Positions[result.InputMint]
	if exists {
		newQty := saturatingSub(pos.QuantityRaw, in)
		if newQty == 0 {
			delete(p.data.Positions, result.InputMint)
		} else {
			// Reductions keep the existing avg_entry, per spec §9's recorded
			// open question: proportional cost-basis reduction is not performed.
			pos.QuantityRaw = newQty
		}
	}

	sum, saturated := saturatingAdd(p.data.CashUSDCRaw, out)
	p.data.CashUSDCRaw = sum
	return saturated
}

// Reconcile compares on-chain holdings against internal positions and
// applies the four outcomes of spec §4.7, always correcting — never
// blocking. Returns the per-mint results for the status snapshot.
func (p *Portfolio) Reconcile(onChain map[string]uint64) []core.ReconciliationResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	var results []core.ReconciliationResult
	seen := make(map[string]bool)

	for mint, chainQty := range onChain {
		seen[mint] = true
		pos, exists := p.data.Positions[mint]
		switch {
		case !exists:
			p.data.Positions[mint] = &core.Position{
				Mint:             mint,
				QuantityRaw:      chainQty,
				AvgEntryPrice:    decimal.Zero,
				UnknownCostBasis: true,
			}
			results = append(results, core.ReconciliationResult{Mint: mint, Outcome: core.ReconcileNewChain, InternalQty: 0, OnChainQty: chainQty})
		case pos.QuantityRaw == chainQty:
			results = append(results, core.ReconciliationResult{Mint: mint, Outcome: core.ReconcileMatch, InternalQty: pos.QuantityRaw, OnChainQty: chainQty})
		default:
			results = append(results, core.ReconciliationResult{Mint: mint, Outcome: core.ReconcileDiscrepancy, InternalQty: pos.QuantityRaw, OnChainQty: chainQty})
			pos.QuantityRaw = chainQty
		}
	}

	for mint, pos := range p.data.Positions {
		if seen[mint] {
			continue
		}
		results = append(results, core.ReconciliationResult{Mint: mint, Outcome: core.ReconcileMissingChain, InternalQty: pos.QuantityRaw, OnChainQty: 0})
		delete(p.data.Positions, mint)
	}

	return results
}
