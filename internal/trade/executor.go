package trade

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os/exec"
	"strings"
	"time"

	"botfleet/internal/core"

	"github.com/shopspring/decimal"
)

// ExecutorConfig configures an Executor. A single Executor serves both
// trading modes; which path a given trade takes is decided per-call from
// the intent's own Mode (set from the config version active when the
// trading decision was made), not from anything fixed at construction —
// a bot's live config can flip Paper<->Live between two ticks and the next
// trade dispatches through the new mode without rebuilding the executor.
type ExecutorConfig struct {
	// ExecutionCLIPath is the external signer/submitter binary invoked in
	// Live mode; it is the collaborator spec §1 keeps out of this module's
	// scope, so all this package does is shell out to it and parse its
	// stdout.
	ExecutionCLIPath string
	// SlippageBpsEstimate is the fixed spread Paper mode applies against the
	// quote's expected output, standing in for the real AMM's execution
	// price.
	SlippageBpsEstimate int64
}

// Executor implements core.IExecutor for both Paper and Live trading modes.
type Executor struct {
	cfg    ExecutorConfig
	logger core.ILogger
	rng    *rand.Rand

	// pending tracks signatures produced by Submit so Confirm can resolve
	// them without a second round trip to the CLI in Paper mode.
	pending map[string]*core.ExecutionResult
}

// NewExecutor constructs an Executor that serves both trading modes.
func NewExecutor(cfg ExecutorConfig, logger core.ILogger) *Executor {
	return &Executor{
		cfg:     cfg,
		logger:  logger.WithField("component", "trade_executor"),
		rng:     rand.New(rand.NewSource(1)),
		pending: make(map[string]*core.ExecutionResult),
	}
}

// Submit dispatches the trade and returns its signature. In Paper mode the
// signature is synthetic and the fill is computed immediately; in Live mode
// the execution CLI performs the actual submission and returns a real
// on-chain signature.
func (e *Executor) Submit(ctx context.Context, intentRec *core.TradeIntent, quote *core.Quote) (string, error) {
	if intentRec.Mode == core.ModeLive {
		return e.submitLive(ctx, intentRec, quote)
	}
	return e.submitPaper(intentRec, quote)
}

// Confirm polls (or, in Paper mode, immediately resolves) a previously
// submitted trade's final on-chain outcome. The signature alone
// disambiguates the path: paper signatures were recorded by submitPaper and
// never leave this process, so a lookup miss means it must be a live trade.
func (e *Executor) Confirm(ctx context.Context, signature string, timeoutSecs int) (*core.ExecutionResult, error) {
	if result, ok := e.pending[signature]; ok {
		delete(e.pending, signature)
		return result, nil
	}
	return e.confirmLive(ctx, signature, timeoutSecs)
}

func (e *Executor) submitPaper(intentRec *core.TradeIntent, quote *core.Quote) (string, error) {
	signature := fmt.Sprintf("paper_trade_simulated_%d", e.rng.Int63())

	slip := decimal.NewFromInt(e.cfg.SlippageBpsEstimate).Div(decimal.NewFromInt(10000))
	outAmount := decimal.NewFromInt(int64(quote.ExpectedOutRaw)).Mul(decimal.NewFromInt(1).Sub(slip))
	outAmountRaw := outAmount.Round(0).BigInt().Uint64()

	var realizedPrice decimal.Decimal
	if outAmountRaw > 0 {
		realizedPrice = decimal.NewFromInt(int64(intentRec.InAmountRaw)).Div(decimal.NewFromInt(int64(outAmountRaw)))
	}

	e.pending[signature] = &core.ExecutionResult{
		Signature:           signature,
		OutAmountRaw:        outAmountRaw,
		RealizedPrice:       realizedPrice,
		SlippageBpsEstimate: decimal.NewFromInt(e.cfg.SlippageBpsEstimate),
	}
	return signature, nil
}

type execCLISubmitResponse struct {
	Signature string `json:"signature"`
}

func (e *Executor) submitLive(ctx context.Context, intentRec *core.TradeIntent, quote *core.Quote) (string, error) {
	args := []string{
		"submit",
		"--input-mint", intentRec.InputMint,
		"--output-mint", intentRec.OutputMint,
		"--in-amount-raw", fmt.Sprint(intentRec.InAmountRaw),
		"--min-out-raw", fmt.Sprint(quote.ExpectedOutRaw),
	}
	cmd := exec.CommandContext(ctx, e.cfg.ExecutionCLIPath, args...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("execution cli submit failed: %w\noutput: %s", err, stderr.String())
	}

	var resp execCLISubmitResponse
	if err := json.Unmarshal([]byte(stdout.String()), &resp); err != nil {
		return "", fmt.Errorf("decode execution cli submit output: %w", err)
	}
	if resp.Signature == "" {
		return "", fmt.Errorf("execution cli returned an empty signature")
	}
	return resp.Signature, nil
}

type execCLIConfirmResponse struct {
	OutAmountRaw        uint64 `json:"out_amount_raw"`
	RealizedPrice       string `json:"realized_price"`
	SlippageBpsEstimate string `json:"slippage_bps_estimate"`
}

func (e *Executor) confirmLive(ctx context.Context, signature string, timeoutSecs int) (*core.ExecutionResult, error) {
	confirmCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(confirmCtx, e.cfg.ExecutionCLIPath, "confirm", "--signature", signature)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("execution cli confirm failed: %w\noutput: %s", err, stderr.String())
	}

	var resp execCLIConfirmResponse
	if err := json.Unmarshal([]byte(stdout.String()), &resp); err != nil {
		return nil, fmt.Errorf("decode execution cli confirm output: %w", err)
	}

	realizedPrice, err := decimal.NewFromString(resp.RealizedPrice)
	if err != nil {
		return nil, fmt.Errorf("parse realized_price: %w", err)
	}
	slippage, err := decimal.NewFromString(resp.SlippageBpsEstimate)
	if err != nil {
		return nil, fmt.Errorf("parse slippage_bps_estimate: %w", err)
	}

	return &core.ExecutionResult{
		Signature:           signature,
		OutAmountRaw:        resp.OutAmountRaw,
		RealizedPrice:       realizedPrice,
		SlippageBpsEstimate: slippage,
	}, nil
}
