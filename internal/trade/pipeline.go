// Package trade implements the normalized shield -> quote -> submit ->
// confirm pipeline (spec §4.6). The whole pipeline is one dbos-transact-golang
// durable workflow, adapted from the teacher's
// internal/engine/durable/workflow.go: each stage is a dbos.RunAsStep, so a
// worker restart mid-pipeline resumes rather than replaying side effects
// (submitting a second on-chain transaction).
package trade

import (
	"context"
	"fmt"
	"time"

	"botfleet/internal/alert"
	"botfleet/internal/core"
	"botfleet/internal/intent"
	"botfleet/internal/portfolio"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
)

// Input bundles everything RunTrade needs; dbos workflow functions take a
// single `any` input, so every stage's dependency is threaded through here
// rather than captured ad hoc.
type Input struct {
	Intent *core.TradeIntent
	Config *core.ConfigVersion
}

// Workflows holds the external collaborators the pipeline drives: the
// shield oracle, the market-data quote service, and the executor (paper
// simulation or the live execution CLI). All three are spec §1's named
// external collaborators; this package only normalizes their results.
type Workflows struct {
	shield    core.IShieldOracle
	quotes    core.IQuoteProvider
	executor  core.IExecutor
	registry  *intent.Registry
	portfolio *portfolio.Portfolio
	events    core.IEventStore
	evaluator *alert.Evaluator
	logger    core.ILogger

	consecutiveFailures map[string]int
}

// NewWorkflows constructs the pipeline's workflow set.
func NewWorkflows(shield core.IShieldOracle, quotes core.IQuoteProvider, executor core.IExecutor,
	registry *intent.Registry, pf *portfolio.Portfolio, events core.IEventStore, evaluator *alert.Evaluator, logger core.ILogger) *Workflows {
	return &Workflows{
		shield:              shield,
		quotes:              quotes,
		executor:            executor,
		registry:            registry,
		portfolio:           pf,
		events:              events,
		evaluator:           evaluator,
		logger:              logger.WithField("component", "trade_pipeline"),
		consecutiveFailures: make(map[string]int),
	}
}

// RunTrade is the durable workflow entry point: shield check, quote, submit,
// confirm, each as its own step, producing the single NormalizedTradeResult
// that drives both the intent-state updater and the event emitter.
func (w *Workflows) RunTrade(ctx dbos.DBOSContext, rawInput any) (any, error) {
	input := rawInput.(*Input)
	intentRec, cfg := input.Intent, input.Config

	w.emitEvent(ctx, intentRec.BotID, core.EventTradeIntentCreated, "trade intent created", map[string]string{
		"intent_id": intentRec.ID, "input_mint": intentRec.InputMint, "output_mint": intentRec.OutputMint,
	})

	result := &core.NormalizedTradeResult{
		IntentID:    intentRec.ID,
		InputMint:   intentRec.InputMint,
		OutputMint:  intentRec.OutputMint,
		Side:        side(intentRec.InputMint),
		TradingMode: intentRec.Mode,
	}

	// Stage 1: shield check.
	verdictRaw, err := ctx.RunAsStep(ctx, func(stepCtx context.Context) (any, error) {
		verdict, reason, err := w.shield.Check(stepCtx, intentRec.InputMint, intentRec.OutputMint)
		return shieldOutcome{verdict: verdict, reason: reason}, err
	})
	if err != nil {
		return w.finishFailed(ctx, intentRec, result, "shield", err)
	}
	outcome := verdictRaw.(shieldOutcome)
	result.ShieldResult = &outcome.verdict
	if outcome.verdict == core.ShieldBlock {
		result.StageReached = core.StageBlocked
		result.Error = &core.TradeError{Stage: "shield", Code: "shield_blocked", Message: outcome.reason}
		_ = w.registry.UpdateState(intentRec.ID, core.IntentShieldCheckFailed, func(i *core.TradeIntent) {
			i.FailureStage, i.FailureReason = "shield", outcome.reason
		})
		w.emitBlocked(ctx, intentRec, result)
		return result, nil
	}
	_ = w.registry.UpdateState(intentRec.ID, core.IntentShieldCheckPassed, nil)

	// Stage 2: quote.
	quoteRaw, err := ctx.RunAsStep(ctx, func(stepCtx context.Context) (any, error) {
		return w.quotes.Quote(stepCtx, intentRec.InputMint, intentRec.OutputMint, intentRec.InAmountRaw)
	})
	if err != nil {
		return w.finishFailed(ctx, intentRec, result, "quote", err)
	}
	quote := quoteRaw.(*core.Quote)
	result.Quote = quote

	if quote.PriceImpactPct.GreaterThan(cfg.Execution.MaxPriceImpactPct) {
		result.StageReached = core.StageBlocked
		result.Error = &core.TradeError{Stage: "quote", Code: "impact_too_high",
			Message: fmt.Sprintf("price impact %s%% exceeds ceiling %s%%", quote.PriceImpactPct, cfg.Execution.MaxPriceImpactPct)}
		_ = w.registry.UpdateState(intentRec.ID, core.IntentImpactTooHigh, func(i *core.TradeIntent) {
			i.FailureStage, i.FailureReason = "quote", result.Error.Message
		})
		w.emitBlocked(ctx, intentRec, result)
		return result, nil
	}
	_ = w.registry.UpdateState(intentRec.ID, core.IntentQuoteObtained, nil)

	// Stage 3: submit.
	sigRaw, err := ctx.RunAsStep(ctx, func(stepCtx context.Context) (any, error) {
		return w.executor.Submit(stepCtx, intentRec, quote)
	})
	if err != nil {
		return w.finishFailed(ctx, intentRec, result, "submit", err)
	}
	signature := sigRaw.(string)
	result.Signature = signature
	_ = w.registry.UpdateState(intentRec.ID, core.IntentSubmitted, func(i *core.TradeIntent) { i.Signature = signature })

	// Stage 4: confirm.
	execRaw, err := ctx.RunAsStep(ctx, func(stepCtx context.Context) (any, error) {
		return w.executor.Confirm(stepCtx, signature, cfg.Execution.ConfirmTimeoutSecs)
	})
	if err != nil {
		return w.finishFailed(ctx, intentRec, result, "confirm", err)
	}
	exec := execRaw.(*core.ExecutionResult)
	result.Execution = exec
	result.StageReached = core.StageConfirmed
	_ = w.registry.UpdateState(intentRec.ID, core.IntentConfirmed, func(i *core.TradeIntent) {
		i.OutAmountRaw = exec.OutAmountRaw
	})

	w.resetFailures(intentRec.BotID)
	if w.portfolio.ApplyTradeResult(result) {
		w.logger.Warn("cash balance saturated applying trade result", "bot_id", intentRec.BotID, "intent_id", intentRec.ID)
	}
	w.emitEvent(ctx, intentRec.BotID, core.EventTradeConfirmed, "trade confirmed", map[string]string{
		"intent_id": intentRec.ID, "signature": signature,
		"out_amount":     fmt.Sprint(exec.OutAmountRaw),
		"executed_price": exec.RealizedPrice.String(),
	})

	return result, nil
}

type shieldOutcome struct {
	verdict core.ShieldVerdict
	reason  string
}

func side(inputMint string) string {
	if inputMint == core.USDCMint {
		return "BUY"
	}
	return "SELL"
}

func (w *Workflows) finishFailed(ctx dbos.DBOSContext, intentRec *core.TradeIntent, result *core.NormalizedTradeResult, stage string, err error) (any, error) {
	result.StageReached = core.StageFailed
	result.Error = &core.TradeError{Stage: stage, Code: stage + "_failed", Message: err.Error()}
	_ = w.registry.UpdateState(intentRec.ID, core.IntentFailed, func(i *core.TradeIntent) {
		i.FailureStage, i.FailureReason = stage, err.Error()
	})

	w.emitEvent(ctx, intentRec.BotID, core.EventTradeFailed, "trade failed", map[string]string{
		"intent_id": intentRec.ID, "stage": stage, "error_code": result.Error.Code,
	})

	if n := w.recordFailure(intentRec.BotID); n >= 3 && w.evaluator != nil {
		w.evaluator.Fire(context.Background(), intentRec.BotID, alert.KeyRepeatedTradeFail, "WARNING",
			fmt.Sprintf("bot %s has failed 3 consecutive trades", intentRec.BotID),
			fmt.Sprintf("most recent failure at stage %s: %s", stage, err.Error()),
			map[string]string{"bot_id": intentRec.BotID})
	}

	return result, nil
}

func (w *Workflows) recordFailure(botID string) int {
	w.consecutiveFailures[botID]++
	return w.consecutiveFailures[botID]
}

func (w *Workflows) resetFailures(botID string) {
	w.consecutiveFailures[botID] = 0
}

func (w *Workflows) emitEvent(ctx context.Context, botID string, eventType core.EventType, message string, metadata map[string]string) {
	if w.events == nil {
		return
	}
	_ = w.events.Append(ctx, &core.Event{
		BotID:     botID,
		EventType: eventType,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	})
}

func (w *Workflows) emitBlocked(ctx context.Context, intentRec *core.TradeIntent, result *core.NormalizedTradeResult) {
	w.emitEvent(ctx, intentRec.BotID, core.EventTradeBlocked, "trade blocked", map[string]string{
		"intent_id": intentRec.ID, "reason_code": result.Error.Code,
	})
}
