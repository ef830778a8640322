package trade

import (
	"context"
	"fmt"
	"time"

	"botfleet/internal/core"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
)

// Engine drives the durable RunTrade workflow, adapted from the teacher's
// internal/engine/durable.DBOSEngine: a thin wrapper around a dbos.DBOSContext
// that launches once at startup and runs one workflow instance per intent.
type Engine struct {
	dbosCtx   dbos.DBOSContext
	workflows *Workflows
	logger    core.ILogger
}

// NewEngine wraps an already-constructed dbos context.
func NewEngine(dbosCtx dbos.DBOSContext, workflows *Workflows, logger core.ILogger) *Engine {
	return &Engine{dbosCtx: dbosCtx, workflows: workflows, logger: logger.WithField("component", "trade_engine")}
}

// Start launches the DBOS runtime.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("starting trade engine")
	return e.dbosCtx.Launch()
}

// Stop shuts the DBOS runtime down within a bounded timeout.
func (e *Engine) Stop() error {
	e.logger.Info("stopping trade engine")
	e.dbosCtx.Shutdown(30 * time.Second)
	return nil
}

// Execute runs the four-stage pipeline for one trade intent and returns the
// resulting NormalizedTradeResult.
func (e *Engine) Execute(ctx context.Context, intentRec *core.TradeIntent, cfg *core.ConfigVersion) (*core.NormalizedTradeResult, error) {
	handle, err := e.dbosCtx.RunWorkflow(e.dbosCtx, e.workflows.RunTrade, &Input{Intent: intentRec, Config: cfg})
	if err != nil {
		return nil, fmt.Errorf("start trade workflow: %w", err)
	}
	raw, err := handle.GetResult()
	if err != nil {
		return nil, fmt.Errorf("trade workflow failed: %w", err)
	}
	result, ok := raw.(*core.NormalizedTradeResult)
	if !ok {
		return nil, fmt.Errorf("unexpected trade workflow result type %T", raw)
	}
	return result, nil
}
