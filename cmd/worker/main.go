// Command worker runs a single bot's trading runtime: the cooperative
// scheduler (config-poll, heartbeat, trading-decision, reconciliation,
// intent-GC timers), the intent registry, the durable trade pipeline, and
// the portfolio reconciler (spec §2, §4.4-§4.7).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"botfleet/internal/alert"
	"botfleet/internal/bootstrap"
	"botfleet/internal/health"
	"botfleet/internal/intent"
	"botfleet/internal/portfolio"
	"botfleet/internal/trade"
	"botfleet/internal/worker"
	botfleethttp "botfleet/pkg/http"
	"botfleet/pkg/telemetry"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
)

func main() {
	configPath := flag.String("config", "configs/worker.yaml", "path to configuration file")
	flag.Parse()

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: failed to start: %v\n", err)
		os.Exit(1)
	}
	logger := app.Logger
	cfg := app.Cfg
	botID := cfg.Worker.BotID

	tel, err := telemetry.Setup("botfleet-worker-" + botID)
	if err != nil {
		logger.Warn("telemetry setup failed, continuing without it", "error", err.Error())
	} else {
		defer tel.Shutdown(context.Background())
	}
	if err := telemetry.InitMetrics(); err != nil {
		logger.Warn("prometheus exporter init failed", "error", err.Error())
	}

	controlPlaneClient := worker.NewControlPlaneClient(
		botfleethttp.NewClient("control-plane", cfg.App.ControlPlaneURL, 30*time.Second, nil,
			botfleethttp.DefaultRetryConfig, botfleethttp.DefaultBreakerConfig),
		botID,
	)

	if err := controlPlaneClient.Register(context.Background(), botID, cfg.Worker.WalletAddress); err != nil {
		logger.Warn("register call failed, will rely on the control plane's existing record", "error", err.Error())
	}

	events := worker.NewEventForwarder(controlPlaneClient, botID)

	shieldClient := trade.NewShieldClient(botfleethttp.NewClient("shield", cfg.App.ShieldURL, 10*time.Second, nil,
		botfleethttp.DefaultRetryConfig, botfleethttp.DefaultBreakerConfig))
	quoteClient := trade.NewQuoteClient(botfleethttp.NewClient("quote", cfg.App.DataRetrievalURL, 10*time.Second, nil,
		botfleethttp.DefaultRetryConfig, botfleethttp.DefaultBreakerConfig))
	strategyClient := trade.NewStrategyClient(botfleethttp.NewClient("strategy", cfg.App.StrategyURL, 10*time.Second, nil,
		botfleethttp.DefaultRetryConfig, botfleethttp.DefaultBreakerConfig))
	chainReader := trade.NewChainReader(botfleethttp.NewClient("solana-rpc", cfg.App.SolanaRPCURL, 10*time.Second, nil,
		botfleethttp.DefaultRetryConfig, botfleethttp.DefaultBreakerConfig))

	executor := trade.NewExecutor(trade.ExecutorConfig{
		ExecutionCLIPath:    cfg.App.ExecutionCLIPath,
		SlippageBpsEstimate: 50,
	}, logger)

	pf := portfolio.New(botID)
	registry := intent.New(logger)

	alertManager := alert.NewAlertManager(logger)
	if cfg.Alerting.SlackWebhookURL != "" {
		alertManager.AddChannel(alert.NewSlackChannel(cfg.Alerting.SlackWebhookURL))
	}
	evaluator := alert.NewEvaluator(alertManager, logger)

	dbosCtx, err := dbos.NewDBOSContext(context.Background(), dbos.Config{
		AppName:     "botfleet-worker-" + botID,
		DatabaseURL: cfg.Worker.DBOSDatabaseURL,
	})
	if err != nil {
		logger.Fatal("failed to initialize durable workflow context", "error", err.Error())
		os.Exit(1)
	}

	workflows := trade.NewWorkflows(shieldClient, quoteClient, executor, registry, pf, events, evaluator, logger)
	engine := trade.NewEngine(dbosCtx, workflows, logger)

	reconciler := worker.NewReconciler(chainReader, pf, events, evaluator, logger, botID, cfg.Worker.WalletAddress, cfg.Worker.ReconciliationInterval)

	scheduler := worker.NewScheduler(botID, cfg.Worker.WalletAddress, controlPlaneClient, strategyClient, engine,
		registry, pf, reconciler, events, logger, worker.SchedulerConfig{
			ConfigPollInterval:      cfg.Worker.ConfigPollInterval,
			HeartbeatInterval:       cfg.Worker.HeartbeatInterval,
			TradingDecisionInterval: cfg.Worker.TradingDecisionInterval,
			ReconciliationInterval:  cfg.Worker.ReconciliationInterval,
			IntentGCInterval:        cfg.Worker.IntentGCInterval,
			IntentTTLSecs:           cfg.Retention.IntentTTLSecs,
			ShutdownTimeout:         10 * time.Second,
		})

	healthMon := health.NewManager(logger)
	healthMon.Register("control_plane", func() error {
		_, _, err := controlPlaneClient.GetConfig(context.Background(), botID)
		return err
	})

	logger.Info("worker starting", "bot_id", botID, "wallet", cfg.Worker.WalletAddress)

	if err := app.Run(
		engineRunner{engine},
		scheduler,
	); err != nil {
		logger.Error("worker exited with error", "error", err.Error())
		os.Exit(1)
	}

	_ = healthMon // retained for a future /healthz sidecar; the worker itself has no HTTP surface per spec §6.
}

// engineRunner adapts the durable trade engine's Start/Stop lifecycle to
// bootstrap.Runner.
type engineRunner struct {
	engine *trade.Engine
}

func (r engineRunner) Run(ctx context.Context) error {
	if err := r.engine.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return r.engine.Stop()
}
