// Command controlplane runs the control-plane HTTP surface: the config
// store, the provisioning orchestrator and its orphan sweeper, the
// retention cleaner, and the alert evaluator, all bound together over one
// Postgres pool (spec §2, §4.1-§4.3, §4.8).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"botfleet/internal/alert"
	"botfleet/internal/bootstrap"
	"botfleet/internal/config"
	"botfleet/internal/health"
	"botfleet/internal/httpapi"
	"botfleet/internal/provisioning"
	"botfleet/internal/store"
	"botfleet/internal/worker"
	botfleethttp "botfleet/pkg/http"
	"botfleet/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "configs/controlplane.yaml", "path to configuration file")
	flag.Parse()

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "controlplane: failed to start: %v\n", err)
		os.Exit(1)
	}
	logger := app.Logger
	cfg := app.Cfg

	tel, err := telemetry.Setup("botfleet-controlplane")
	if err != nil {
		logger.Warn("telemetry setup failed, continuing without it", "error", err.Error())
	} else {
		defer tel.Shutdown(context.Background())
	}
	if err := telemetry.InitMetrics(); err != nil {
		logger.Warn("prometheus exporter init failed", "error", err.Error())
	}

	ctx := context.Background()
	db, err := store.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.ConnMaxLifetime, logger)
	if err != nil {
		logger.Fatal("database unreachable", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("schema migration failed", "error", err.Error())
		os.Exit(1)
	}

	crypto, err := config.NewCrypto(string(cfg.App.SecretsEncryptionKeyHex))
	if err != nil {
		logger.Fatal("invalid secrets encryption key", "error", err.Error())
		os.Exit(1)
	}
	if crypto.DevMode() {
		logger.Warn("SECRETS_ENCRYPTION_KEY not set: running in dev mode, secrets stored in plaintext")
	}

	infraClient := botfleethttp.NewClient("infra-provider", cfg.App.InfraProviderURL, 30*time.Second, nil,
		botfleethttp.RetryConfig{Base: cfg.Provisioning.RetryBase, Cap: cfg.Provisioning.RetryCap, MaxRetries: cfg.Provisioning.RetryMaxAttempts},
		botfleethttp.BreakerConfig{
			FailureThreshold: cfg.Provisioning.BreakerFailureThreshold,
			FailureWindow:    cfg.Provisioning.BreakerFailureWindow,
			RecoveryTimeout:  cfg.Provisioning.BreakerRecoveryTimeout,
		})
	provider := provisioning.NewHTTPProvider(infraClient)

	orchestrator := provisioning.New(provider, db.Bots(), db.Events(), logger, provisioning.Config{
		MaxConcurrent:           cfg.Provisioning.MaxConcurrent,
		RetryBase:               cfg.Provisioning.RetryBase,
		RetryCap:                cfg.Provisioning.RetryCap,
		RetryMaxAttempts:        cfg.Provisioning.RetryMaxAttempts,
		BreakerFailureThreshold: cfg.Provisioning.BreakerFailureThreshold,
		BreakerFailureWindow:    cfg.Provisioning.BreakerFailureWindow,
		BreakerRecoveryTimeout:  cfg.Provisioning.BreakerRecoveryTimeout,
	})

	sweeper := provisioning.NewSweeper(db.Bots(), orchestrator, logger, provisioning.SweeperConfig{
		Interval:            cfg.Provisioning.SweepInterval,
		ProvisioningTimeout: cfg.Provisioning.StuckThreshold,
		DestroyingTimeout:   cfg.Provisioning.StuckThreshold,
	})

	cleaner := worker.NewCleaner(db.Events(), db.Metrics(), nil, logger, worker.RetentionConfig{
		EventRetention:  cfg.Retention.EventRetention,
		MetricRetention: cfg.Retention.MetricRetention,
		IntentTTL:       cfg.Retention.IntentTTLSecs,
		Interval:        cfg.Retention.SweepInterval,
	})

	alertManager := alert.NewAlertManager(logger)
	if cfg.Alerting.SlackWebhookURL != "" {
		alertManager.AddChannel(alert.NewSlackChannel(cfg.Alerting.SlackWebhookURL))
	}
	if string(cfg.Alerting.TelegramBotToken) != "" && cfg.Alerting.TelegramChatID != "" {
		alertManager.AddChannel(alert.NewTelegramChannel(string(cfg.Alerting.TelegramBotToken), cfg.Alerting.TelegramChatID))
	}
	evaluator := alert.NewEvaluator(alertManager, logger)
	offlineMonitor := alert.NewOfflineMonitor(db.Bots(), evaluator, logger, cfg.Alerting.OfflineCheckInterval, cfg.Alerting.OfflineThreshold)

	healthMon := health.NewManager(logger)
	healthMon.Register("database", func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return db.Ping(pingCtx)
	})
	healthMon.Register("provisioning_breaker", func() error {
		if orchestrator.State() == "open" {
			return fmt.Errorf("provisioning circuit breaker is open")
		}
		return nil
	})

	router := httpapi.NewRouter(httpapi.Deps{
		Bots:         db.Bots(),
		Configs:      db.Configs(),
		Events:       db.Events(),
		Metrics:      db.Metrics(),
		Platform:     db.PlatformConfigs(),
		Orchestrator: orchestrator,
		Crypto:       crypto,
		Logger:       logger,
		Health:       healthMon,
		Auth: httpapi.AuthConfig{
			SigningKey: []byte(string(cfg.Auth.JWTSigningKey)),
			Issuer:     cfg.Auth.JWTIssuer,
			Audience:   cfg.Auth.JWTAudience,
		},
		UserRatePerMin: cfg.Auth.UserRatePerMin,
		BotRatePerMin:  cfg.Auth.BotRatePerMin,
		MaxBotsPerUser: cfg.Auth.MaxBotsPerUser,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	logger.Info("controlplane listening", "port", cfg.App.Port)

	if err := app.Run(
		bootstrap.RunnerFunc(sweeper.Start),
		bootstrap.RunnerFunc(cleaner.Start),
		offlineMonitor,
		httpServerRunner{httpServer, logger},
	); err != nil {
		logger.Error("controlplane exited with error", "error", err.Error())
		os.Exit(1)
	}
}

// httpServerRunner adapts *http.Server to bootstrap.Runner, shutting down
// gracefully when ctx is cancelled rather than killing in-flight requests.
type httpServerRunner struct {
	server *http.Server
	logger interface {
		Info(msg string, fields ...interface{})
		Error(msg string, fields ...interface{})
	}
}

func (r httpServerRunner) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		r.logger.Info("shutting down HTTP server")
		return r.server.Shutdown(shutdownCtx)
	}
}
