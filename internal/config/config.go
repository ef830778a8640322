// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure for either the
// control plane or a worker process; a given deployment only populates the
// sections relevant to its role.
type Config struct {
	App         AppConfig         `yaml:"app"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Retention   RetentionConfig   `yaml:"retention"`
	Worker      WorkerConfig      `yaml:"worker"`
	Alerting    AlertingConfig    `yaml:"alerting"`
	System      SystemConfig      `yaml:"system"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Role               string `yaml:"role" validate:"required,oneof=controlplane worker"`
	Port               int    `yaml:"port" validate:"required,min=1,max=65535"`
	ControlPlaneURL    string `yaml:"control_plane_url"`
	InfraProviderURL   string `yaml:"infra_provider_url"`
	DataRetrievalURL   string `yaml:"data_retrieval_url"`
	SolanaRPCURL       string `yaml:"solana_rpc_url"`
	ShieldURL          string `yaml:"shield_url"`
	StrategyURL        string `yaml:"strategy_url"`
	ExecutionCLIPath   string `yaml:"execution_cli_path"`
	SecretsEncryptionKeyHex Secret `yaml:"secrets_encryption_key"`
}

// DatabaseConfig is the control plane's Postgres connection.
type DatabaseConfig struct {
	URL             string        `yaml:"url" validate:"required"`
	MaxConns        int           `yaml:"max_conns" validate:"min=1,max=200"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AuthConfig holds JWT validation settings for the user-facing API.
type AuthConfig struct {
	JWTSigningKey   Secret `yaml:"jwt_signing_key" validate:"required"`
	JWTIssuer       string `yaml:"jwt_issuer"`
	JWTAudience     string `yaml:"jwt_audience"`
	UserRatePerMin  int    `yaml:"user_rate_per_min" validate:"min=1,max=10000"`
	BotRatePerMin   int    `yaml:"bot_rate_per_min" validate:"min=1,max=10000"`
	// MaxBotsPerUser is the fleet-wide default bot-count quota enforced at
	// bot creation (spec §6 POST /v1/bots 403 on quota). The billing/
	// subscription service that would vary this per tier is an external
	// collaborator (spec §1 Non-goals); this is the flat fallback quota.
	MaxBotsPerUser int `yaml:"max_bots_per_user"`
}

// ProvisioningConfig bounds the orchestrator's retry/breaker/concurrency posture.
type ProvisioningConfig struct {
	MaxConcurrent     int           `yaml:"max_concurrent" validate:"min=1,max=64"`
	RetryBase         time.Duration `yaml:"retry_base"`
	RetryCap          time.Duration `yaml:"retry_cap"`
	RetryMaxAttempts  int           `yaml:"retry_max_attempts" validate:"min=1,max=10"`
	BreakerFailureThreshold int     `yaml:"breaker_failure_threshold" validate:"min=1,max=100"`
	BreakerFailureWindow    int     `yaml:"breaker_failure_window" validate:"min=1,max=100"`
	BreakerRecoveryTimeout  time.Duration `yaml:"breaker_recovery_timeout"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	StuckThreshold    time.Duration `yaml:"stuck_threshold"`
}

// RetentionConfig bounds event/metric/intent retention windows.
type RetentionConfig struct {
	EventRetention  time.Duration `yaml:"event_retention"`
	MetricRetention time.Duration `yaml:"metric_retention"`
	IntentTTLSecs   int64         `yaml:"intent_ttl_secs"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

// WorkerConfig bounds a worker process's cooperative scheduler intervals and
// the single bot identity this process drives.
type WorkerConfig struct {
	BotID         string `yaml:"bot_id"`
	WalletAddress string `yaml:"wallet_address"`
	// DBOSDatabaseURL is the Postgres DSN backing the durable trade-pipeline
	// workflow's own system state (spec §4.6a: the pipeline is a
	// dbos-transact-golang workflow, which requires a system database
	// independent of the control plane's store — the worker otherwise has no
	// persisted state of its own).
	DBOSDatabaseURL         string        `yaml:"dbos_database_url"`
	ConfigPollInterval      time.Duration `yaml:"config_poll_interval"`
	HeartbeatInterval       time.Duration `yaml:"heartbeat_interval"`
	TradingDecisionInterval time.Duration `yaml:"trading_decision_interval"`
	ReconciliationInterval  time.Duration `yaml:"reconciliation_interval"`
	CleanupInterval         time.Duration `yaml:"cleanup_interval"`
	IntentGCInterval        time.Duration `yaml:"intent_gc_interval"`
}

// AlertingConfig carries webhook URLs for the alert manager's channels plus
// the offline-detection scan cadence.
type AlertingConfig struct {
	SlackWebhookURL      string        `yaml:"slack_webhook_url"`
	TelegramBotToken     Secret        `yaml:"telegram_bot_token"`
	TelegramChatID       string        `yaml:"telegram_chat_id"`
	OfflineCheckInterval time.Duration `yaml:"offline_check_interval"`
	OfflineThreshold     time.Duration `yaml:"offline_threshold"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel     string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
	CancelOnExit bool   `yaml:"cancel_on_exit"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateAppConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.App.Role == "controlplane" {
		if err := c.validateDatabaseConfig(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := c.validateAuthConfig(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.App.Role == "worker" {
		if c.Worker.BotID == "" {
			errs = append(errs, ValidationError{Field: "worker.bot_id", Message: "bot_id is required for a worker process"}.Error())
		}
		if c.App.ControlPlaneURL == "" {
			errs = append(errs, ValidationError{Field: "app.control_plane_url", Message: "control_plane_url is required for a worker process"}.Error())
		}
	}
	if err := c.validateSystemConfig(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	validRoles := []string{"controlplane", "worker"}
	if !contains(validRoles, c.App.Role) {
		return ValidationError{Field: "app.role", Value: c.App.Role, Message: fmt.Sprintf("must be one of: %s", strings.Join(validRoles, ", "))}
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return ValidationError{Field: "app.port", Value: c.App.Port, Message: "must be between 1 and 65535"}
	}
	return nil
}

func (c *Config) validateDatabaseConfig() error {
	if c.Database.URL == "" {
		return ValidationError{Field: "database.url", Message: "database_url is required for the control plane"}
	}
	return nil
}

func (c *Config) validateAuthConfig() error {
	if string(c.Auth.JWTSigningKey) == "" {
		return ValidationError{Field: "auth.jwt_signing_key", Message: "jwt signing key is required"}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// String returns a string representation of the configuration (with
// sensitive data masked via the Secret type's own MarshalYAML/String).
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for tests and local runs.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Role: "controlplane",
			Port: 8080,
		},
		Database: DatabaseConfig{
			URL:      "postgres://localhost:5432/botfleet",
			MaxConns: 10,
		},
		Auth: AuthConfig{
			JWTSigningKey:  "dev-signing-key",
			JWTIssuer:      "botfleet",
			UserRatePerMin: 120,
			BotRatePerMin:  60,
			MaxBotsPerUser: 10,
		},
		Provisioning: ProvisioningConfig{
			MaxConcurrent:           3,
			RetryBase:               2 * time.Second,
			RetryCap:                8 * time.Second,
			RetryMaxAttempts:        3,
			BreakerFailureThreshold: 5,
			BreakerFailureWindow:    10,
			BreakerRecoveryTimeout:  30 * time.Second,
			SweepInterval:           1 * time.Minute,
			StuckThreshold:          10 * time.Minute,
		},
		Retention: RetentionConfig{
			EventRetention:  30 * 24 * time.Hour,
			MetricRetention: 90 * 24 * time.Hour,
			IntentTTLSecs:   3600,
			SweepInterval:   1 * time.Hour,
		},
		Worker: WorkerConfig{
			ConfigPollInterval:      30 * time.Second,
			HeartbeatInterval:       30 * time.Second,
			TradingDecisionInterval: 60 * time.Second,
			ReconciliationInterval:  300 * time.Second,
			CleanupInterval:         300 * time.Second,
			IntentGCInterval:        300 * time.Second,
		},
		Alerting: AlertingConfig{
			OfflineCheckInterval: 1 * time.Minute,
			OfflineThreshold:     5 * time.Minute,
		},
		System: SystemConfig{
			LogLevel:     "INFO",
			CancelOnExit: true,
		},
	}
}
