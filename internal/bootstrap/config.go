package bootstrap

import (
	"fmt"

	"botfleet/internal/config"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig delegates to the project's config loader
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation, per
// spec §6's exit-code contract: a missing required dependency is an
// unrecoverable startup failure.
func checkPreFlight(cfg *Config) error {
	if cfg.App.Role == "controlplane" {
		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url is required for the control plane")
		}
		if string(cfg.Auth.JWTSigningKey) == "" {
			return fmt.Errorf("auth.jwt_signing_key is required for the control plane")
		}
	}

	if string(cfg.App.SecretsEncryptionKeyHex) == "" {
		// Dev mode: allowed, but every secret at rest will be plaintext.
		// internal/config.Crypto surfaces this explicitly via DevMode().
	}

	return nil
}
