package bootstrap

import (
	"botfleet/internal/core"
	"botfleet/pkg/logging"
)

// InitLogger builds the core.ILogger used throughout the process, per the
// configured log level.
func InitLogger(cfg *Config) (core.ILogger, error) {
	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		return nil, err
	}
	logging.SetGlobalLogger(logger)
	return logger, nil
}
