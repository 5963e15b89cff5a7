package app

import (
	"github.com/OFFIS-RIT/storygraph/internal/config"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"
	"github.com/OFFIS-RIT/storygraph/pkg/logger/console"
	"github.com/OFFIS-RIT/storygraph/pkg/logger/zap"
)

// InitLogger installs the console logger, or the zap JSON logger when
// LOG_FORMAT is "json". The returned function flushes buffered output.
func InitLogger(cfg config.LogConfig, prefix string) func() {
	if cfg.Format == "json" {
		z, err := zap.NewZapLogger(zap.ZapLoggerParams{Mode: "production", Debug: cfg.Debug})
		if err == nil {
			logger.Init(z)
			return z.Sync
		}
		logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{Debug: cfg.Debug, Prefix: prefix}))
		logger.Warn("Falling back to console logger", "err", err)
		return func() {}
	}
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{Debug: cfg.Debug, Prefix: prefix}))
	return func() {}
}
