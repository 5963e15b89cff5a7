package zap

import (
	"strings"

	"go.uber.org/zap"
)

// ZapLogger implements LoggerInstance on top of a sugared zap logger. It is
// used when structured JSON output is wanted, e.g. for the worker running in a
// container next to a log collector.
type ZapLogger struct {
	logger *zap.SugaredLogger
}

// ZapLoggerParams contains configuration for creating a ZapLogger.
type ZapLoggerParams struct {
	// Mode is "production" (JSON) or anything else for the development encoder.
	Mode  string
	Debug bool
}

// NewZapLogger builds a zap logger for the given mode.
func NewZapLogger(params ZapLoggerParams) (*ZapLogger, error) {
	var cfg zap.Config
	switch strings.ToLower(params.Mode) {
	case "prod", "production", "json":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if params.Debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	l, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, err
	}
	return &ZapLogger{logger: l.Sugar()}, nil
}

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() {
	_ = z.logger.Sync()
}

func (z *ZapLogger) Log(message string, keyvals ...any) {
	z.logger.Infow(message, keyvals...)
}

func (z *ZapLogger) Info(message string, keyvals ...any) {
	z.logger.Infow(message, keyvals...)
}

func (z *ZapLogger) Warn(message string, keyvals ...any) {
	z.logger.Warnw(message, keyvals...)
}

func (z *ZapLogger) Error(message string, keyvals ...any) {
	z.logger.Errorw(message, keyvals...)
}

func (z *ZapLogger) Debug(message string, keyvals ...any) {
	z.logger.Debugw(message, keyvals...)
}

func (z *ZapLogger) Fatal(message string, keyvals ...any) {
	z.logger.Fatalw(message, keyvals...)
}
