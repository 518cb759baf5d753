// Package logging builds the process logger.
package logging

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production JSON logger at the given level
// (debug, info, warn, error). An empty level means info.
func New(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if s := strings.TrimSpace(level); s != "" {
		parsed, err := zapcore.ParseLevel(s)
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
		lvl = parsed
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Logr bridges a zap logger to logr for components that take a logr.Logger.
func Logr(logger *zap.Logger) logr.Logger {
	return zapr.NewLogger(logger)
}
