// Package logging builds the zap loggers used by the CLI and services.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps debug, info, warn and error to zap levels. Anything else is info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger creates a logger writing to stderr.
// format is "json" or "console" (default: console).
func NewLogger(level, format string) *zap.Logger {
	return New(level, format, zapcore.Lock(os.Stderr))
}

// New creates a logger writing to w.
func New(level, format string, w zapcore.WriteSyncer) *zap.Logger {
	var encoder zapcore.Encoder
	if strings.EqualFold(format, "json") {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "timestamp"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, w, zap.NewAtomicLevelAt(ParseLevel(level)))
	logger := zap.New(core)

	if hostname, err := os.Hostname(); err == nil && hostname != "" && strings.EqualFold(format, "json") {
		logger = logger.With(zap.String("hostname", hostname))
	}

	return logger
}
