package log

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

var defaultLogger = newLogger(os.Getenv("LOG_LEVEL"))

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// SetLevel replaces the default logger with a logger at the given level (debug, info, warn, error)
func SetLevel(level string) {
	defaultLogger = newLogger(level)
}

// Logger returns the logger attached to the context, or the default logger
func Logger(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
			return l
		}
	}
	return defaultLogger
}

// With returns a context whose logger has the additional field key=value
func With(ctx context.Context, key string, value interface{}) context.Context {
	return context.WithValue(ctx, ctxKey{}, Logger(ctx).With(zap.Any(key, value)))
}

// Fatal logs with the default logger and exits
func Fatal(msg string, fields ...zap.Field) {
	defaultLogger.Fatal(msg, fields...)
}
