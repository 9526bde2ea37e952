package logger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrLoggerNotFound возвращается, если в контексте нет логгера.
var ErrLoggerNotFound = errors.New("logger not found in context")

type loggerKey struct{}

var (
	globalLogger atomic.Pointer[Logger]
	// fallbackLogger пишет только предупреждения и ошибки, пока глобальный логгер не задан.
	fallbackLogger = newFallback()
)

func newFallback() *Logger {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	zapLogger, err := config.Build()
	if err != nil {
		return NewNop()
	}
	return &Logger{l: zapLogger.With(zap.String("logger", "fallback"))}
}

// NewContext кладет логгер в контекст.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext извлекает логгер из контекста.
func FromContext(ctx context.Context) (*Logger, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context validation: %w", ErrLoggerNotFound)
	}
	logger, ok := ctx.Value(loggerKey{}).(*Logger)
	if !ok {
		return nil, fmt.Errorf("logger lookup: %w", ErrLoggerNotFound)
	}
	return logger, nil
}

// SetGlobalLogger задает глобальный логгер. nil возвращает резервный.
func SetGlobalLogger(logger *Logger) {
	globalLogger.Store(logger)
}

// Log возвращает логгер из контекста, иначе глобальный.
func Log(ctx context.Context) *Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
			return logger
		}
	}
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	return fallbackLogger
}
