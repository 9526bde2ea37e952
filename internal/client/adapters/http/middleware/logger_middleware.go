package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"authkeeper/pkg/logger"
)

// Константы для логирования.
const (
	LogRequestStarted   = "agent request started"
	LogRequestCompleted = "agent request completed"
	LogRequestFailed    = "agent request failed"
)

// NewLoggerMiddleware пишет в журнал начало и итог каждого запроса к агенту.
// Тело запроса не логируется: в нем бывают пароль и код.
func NewLoggerMiddleware() fiber.Handler {
	return func(ctx fiber.Ctx) error {
		requestCtx := ctx.Context()
		start := time.Now()

		log := logger.Log(requestCtx).With(
			zap.String("path", ctx.Path()),
			zap.String("http_method", ctx.Method()),
		)
		log.Debug(requestCtx, LogRequestStarted)

		err := ctx.Next()

		fields := []zap.Field{
			zap.Int("status", ctx.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
		}
		if err != nil {
			log.Error(requestCtx, LogRequestFailed, append(fields, zap.Error(err))...)
			return fmt.Errorf("request processing error: %w", err)
		}

		log.Info(requestCtx, LogRequestCompleted, fields...)
		return nil
	}
}
