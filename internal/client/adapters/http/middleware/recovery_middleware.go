package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"authkeeper/pkg/logger"
)

// Константы для логирования.
const (
	LogHandlerPanic        = "agent handler panicked"
	ErrorSendPanicResponse = "failed to send response after panic"

	// PanicResponseMessage - текст ответа клиенту; подробности паники остаются в журнале.
	PanicResponseMessage = "Something went wrong. Please try again."
)

// NewRecoveryMiddleware превращает панику обработчика в ответ 500 с безопасным текстом.
// Сессия и ее таймеры при этом не затрагиваются.
func NewRecoveryMiddleware() fiber.Handler {
	return func(ctx fiber.Ctx) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			requestCtx := ctx.Context()
			log := logger.Log(requestCtx).With(
				zap.String("path", ctx.Path()),
				zap.String("http_method", ctx.Method()),
			)
			log.Error(requestCtx, LogHandlerPanic,
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()))

			if sendErr := ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": PanicResponseMessage}); sendErr != nil {
				log.Error(requestCtx, ErrorSendPanicResponse, zap.Error(sendErr))
				err = sendErr
			}
		}()

		return ctx.Next()
	}
}
