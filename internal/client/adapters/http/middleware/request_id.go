// Package middleware содержит промежуточное ПО для HTTP обработчиков агента.
package middleware

import (
	"github.com/gofiber/fiber/v3"

	"authkeeper/pkg/logger"
)

// HeaderRequestID - заголовок с идентификатором запроса.
const HeaderRequestID = "X-Request-ID"

// NewRequestIDMiddleware кладет идентификатор запроса в контекст: берет его из
// заголовка или генерирует новый. Идентификатор возвращается в ответе.
func NewRequestIDMiddleware() fiber.Handler {
	return func(ctx fiber.Ctx) error {
		requestCtx := logger.NewRequestIDContext(ctx.Context(), ctx.Get(HeaderRequestID))
		ctx.SetContext(requestCtx)

		if id, ok := logger.GetRequestID(requestCtx); ok {
			ctx.Set(HeaderRequestID, id)
		}
		return ctx.Next()
	}
}
