package http

import (
	"github.com/gofiber/fiber/v3"

	"authkeeper/internal/client/adapters/http/middleware"
)

// SetupRouter настраивает маршрутизацию агента.
func SetupRouter(app *fiber.App, handler *Handler) {
	app.Use(middleware.NewRequestIDMiddleware())
	app.Use(middleware.NewLoggerMiddleware())
	app.Use(middleware.NewRecoveryMiddleware())

	apiV1 := app.Group("/api/v1")

	authRoutes := apiV1.Group("/auth")
	authRoutes.Post("/login", handler.Login)
	authRoutes.Get("/2fa", handler.TwoFactorStatus)
	authRoutes.Post("/2fa/verify", handler.VerifyTwoFactor)
	authRoutes.Post("/2fa/resend", handler.ResendTwoFactorCode)
	authRoutes.Post("/2fa/cancel", handler.CancelTwoFactor)

	sessionRoutes := apiV1.Group("/session")
	sessionRoutes.Get("/", handler.Session)
	sessionRoutes.Post("/activity", handler.RecordActivity)
	sessionRoutes.Post("/extend", handler.Extend)
	sessionRoutes.Post("/logout", handler.Logout)
	sessionRoutes.Get("/events", handler.Events)

	apiV1.All("/resource/*", handler.Forward)

	app.Use(func(c fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Route not found",
		})
	})
}
