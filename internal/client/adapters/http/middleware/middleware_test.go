package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"authkeeper/internal/client/adapters/http/middleware"
	"authkeeper/pkg/logger"
)

func newApp(handler fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Use(middleware.NewRequestIDMiddleware())
	app.Use(middleware.NewLoggerMiddleware())
	app.Use(middleware.NewRecoveryMiddleware())
	app.Get("/", handler)
	return app
}

func TestRequestIDPropagation(t *testing.T) {
	var seen string
	app := newApp(func(ctx fiber.Ctx) error {
		seen, _ = logger.GetRequestID(ctx.Context())
		return ctx.SendStatus(http.StatusNoContent)
	})

	t.Run("incoming header is kept", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(middleware.HeaderRequestID, "req-42")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, "req-42", resp.Header.Get(middleware.HeaderRequestID))
		assert.Equal(t, "req-42", seen)
	})

	t.Run("generated when absent", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Header.Get(middleware.HeaderRequestID))
		assert.Equal(t, resp.Header.Get(middleware.HeaderRequestID), seen)
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger.SetGlobalLogger(logger.Wrap(zap.New(core)))
	t.Cleanup(func() { logger.SetGlobalLogger(nil) })

	app := newApp(func(fiber.Ctx) error {
		panic("secret-token-in-panic")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"`+middleware.PanicResponseMessage+`"}`, string(body))

	panics := logs.FilterMessage(middleware.LogHandlerPanic).All()
	require.Len(t, panics, 1)
	assert.Equal(t, "secret-token-in-panic", panics[0].ContextMap()["panic"])
	assert.Equal(t, "/", panics[0].ContextMap()["path"])
	assert.NotEmpty(t, panics[0].ContextMap()[logger.RequestID])

	completed := logs.FilterMessage(middleware.LogRequestCompleted).All()
	require.Len(t, completed, 1)
	assert.EqualValues(t, http.StatusInternalServerError, completed[0].ContextMap()["status"])
}
