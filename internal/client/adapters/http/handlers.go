package http

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"authkeeper/internal/client/adapters/transport"
	"authkeeper/internal/client/app"
	"authkeeper/internal/client/domain/entities"
	"authkeeper/pkg/logger"
)

// Константы для логирования.
const (
	LogHandlerLogin    = "agent handler: login"
	LogHandlerVerify   = "agent handler: verify two-factor"
	LogHandlerResend   = "agent handler: resend two-factor code"
	LogHandlerCancel   = "agent handler: cancel two-factor"
	LogHandlerLogout   = "agent handler: logout"
	LogHandlerExtend   = "agent handler: extend session"
	LogHandlerActivity = "agent handler: record activity"
	LogHandlerForward  = "agent handler: forward resource request"

	ErrorInvalidRequest       = "invalid request"
	ErrorFailedToServeRequest = "failed to serve request"
)

// Core - ядро клиента, которым управляет агент.
type Core interface {
	Login(ctx context.Context, creds entities.Credentials) (entities.LoginOutcome, error)
	VerifyTwoFactor(ctx context.Context, code string) (entities.Authenticated, error)
	ResendTwoFactorCode(ctx context.Context) error
	CancelTwoFactor()
	Logout(ctx context.Context) error
	Session() *app.SessionManager
	TwoFactor() *app.TwoFactor
	Store() *app.TokenStore
}

// Forwarder выполняет авторизованные запросы к ресурсному API.
type Forwarder interface {
	Forward(ctx context.Context, req transport.ForwardRequest) (transport.ForwardResponse, error)
}

// Handler содержит HTTP обработчики агента.
type Handler struct {
	core      Core
	events    *EventLog
	forwarder Forwarder
}

// NewHandler создает обработчики агента. forwarder может быть nil: тогда
// маршрут ресурсного API отвечает 404.
func NewHandler(core Core, events *EventLog, forwarder Forwarder) *Handler {
	return &Handler{
		core:      core,
		events:    events,
		forwarder: forwarder,
	}
}

// Login обрабатывает вход. Учетные данные живут только на время запроса.
func (h *Handler) Login(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()
	log := logger.Log(requestCtx)
	log.Info(requestCtx, LogHandlerLogin)

	var req LoginRequest
	if err := ctx.Bind().JSON(&req); err != nil {
		log.Warn(requestCtx, ErrorInvalidRequest, zap.Error(err))
		return sendMessage(ctx, fiber.StatusBadRequest, ErrorInvalidRequest)
	}
	if req.Identifier == "" || req.Secret == "" {
		return sendMessage(ctx, fiber.StatusBadRequest, "identifier and secret are required")
	}

	outcome, err := h.core.Login(requestCtx, entities.Credentials{
		Identifier: req.Identifier,
		Secret:     req.Secret,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		log.Warn(requestCtx, ErrorFailedToServeRequest, zap.Error(err))
		return sendError(ctx, err)
	}

	if outcome.RequiresTwoFactor() {
		return sendJSON(ctx, fiber.StatusOK, LoginResponse{
			Requires2FA: true,
			TwoFactor:   twoFactorResponse(h.core.TwoFactor().Snapshot()),
		})
	}
	user := outcome.Authenticated.User
	return sendJSON(ctx, fiber.StatusOK, LoginResponse{User: &user})
}

// TwoFactorStatus возвращает состояние проверки второго фактора.
func (h *Handler) TwoFactorStatus(ctx fiber.Ctx) error {
	h.resync()
	return sendJSON(ctx, fiber.StatusOK, twoFactorResponse(h.core.TwoFactor().Snapshot()))
}

// VerifyTwoFactor отправляет код второго фактора.
func (h *Handler) VerifyTwoFactor(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()
	log := logger.Log(requestCtx)
	log.Info(requestCtx, LogHandlerVerify)

	h.resync()
	var req VerifyRequest
	if err := ctx.Bind().JSON(&req); err != nil {
		log.Warn(requestCtx, ErrorInvalidRequest, zap.Error(err))
		return sendMessage(ctx, fiber.StatusBadRequest, ErrorInvalidRequest)
	}

	authenticated, err := h.core.VerifyTwoFactor(requestCtx, req.Code)
	if err != nil {
		log.Info(requestCtx, ErrorFailedToServeRequest, zap.Error(err))
		return sendError(ctx, err)
	}
	return sendJSON(ctx, fiber.StatusOK, UserResponse{User: authenticated.User})
}

// ResendTwoFactorCode запрашивает новый код.
func (h *Handler) ResendTwoFactorCode(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()
	log := logger.Log(requestCtx)
	log.Info(requestCtx, LogHandlerResend)

	h.resync()
	if err := h.core.ResendTwoFactorCode(requestCtx); err != nil {
		log.Info(requestCtx, ErrorFailedToServeRequest, zap.Error(err))
		return sendError(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

// CancelTwoFactor отменяет ожидающую проверку.
func (h *Handler) CancelTwoFactor(ctx fiber.Ctx) error {
	logger.Log(ctx.Context()).Info(ctx.Context(), LogHandlerCancel)

	h.core.CancelTwoFactor()
	return ctx.SendStatus(fiber.StatusNoContent)
}

// Session возвращает состояние сессии.
func (h *Handler) Session(ctx fiber.Ctx) error {
	h.resync()
	user, ok := h.core.Store().User()
	return sendJSON(ctx, fiber.StatusOK, sessionResponse(h.core.Session().Snapshot(), user, ok))
}

// RecordActivity отмечает активность пользователя.
func (h *Handler) RecordActivity(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()
	logger.Log(requestCtx).Debug(requestCtx, LogHandlerActivity)

	h.resync()
	req := ActivityRequest{Kind: entities.ActivityKeyDown}
	if len(ctx.Body()) > 0 {
		if err := ctx.Bind().JSON(&req); err != nil {
			return sendMessage(ctx, fiber.StatusBadRequest, ErrorInvalidRequest)
		}
	}
	if !req.Kind.Qualifying() {
		return sendMessage(ctx, fiber.StatusBadRequest, "unsupported activity kind")
	}

	return sendJSON(ctx, fiber.StatusOK, ExtendedResponse{Extended: h.core.Session().RecordActivity(req.Kind)})
}

// Extend продлевает сессию в ответ на предупреждение. Вне предупреждения ничего не делает.
func (h *Handler) Extend(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()
	logger.Log(requestCtx).Info(requestCtx, LogHandlerExtend)
	h.resync()

	return sendJSON(ctx, fiber.StatusOK, ExtendedResponse{Extended: h.core.Session().Extend()})
}

// Logout завершает сессию. Локальный выход выполняется всегда.
func (h *Handler) Logout(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()
	log := logger.Log(requestCtx)
	log.Info(requestCtx, LogHandlerLogout)

	if err := h.core.Logout(requestCtx); err != nil {
		log.Warn(requestCtx, ErrorFailedToServeRequest, zap.Error(err))
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

// Events возвращает события сессии с номером больше after.
func (h *Handler) Events(ctx fiber.Ctx) error {
	after, err := strconv.ParseUint(ctx.Query("after", "0"), 10, 64)
	if err != nil {
		return sendMessage(ctx, fiber.StatusBadRequest, "after must be a non-negative integer")
	}

	h.resync()
	events, next := h.events.Since(after)
	return sendJSON(ctx, fiber.StatusOK, EventsResponse{Events: events, Next: next})
}

// Forward передает запрос ресурсному API с токеном пользователя. Путь берется
// из хвоста маршрута, ответ сервиса возвращается без изменений.
func (h *Handler) Forward(ctx fiber.Ctx) error {
	if h.forwarder == nil {
		return sendMessage(ctx, fiber.StatusNotFound, "Route not found")
	}

	requestCtx := ctx.Context()
	log := logger.Log(requestCtx)
	log.Debug(requestCtx, LogHandlerForward)
	// Истекшая за время сна сессия завершается до отправки токена.
	h.resync()

	resp, err := h.forwarder.Forward(requestCtx, transport.ForwardRequest{
		Method:      ctx.Method(),
		Path:        "/" + ctx.Params("*"),
		Query:       string(ctx.Request().URI().QueryString()),
		ContentType: ctx.Get(fiber.HeaderContentType),
		Body:        append([]byte(nil), ctx.Body()...),
	})
	if err != nil {
		log.Warn(requestCtx, ErrorFailedToServeRequest, zap.Error(err))
		return sendError(ctx, err)
	}

	if resp.ContentType != "" {
		ctx.Set(fiber.HeaderContentType, resp.ContentType)
	}
	return ctx.Status(resp.Status).Send(resp.Body)
}

// resync сверяет сроки сессии и challenge с настенными часами. Таймеры
// не идут, пока хост спит, поэтому каждый запрос агента начинается со сверки.
func (h *Handler) resync() {
	h.core.TwoFactor().Resync()
	h.core.Session().Resync()
}
