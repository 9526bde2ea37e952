package http

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"

	"authkeeper/internal/client/adapters/transport"
	"authkeeper/internal/client/domain/entities"
)

// statusFor сопоставляет ошибку ядра HTTP-статусу агента.
func statusFor(err error) int {
	switch {
	case errors.Is(err, entities.ErrMalformedCode):
		return fiber.StatusBadRequest
	case errors.Is(err, entities.ErrInvalidCredentials),
		errors.Is(err, entities.ErrInvalidCode),
		errors.Is(err, entities.ErrRefreshInvalid),
		errors.Is(err, entities.ErrNotAuthenticated),
		errors.Is(err, transport.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, entities.ErrRateLimited),
		errors.Is(err, entities.ErrTooManyAttempts),
		errors.Is(err, entities.ErrResendCooldown):
		return fiber.StatusTooManyRequests
	case errors.Is(err, entities.ErrChallengeExpired):
		return fiber.StatusGone
	case errors.Is(err, entities.ErrRequestInFlight),
		errors.Is(err, entities.ErrNoPendingChallenge),
		errors.Is(err, entities.ErrSessionEnded):
		return fiber.StatusConflict
	case errors.Is(err, entities.ErrNetworkFailure),
		errors.Is(err, entities.ErrUnexpectedResponse):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// sendError отвечает безопасным сообщением; сырые ответы сервиса наружу не попадают.
func sendError(ctx fiber.Ctx, err error) error {
	body := fiber.Map{"error": entities.UserMessage(err)}

	var rateLimited *entities.RateLimitedError
	var locked *entities.TooManyAttemptsError
	var cooldown *entities.ResendCooldownError
	var invalidCode *entities.InvalidCodeError
	switch {
	case errors.As(err, &rateLimited):
		body["retryAfterSeconds"] = seconds(rateLimited.RetryAfter)
	case errors.As(err, &locked) && locked.RetryAfter > 0:
		body["retryAfterSeconds"] = seconds(locked.RetryAfter)
	case errors.As(err, &cooldown):
		body["retryAfterSeconds"] = seconds(cooldown.Remaining)
	case errors.As(err, &invalidCode) && invalidCode.RemainingAttempts >= 0:
		body["remainingAttempts"] = invalidCode.RemainingAttempts
	}

	return sendJSON(ctx, statusFor(err), body)
}

func sendMessage(ctx fiber.Ctx, status int, message string) error {
	return sendJSON(ctx, status, fiber.Map{"error": message})
}

func sendJSON(ctx fiber.Ctx, status int, body any) error {
	if err := ctx.Status(status).JSON(body); err != nil {
		return fmt.Errorf("sending response: %w", err)
	}
	return nil
}
