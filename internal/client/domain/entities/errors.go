package entities

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Ошибки обмена учетных данных и жизненного цикла сессии.
var (
	ErrInvalidCredentials = errors.New("invalid identifier or secret")
	ErrRateLimited        = errors.New("too many attempts, try again later")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrChallengeExpired   = errors.New("verification challenge expired")
	ErrTooManyAttempts    = errors.New("too many verification attempts")
	ErrRefreshInvalid     = errors.New("refresh token rejected")
	ErrNetworkFailure     = errors.New("authentication service unreachable")
	ErrUnexpectedResponse = errors.New("unexpected response from authentication service")
)

// Локальные ошибки, не требующие обращения к сервису.
var (
	ErrRequestInFlight    = errors.New("request already in flight")
	ErrNoPendingChallenge = errors.New("no pending verification challenge")
	ErrMalformedCode      = errors.New("verification code must be 6 digits")
	ErrResendCooldown     = errors.New("verification code resend is cooling down")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrSessionEnded       = errors.New("session ended")
)

// RateLimitedError - сервис ограничил частоту входа. RetryAfter нужно показать пользователю,
// автоматический повтор не выполняется.
type RateLimitedError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", ErrRateLimited, e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

// Is связывает ошибку с ErrRateLimited.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// TooManyAttemptsError - сервис заблокировал challenge после лишних попыток.
// RetryAfter, если сервис его сообщил, показывается пользователю.
type TooManyAttemptsError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *TooManyAttemptsError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", ErrTooManyAttempts, e.RetryAfter)
	}
	return ErrTooManyAttempts.Error()
}

// Is связывает ошибку с ErrTooManyAttempts.
func (e *TooManyAttemptsError) Is(target error) bool {
	return target == ErrTooManyAttempts
}

// InvalidCodeError - неверный код 2FA. RemainingAttempts < 0 означает, что сервис не сообщил остаток.
type InvalidCodeError struct {
	RemainingAttempts int
}

func (e *InvalidCodeError) Error() string {
	if e.RemainingAttempts >= 0 {
		return fmt.Sprintf("%s (%d attempts remaining)", ErrInvalidCode, e.RemainingAttempts)
	}
	return ErrInvalidCode.Error()
}

// Is связывает ошибку с ErrInvalidCode.
func (e *InvalidCodeError) Is(target error) bool {
	return target == ErrInvalidCode
}

// ResendCooldownError - повторная отправка кода отклонена локально до истечения паузы.
type ResendCooldownError struct {
	Remaining time.Duration
}

func (e *ResendCooldownError) Error() string {
	return fmt.Sprintf("%s (%s remaining)", ErrResendCooldown, e.Remaining.Round(time.Second))
}

// Is связывает ошибку с ErrResendCooldown.
func (e *ResendCooldownError) Is(target error) bool {
	return target == ErrResendCooldown
}

// Fatal сообщает, что ошибка требует полного завершения сессии и возврата к входу.
func Fatal(err error) bool {
	return errors.Is(err, ErrChallengeExpired) || errors.Is(err, ErrRefreshInvalid)
}

// Terminal сообщает, что текущий challenge или попытка входа закончены и пользователя
// нужно вернуть к форме входа после короткой паузы.
func Terminal(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTooManyAttempts) || Fatal(err)
}

// UserMessage возвращает безопасный текст ошибки для пользователя.
// Сырые ответы сервиса никогда не попадают в интерфейс.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var rateLimited *RateLimitedError
	var tooMany *TooManyAttemptsError
	var invalidCode *InvalidCodeError
	var cooldown *ResendCooldownError

	switch {
	case errors.As(err, &rateLimited):
		if rateLimited.RetryAfter > 0 {
			return fmt.Sprintf("Too many attempts. Try again in %s.", humanSeconds(rateLimited.RetryAfter))
		}
		return "Too many attempts. Try again later."
	case errors.As(err, &tooMany) && tooMany.RetryAfter > 0:
		return fmt.Sprintf("Too many incorrect codes. Try again in %s.", humanSeconds(tooMany.RetryAfter))
	case errors.As(err, &invalidCode):
		if invalidCode.RemainingAttempts >= 0 {
			return fmt.Sprintf("Invalid verification code. %d attempts remaining.", invalidCode.RemainingAttempts)
		}
		return "Invalid verification code."
	case errors.As(err, &cooldown):
		return fmt.Sprintf("Please wait %s before requesting a new code.", humanSeconds(cooldown.Remaining))
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, ErrMalformedCode):
		return "Enter the 6-digit verification code."
	case errors.Is(err, ErrChallengeExpired), errors.Is(err, ErrNoPendingChallenge):
		return "Your verification session has expired. Please sign in again."
	case errors.Is(err, ErrTooManyAttempts):
		return "Too many incorrect codes. Please sign in again."
	case errors.Is(err, ErrRefreshInvalid), errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrSessionEnded):
		return "Your session has ended. Please sign in again."
	case errors.Is(err, ErrNetworkFailure):
		return "Unable to reach the server. Check your connection and try again."
	default:
		return "Something went wrong. Please try again."
	}
}

func humanSeconds(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", seconds)
}
