// Package http содержит локальный HTTP API агента сессии для отсоединенного интерфейса.
package http

import (
	"math"
	"time"

	"authkeeper/internal/client/app"
	"authkeeper/internal/client/domain/entities"
)

// LoginRequest - запрос на вход.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	RememberMe bool   `json:"rememberMe"`
}

// VerifyRequest - код второго фактора.
type VerifyRequest struct {
	Code string `json:"code"`
}

// ActivityRequest - пользовательская активность.
type ActivityRequest struct {
	Kind entities.ActivityKind `json:"kind"`
}

// TwoFactorResponse - состояние проверки второго фактора.
type TwoFactorResponse struct {
	State             string `json:"state"`
	RemainingAttempts int    `json:"remainingAttempts"`
	ExpiresInSeconds  int64  `json:"expiresInSeconds"`
	ResendInSeconds   int64  `json:"resendInSeconds"`
	Submitting        bool   `json:"submitting"`
}

// LoginResponse - результат входа. Токены наружу не отдаются.
type LoginResponse struct {
	Requires2FA bool               `json:"requires2FA"`
	User        *entities.User     `json:"user,omitempty"`
	TwoFactor   *TwoFactorResponse `json:"twoFactor,omitempty"`
}

// UserResponse - профиль после успешной проверки.
type UserResponse struct {
	User entities.User `json:"user"`
}

// SessionResponse - состояние сессии.
type SessionResponse struct {
	State            string         `json:"state"`
	Mode             string         `json:"mode,omitempty"`
	LastActivityAt   *time.Time     `json:"lastActivityAt,omitempty"`
	ExpiresAt        *time.Time     `json:"expiresAt,omitempty"`
	WarningFiredAt   *time.Time     `json:"warningFiredAt,omitempty"`
	RemainingSeconds int64          `json:"remainingSeconds"`
	User             *entities.User `json:"user,omitempty"`
}

// ExtendedResponse - продлена ли сессия.
type ExtendedResponse struct {
	Extended bool `json:"extended"`
}

// EventsResponse - события после курсора.
type EventsResponse struct {
	Events []EventRecord `json:"events"`
	Next   uint64        `json:"next"`
}

func twoFactorResponse(s app.TwoFactorSnapshot) *TwoFactorResponse {
	return &TwoFactorResponse{
		State:             s.State.String(),
		RemainingAttempts: s.RemainingAttempts,
		ExpiresInSeconds:  seconds(s.ExpiresIn),
		ResendInSeconds:   seconds(s.ResendIn),
		Submitting:        s.Submitting,
	}
}

func sessionResponse(s app.SessionSnapshot, user entities.User, hasUser bool) SessionResponse {
	resp := SessionResponse{
		State:            s.State.String(),
		RemainingSeconds: seconds(s.Remaining),
	}
	if s.State.Live() {
		resp.Mode = s.Mode.String()
		lastActivity, expiresAt := s.Clock.LastActivityAt, s.Clock.ExpiresAt
		resp.LastActivityAt = &lastActivity
		resp.ExpiresAt = &expiresAt
		resp.WarningFiredAt = s.Clock.WarningFiredAt
	}
	if hasUser {
		resp.User = &user
	}
	return resp
}

// seconds округляет вверх: интерфейс не должен показывать 0 до фактического истечения.
func seconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
