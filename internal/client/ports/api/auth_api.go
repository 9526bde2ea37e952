// Package api определяет порт удаленного сервиса аутентификации.
package api

import (
	"context"

	"authkeeper/internal/client/domain/entities"
)

// AuthAPI - операции обмена учетных данных с удаленным сервисом.
// Ошибки соответствуют таксономии entities (ErrInvalidCredentials, *RateLimitedError и т.д.).
type AuthAPI interface {
	Login(ctx context.Context, creds entities.Credentials) (entities.LoginOutcome, error)

	VerifyTwoFactor(ctx context.Context, challengeToken, code string) (entities.Authenticated, error)

	ResendTwoFactorCode(ctx context.Context, challengeToken string) error

	RefreshAccessToken(ctx context.Context, refreshToken string) (entities.RefreshedToken, error)

	// Logout - best-effort вызов; вызывающая сторона игнорирует ошибку.
	Logout(ctx context.Context, accessToken string) error
}
