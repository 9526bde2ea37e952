package app

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessClaims читает iat и exp из access-токена без проверки подписи: клиент
// не владеет ключом, а значения нужны только для планирования обновления.
// Для непрозрачных токенов возвращаются нулевые значения.
func accessClaims(token string) (issuedAt, expiresAt time.Time) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, time.Time{}
	}
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return issuedAt, expiresAt
}
