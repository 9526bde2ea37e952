package authapi

import "encoding/json"

// Пути удаленного сервиса аутентификации относительно BaseURL.
const (
	PathLogin   = "/auth/login"
	PathVerify  = "/auth/2fa/verify"
	PathResend  = "/auth/2fa/resend"
	PathRefresh = "/auth/token/refresh"
	PathLogout  = "/auth/logout"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	RememberMe bool   `json:"rememberMe"`
}

type verifyRequest struct {
	Token string `json:"token"`
	Code  string `json:"code"`
}

type resendRequest struct {
	Token string `json:"token"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// tokenResponse покрывает ответы login, 2fa/verify и token/refresh.
// Сервис может отдавать токены как accessToken/refreshToken или как access/refresh.
type tokenResponse struct {
	Requires2FA    bool            `json:"requires2FA"`
	TwoFactorToken string          `json:"twoFactorToken"`
	User           json.RawMessage `json:"user"`

	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Access       string `json:"access"`
	Refresh      string `json:"refresh"`

	// AccessTokenExpiry - срок жизни access-токена в секундах.
	AccessTokenExpiry int64 `json:"access_token_expiry"`
}

func (r *tokenResponse) access() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.Access
}

func (r *tokenResponse) refresh() string {
	if r.RefreshToken != "" {
		return r.RefreshToken
	}
	return r.Refresh
}

type errorResponse struct {
	Error             string `json:"error"`
	Detail            string `json:"detail"`
	Message           string `json:"message"`
	RemainingAttempts *int   `json:"remainingAttempts"`
}

func (r *errorResponse) text() string {
	switch {
	case r.Detail != "":
		return r.Detail
	case r.Error != "":
		return r.Error
	default:
		return r.Message
	}
}
