package entities

import "time"

// TokenPair - текущая пара токенов доступа и обновления.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IssuedAt     time.Time `json:"issued_at"`
	// AccessExpiresAt - момент истечения access-токена; нулевое значение означает, что он неизвестен.
	AccessExpiresAt time.Time `json:"access_expires_at,omitempty"`
}

// Empty сообщает, что в паре нет access-токена.
func (p TokenPair) Empty() bool {
	return p.AccessToken == ""
}

// RefreshedToken - результат обмена refresh-токена на новый access-токен.
type RefreshedToken struct {
	AccessToken string
	// ExpiresAt заполняется, если сервис сообщил срок жизни токена.
	ExpiresAt time.Time
}
