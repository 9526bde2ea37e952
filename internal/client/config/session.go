package config

import (
	"time"

	"authkeeper/internal/client/app"
)

// SessionConfig - длительности сессии.
type SessionConfig struct {
	EphemeralTimeout time.Duration `yaml:"ephemeral_timeout" env:"AUTHKEEPER_SESSION_EPHEMERAL_TIMEOUT" env-default:"15m"`
	DurableTimeout   time.Duration `yaml:"durable_timeout" env:"AUTHKEEPER_SESSION_DURABLE_TIMEOUT" env-default:"168h"`
	WarningLead      time.Duration `yaml:"warning_lead" env:"AUTHKEEPER_SESSION_WARNING_LEAD" env-default:"2m"`
	LogoutTimeout    time.Duration `yaml:"logout_timeout" env:"AUTHKEEPER_SESSION_LOGOUT_TIMEOUT" env-default:"5s"`
}

// App возвращает настройки менеджера сессии.
func (c *SessionConfig) App() app.SessionConfig {
	return app.SessionConfig{
		EphemeralTimeout: c.EphemeralTimeout,
		DurableTimeout:   c.DurableTimeout,
		WarningLead:      c.WarningLead,
		LogoutTimeout:    c.LogoutTimeout,
	}
}

// TwoFactorConfig - параметры проверки второго фактора.
type TwoFactorConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" env:"AUTHKEEPER_2FA_MAX_ATTEMPTS" env-default:"5"`
	ChallengeTTL   time.Duration `yaml:"challenge_ttl" env:"AUTHKEEPER_2FA_CHALLENGE_TTL" env-default:"5m"`
	ResendCooldown time.Duration `yaml:"resend_cooldown" env:"AUTHKEEPER_2FA_RESEND_COOLDOWN" env-default:"60s"`
	SubmitDebounce time.Duration `yaml:"submit_debounce" env:"AUTHKEEPER_2FA_SUBMIT_DEBOUNCE" env-default:"100ms"`
	LockoutGrace   time.Duration `yaml:"lockout_grace" env:"AUTHKEEPER_2FA_LOCKOUT_GRACE" env-default:"3s"`
}

// App возвращает настройки машины второго фактора.
func (c *TwoFactorConfig) App() app.TwoFactorConfig {
	return app.TwoFactorConfig{
		MaxAttempts:    c.MaxAttempts,
		ChallengeTTL:   c.ChallengeTTL,
		ResendCooldown: c.ResendCooldown,
		SubmitDebounce: c.SubmitDebounce,
		LockoutGrace:   c.LockoutGrace,
	}
}
