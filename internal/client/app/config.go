package app

import "time"

// Значения по умолчанию.
const (
	DefaultEphemeralTimeout = 15 * time.Minute
	DefaultDurableTimeout   = 7 * 24 * time.Hour
	DefaultWarningLead      = 2 * time.Minute
	DefaultLogoutTimeout    = 5 * time.Second

	DefaultMaxAttempts    = 5
	DefaultChallengeTTL   = 5 * time.Minute
	DefaultResendCooldown = 60 * time.Second
	DefaultSubmitDebounce = 100 * time.Millisecond
	DefaultLockoutGrace   = 3 * time.Second
)

// SessionConfig - длительности сессии.
type SessionConfig struct {
	EphemeralTimeout time.Duration
	DurableTimeout   time.Duration
	// WarningLead - за сколько до истечения Ephemeral-сессии публикуется предупреждение.
	WarningLead time.Duration
	// LogoutTimeout ограничивает удаленный logout после истечения сессии.
	LogoutTimeout time.Duration
}

// DefaultSessionConfig возвращает настройки сессии по умолчанию.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		EphemeralTimeout: DefaultEphemeralTimeout,
		DurableTimeout:   DefaultDurableTimeout,
		WarningLead:      DefaultWarningLead,
		LogoutTimeout:    DefaultLogoutTimeout,
	}
}

// Timeout возвращает длительность сессии для режима.
func (c SessionConfig) Timeout(durable bool) time.Duration {
	if durable {
		return c.DurableTimeout
	}
	return c.EphemeralTimeout
}

// TwoFactorConfig - параметры проверки второго фактора.
type TwoFactorConfig struct {
	MaxAttempts    int
	ChallengeTTL   time.Duration
	ResendCooldown time.Duration
	SubmitDebounce time.Duration
	// LockoutGrace - пауза между блокировкой и требованием повторного входа.
	LockoutGrace time.Duration
}

// DefaultTwoFactorConfig возвращает параметры второго фактора по умолчанию.
func DefaultTwoFactorConfig() TwoFactorConfig {
	return TwoFactorConfig{
		MaxAttempts:    DefaultMaxAttempts,
		ChallengeTTL:   DefaultChallengeTTL,
		ResendCooldown: DefaultResendCooldown,
		SubmitDebounce: DefaultSubmitDebounce,
		LockoutGrace:   DefaultLockoutGrace,
	}
}
