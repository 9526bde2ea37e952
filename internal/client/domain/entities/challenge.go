package entities

import "time"

// PendingTwoFactor - ожидающая проверка второго фактора.
// Создается ответом на вход, требующим 2FA; уничтожается при успешной проверке,
// исчерпании попыток или истечении срока.
type PendingTwoFactor struct {
	ChallengeToken    string
	RemainingAttempts int
	ExpiresAt         time.Time
	ResendAvailableAt time.Time
}

// Expired сообщает, истек ли абсолютный срок challenge к моменту now.
func (p PendingTwoFactor) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// ExpiresIn возвращает оставшееся время жизни challenge.
func (p PendingTwoFactor) ExpiresIn(now time.Time) time.Duration {
	return clampPositive(p.ExpiresAt.Sub(now))
}

// ResendIn возвращает время до разрешения повторной отправки кода.
func (p PendingTwoFactor) ResendIn(now time.Time) time.Duration {
	return clampPositive(p.ResendAvailableAt.Sub(now))
}

func clampPositive(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
