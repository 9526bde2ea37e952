package entities

import "time"

// Темы шины событий сессии.
const (
	TopicSessionWarning = "session-warning"
	TopicSessionTimeout = "session-timeout"
	TopicSessionRevoked = "session-revoked"
)

// SessionClock - часы сессии. ExpiresAt = LastActivityAt + длительность таймаута;
// WarningFiredAt, если задан, всегда раньше ExpiresAt.
type SessionClock struct {
	LastActivityAt time.Time
	WarningFiredAt *time.Time
	ExpiresAt      time.Time
}

// Remaining возвращает время до истечения сессии.
func (c SessionClock) Remaining(now time.Time) time.Duration {
	return clampPositive(c.ExpiresAt.Sub(now))
}

// ActivityKind - вид пользовательской активности, подтверждающей присутствие.
type ActivityKind string

// Виды активности.
const (
	ActivityPointerDown ActivityKind = "pointer-down"
	ActivityKeyDown     ActivityKind = "key-down"
	ActivityScroll      ActivityKind = "scroll"
	ActivityTouchStart  ActivityKind = "touch-start"
)

// Qualifying сообщает, продлевает ли активность сессию.
func (k ActivityKind) Qualifying() bool {
	switch k {
	case ActivityPointerDown, ActivityKeyDown, ActivityScroll, ActivityTouchStart:
		return true
	default:
		return false
	}
}

// SessionEvent - полезная нагрузка событий шины.
type SessionEvent struct {
	Topic     string
	At        time.Time
	ExpiresAt time.Time
	Reason    string
}
