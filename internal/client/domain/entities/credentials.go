// Package entities содержит доменную модель клиента аутентификации:
// учетные данные, пары токенов, режим хранения, ожидающую 2FA и часы сессии.
package entities

import "fmt"

// Credentials - учетные данные для входа. Живут только на время вызова Login и никогда не сохраняются.
type Credentials struct {
	Identifier string
	Secret     string
	RememberMe bool
}

// PersistenceMode определяет раздел хранилища, длительность сессии и наличие таймаута бездействия.
type PersistenceMode int

// Режимы хранения.
const (
	// Ephemeral - короткая сессия с таймаутом бездействия.
	Ephemeral PersistenceMode = iota
	// Durable - длинная сессия ("запомнить меня") без таймаута бездействия.
	Durable
)

// ModeFor выбирает режим хранения по флагу rememberMe.
func ModeFor(rememberMe bool) PersistenceMode {
	if rememberMe {
		return Durable
	}
	return Ephemeral
}

// String возвращает строковое представление режима.
func (m PersistenceMode) String() string {
	switch m {
	case Durable:
		return "durable"
	case Ephemeral:
		return "ephemeral"
	default:
		return "unknown"
	}
}

// Other возвращает противоположный режим.
func (m PersistenceMode) Other() PersistenceMode {
	if m == Durable {
		return Ephemeral
	}
	return Durable
}

// MarshalText реализует encoding.TextMarshaler.
func (m PersistenceMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler.
func (m *PersistenceMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "durable":
		*m = Durable
	case "ephemeral":
		*m = Ephemeral
	default:
		return fmt.Errorf("unknown persistence mode %q", string(text))
	}
	return nil
}
