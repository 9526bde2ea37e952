package entities

import (
	"encoding/json"
	"fmt"
)

// User - профиль пользователя, выданный сервисом аутентификации.
// Для клиента запись непрозрачна: исходный JSON сохраняется целиком,
// а несколько полей разбираются для логов и отображения.
type User struct {
	ID    string
	Email string
	Name  string
	Raw   json.RawMessage
}

type userFields struct {
	ID             json.RawMessage `json:"id"`
	Email          string          `json:"email"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	FirstNameCamel string          `json:"firstName"`
	LastNameCamel  string          `json:"lastName"`
}

// ParseUser разбирает профиль из JSON.
func ParseUser(raw json.RawMessage) (User, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return User{}, nil
	}

	var fields userFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return User{}, fmt.Errorf("decoding user profile: %w", err)
	}

	first, last := fields.FirstName, fields.LastName
	if first == "" && last == "" {
		first, last = fields.FirstNameCamel, fields.LastNameCamel
	}
	name := first
	if last != "" {
		if name != "" {
			name += " "
		}
		name += last
	}

	return User{
		ID:    unquoteID(fields.ID),
		Email: fields.Email,
		Name:  name,
		Raw:   append(json.RawMessage(nil), raw...),
	}, nil
}

// unquoteID принимает идентификатор и строкой, и числом.
func unquoteID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// DisplayName возвращает имя для интерфейса.
func (u User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	default:
		return u.ID
	}
}

// MarshalJSON сохраняет исходный профиль без изменений.
func (u User) MarshalJSON() ([]byte, error) {
	if len(u.Raw) == 0 {
		return []byte("null"), nil
	}
	return u.Raw, nil
}

// UnmarshalJSON восстанавливает профиль из сохраненного JSON.
func (u *User) UnmarshalJSON(data []byte) error {
	parsed, err := ParseUser(data)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
