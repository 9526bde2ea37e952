// Package storage определяет раздел хранилища, в котором лежит снимок сессии.
package storage

import (
	"context"

	"authkeeper/internal/client/domain/entities"
)

// Snapshot - то, что переживает перезапуск клиента: режим, пара токенов и профиль.
type Snapshot struct {
	Mode   entities.PersistenceMode `json:"mode"`
	Tokens entities.TokenPair       `json:"tokens"`
	User   entities.User            `json:"user"`
}

// Partition - один из двух разделов хранилища (durable или ephemeral).
type Partition interface {
	Save(ctx context.Context, snapshot Snapshot) error

	// Load возвращает false, если раздел пуст.
	Load(ctx context.Context) (Snapshot, bool, error)

	Clear(ctx context.Context) error
}
