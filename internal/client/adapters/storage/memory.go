package storage

import (
	"context"
	"sync"

	storagePorts "authkeeper/internal/client/ports/storage"
)

// MemoryPartition хранит снимок в памяти процесса и теряет его при перезапуске.
// Используется для режима Ephemeral.
type MemoryPartition struct {
	mu       sync.RWMutex
	snapshot *storagePorts.Snapshot
}

var _ storagePorts.Partition = (*MemoryPartition)(nil)

// NewMemoryPartition создает пустой раздел.
func NewMemoryPartition() *MemoryPartition {
	return &MemoryPartition{}
}

// Save заменяет снимок.
func (p *MemoryPartition) Save(_ context.Context, snapshot storagePorts.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = &snapshot
	return nil
}

// Load возвращает снимок, если он есть.
func (p *MemoryPartition) Load(_ context.Context) (storagePorts.Snapshot, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snapshot == nil {
		return storagePorts.Snapshot{}, false, nil
	}
	return *p.snapshot, true, nil
}

// Clear удаляет снимок.
func (p *MemoryPartition) Clear(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = nil
	return nil
}
