package store

import (
	"context"
	"sync"

	"chess-coordinator/internal/settlement"
)

// MemoryStore keeps settlement failures in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	failures []settlement.Failure
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) RecordFailure(_ context.Context, f settlement.Failure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, f)
	return nil
}

func (m *MemoryStore) Failures(_ context.Context) ([]settlement.Failure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]settlement.Failure, len(m.failures))
	copy(out, m.failures)
	return out, nil
}
