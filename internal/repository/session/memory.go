package session

import (
	"context"
	"sync"

	"github.com/veltra/findex/internal/domain"
)

// MemoryStore is an in-process session store with the same merge semantics
// as Store. Used when no backend is configured; sessions then do not
// survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]domain.Product
}

// NewMemory creates an in-memory session store.
func NewMemory() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]domain.Product)}
}

// GetAll returns all stored products for this user in insertion order.
func (m *MemoryStore) GetAll(_ context.Context, user string) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.sessions[user]
	out := make([]domain.Product, len(stored))
	copy(out, stored)
	return out, nil
}

// ExcludedKeys returns the handles already shown to this user.
func (m *MemoryStore) ExcludedKeys(_ context.Context, user string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.sessions[user]
	keys := make([]string, 0, len(stored))
	for _, p := range stored {
		if p.Handle != "" {
			keys = append(keys, p.Handle)
		}
	}
	return keys, nil
}

// Append merges items into the user's session under the store lock.
func (m *MemoryStore) Append(_ context.Context, user string, items []domain.Product) error {
	if len(items) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[user] = mergeProducts(m.sessions[user], items)
	return nil
}

// Clear removes all stored products for a user.
func (m *MemoryStore) Clear(_ context.Context, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, user)
	return nil
}

// Ping always succeeds for the in-memory store.
func (m *MemoryStore) Ping(_ context.Context) error { return nil }
