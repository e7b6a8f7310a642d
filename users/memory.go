package users

import (
	"context"
	"strings"
	"sync"
)

// =============================================================================
// MEMORY DIRECTORY - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (m *Memory) FindByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	u := m.byID[id]
	return &u, nil
}

func (m *Memory) Create(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalizeEmail(u.Email)
	if _, taken := m.byEmail[key]; taken {
		return ErrEmailTaken
	}
	m.byID[u.ID] = u
	m.byEmail[key] = u.ID
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ Directory = (*Memory)(nil)
