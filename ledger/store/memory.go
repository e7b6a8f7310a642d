// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/statement-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	statements map[string][]ledger.Statement
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		statements: make(map[string][]ledger.Statement),
		now:        time.Now,
	}
}

// Append adds a single statement. Append-only.
func (m *Memory) Append(_ context.Context, st ledger.Statement) (ledger.Statement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(st, m.now()), nil
}

// AppendBatch adds multiple statements atomically.
func (m *Memory) AppendBatch(_ context.Context, sts []ledger.Statement) ([]ledger.Statement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// One timestamp for the whole batch, like the SQL stores.
	now := m.now()
	stored := make([]ledger.Statement, len(sts))
	for i, st := range sts {
		stored[i] = m.appendLocked(st, now)
	}
	return stored, nil
}

// appendLocked keeps insertion order; no sorting by time.
func (m *Memory) appendLocked(st ledger.Statement, now time.Time) ledger.Statement {
	st = ledger.Stamp(st, now)
	m.statements[st.UserID] = append(m.statements[st.UserID], st)
	return st
}

func (m *Memory) ListByUser(_ context.Context, userID string) ([]ledger.Statement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Statement, len(m.statements[userID]))
	copy(result, m.statements[userID])
	return result, nil
}

func (m *Memory) Get(_ context.Context, userID, statementID string) (*ledger.Statement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, st := range m.statements[userID] {
		if st.ID == statementID {
			found := st
			return &found, nil
		}
	}
	return nil, nil
}

// ListUserIDs returns every user with at least one statement, sorted.
func (m *Memory) ListUserIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.statements))
	for id := range m.statements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var (
	_ ledger.Store      = (*Memory)(nil)
	_ ledger.UserLister = (*Memory)(nil)
)
