/*
locker.go - Per-user write serialization

PURPOSE:
  A debit is "read balance, compare, append". Two debits for the same user
  running that sequence at the same time could both pass against the same
  stale balance. The Locker makes the sequence exclusive per user.

RULES:
  - One lock per user id. Different users never contend.
  - Multi-user operations (transfers) acquire ids in sorted order, so two
    opposite transfers between the same pair cannot deadlock.
  - Waiting honors ctx; a cancelled wait returns before any write happens.
*/
package ledger

import (
	"context"
	"sort"
	"sync"
)

// Locker grants exclusive write access to a set of users.
type Locker interface {
	// Lock blocks until every id is held or ctx is done.
	// The returned func releases all ids and is safe to call more than once.
	Lock(ctx context.Context, ids ...string) (func(), error)
}

// =============================================================================
// KEYED LOCKER - In-process implementation
// =============================================================================

// KeyedLocker keeps one single-slot semaphore per user id. Entries are
// reference counted and removed once nobody holds or waits on them.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	slot chan struct{}
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyLock)}
}

func (k *KeyedLocker) Lock(ctx context.Context, ids ...string) (func(), error) {
	keys := sortedUnique(ids)
	held := make([]string, 0, len(keys))

	for _, id := range keys {
		if err := k.acquire(ctx, id); err != nil {
			k.release(held)
			return nil, err
		}
		held = append(held, id)
	}

	var once sync.Once
	return func() { once.Do(func() { k.release(held) }) }, nil
}

// Len returns the number of user ids currently held or awaited.
func (k *KeyedLocker) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func (k *KeyedLocker) acquire(ctx context.Context, id string) error {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyLock{slot: make(chan struct{}, 1)}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.mu.Lock()
		k.unrefLocked(id, l)
		k.mu.Unlock()
		return ctx.Err()
	}
}

// release frees ids in reverse acquisition order.
func (k *KeyedLocker) release(ids []string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i := len(ids) - 1; i >= 0; i-- {
		l := k.locks[ids[i]]
		<-l.slot
		k.unrefLocked(ids[i], l)
	}
}

func (k *KeyedLocker) unrefLocked(id string, l *keyLock) {
	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
}

func sortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

var _ Locker = (*KeyedLocker)(nil)
