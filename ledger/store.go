/*
store.go - Persistence interface for statements

PURPOSE:
  Defines the boundary between ledger rules and the database. The Store
  only persists and reads; it never decides whether a statement is allowed.

APPEND-ONLY CONTRACT:
  - Append(): Single statement write
  - AppendBatch(): Atomic multi-statement write (transfers)
  - NO Update() or Delete() methods exist

IDENTITY:
  Append assigns a uuid and a UTC creation timestamp when the caller left
  them empty. The stored value is returned so callers see what was written.

ORDERING:
  ListByUser returns statements in insertion order, oldest first.

ERRORS:
  A Store returns only infrastructure errors. It never returns a domain
  sentinel from errors.go; those belong to the Service.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for tests and dev
  - store/sqlite/sqlite.go: SQLite via database/sql
  - store/gormstore/gormstore.go: MySQL via gorm

SEE ALSO:
  - ledger.go: Balance queries built on Store
  - service.go: The only writer
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// STORE - Interface for statement persistence (append-only)
// =============================================================================

// Store handles persistence of statements.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
type Store interface {
	// Append persists a statement and returns the stored value.
	Append(ctx context.Context, st Statement) (Statement, error)

	// AppendBatch persists multiple statements atomically.
	// Either all succeed or none do.
	AppendBatch(ctx context.Context, sts []Statement) ([]Statement, error)

	// ListByUser returns all statements of a user, oldest first.
	// A user without statements yields an empty slice.
	ListByUser(ctx context.Context, userID string) ([]Statement, error)

	// Get returns one statement owned by userID, or nil if absent.
	Get(ctx context.Context, userID, statementID string) (*Statement, error)
}

// Stamp fills the id and creation time of a statement about to be stored.
// Store implementations call it from Append and AppendBatch.
func Stamp(st Statement, now time.Time) Statement {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now.UTC()
	}
	return st
}
