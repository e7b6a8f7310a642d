/*
ledger.go - Read side of the append-only statement log

PURPOSE:
  The Ledger is the read model over a Store. Balance is computed by
  replaying statements every time it is asked for; there is no stored
  balance column that could drift from the history.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. DERIVED BALANCE: balance = credits - debits over all statements
  3. STABLE READS: two reads without a write in between are identical

SEE ALSO:
  - store.go: Low-level persistence interface
  - balance.go: The aggregation itself
*/
package ledger

import (
	"context"
)

// Ledger answers balance and history queries.
type Ledger struct {
	Store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store}
}

// Statements returns all statements of a user, oldest first.
func (l *Ledger) Statements(ctx context.Context, userID string) ([]Statement, error) {
	sts, err := l.Store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sts == nil {
		sts = []Statement{}
	}
	return sts, nil
}

// GetBalance computes the current balance of a user. When withStatements is
// set, the statements the balance was computed from are returned as well.
func (l *Ledger) GetBalance(ctx context.Context, userID string, withStatements bool) (BalanceResult, error) {
	sts, err := l.Statements(ctx, userID)
	if err != nil {
		return BalanceResult{}, err
	}

	result := BalanceResult{UserID: userID, Balance: Calculate(sts)}
	if withStatements {
		result.Statements = sts
	}
	return result, nil
}
