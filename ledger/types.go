/*
Package ledger provides the statement ledger and balance-invariant engine.

PURPOSE:
  This package owns every rule about money moving in or out of a user's
  account. Statements are appended, never edited. Balance is never stored;
  it is always derived by aggregating a user's statements.

KEY CONCEPTS IN THIS FILE (types.go):
  - OperationType: deposit, withdraw, transfer_sent, transfer_received
  - Statement: An immutable ledger entry recording one monetary movement
  - Amounts: decimal.Decimal in the smallest currency unit

INVARIANTS:
  1. Immutability: Statements are never modified or deleted
  2. Positive amounts: Every statement carries amount > 0
  3. Non-negative balance: A debit that would overdraw is rejected up front
  4. Precision: decimal.Decimal avoids floating-point drift

USAGE:
  svc := ledger.NewService(users, store, ledger.NewKeyedLocker(), log)
  st, err := svc.CreateStatement(ctx, ledger.CreateStatementInput{
      UserID:      "0b9d...",
      Type:        ledger.OpDeposit,
      Amount:      decimal.NewFromInt(1000),
      Description: "Salary",
  })

SEE ALSO:
  - balance.go: Balance calculation from statements
  - store.go: Statement persistence interface
  - service.go: Statement creation and transfers
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// OPERATION TYPE
// =============================================================================

type OperationType string

const (
	OpDeposit          OperationType = "deposit"
	OpWithdraw         OperationType = "withdraw"
	OpTransferSent     OperationType = "transfer_sent"
	OpTransferReceived OperationType = "transfer_received"
)

// ParseOperationType maps a wire value onto a known type.
func ParseOperationType(s string) (OperationType, bool) {
	switch t := OperationType(s); t {
	case OpDeposit, OpWithdraw, OpTransferSent, OpTransferReceived:
		return t, true
	}
	return "", false
}

func (t OperationType) IsValid() bool {
	_, ok := ParseOperationType(string(t))
	return ok
}

// IsCredit reports whether the type increases balance.
func (t OperationType) IsCredit() bool { return t == OpDeposit || t == OpTransferReceived }

// IsDebit reports whether the type decreases balance.
func (t OperationType) IsDebit() bool { return t == OpWithdraw || t == OpTransferSent }

// =============================================================================
// STATEMENT - Immutable ledger entry
// =============================================================================

type Statement struct {
	ID          string
	UserID      string
	Type        OperationType
	Amount      decimal.Decimal
	Description string

	// SenderID is set only on transfer_received entries.
	SenderID string

	CreatedAt time.Time
}

// Signed returns the amount with the sign it contributes to the balance.
func (s Statement) Signed() decimal.Decimal {
	if s.Type.IsDebit() {
		return s.Amount.Neg()
	}
	if s.Type.IsCredit() {
		return s.Amount
	}
	return decimal.Zero
}

// =============================================================================
// BALANCE RESULT
// =============================================================================

// BalanceResult is the answer to "how much does this user have?".
type BalanceResult struct {
	UserID     string
	Balance    decimal.Decimal
	Statements []Statement // nil unless requested
}
