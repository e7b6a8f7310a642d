/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All domain error kinds in one place. Each kind has a stable code so the
  HTTP layer can map it without string matching.

ERROR CATEGORIES:
  1. Lookup errors - referenced user or statement does not exist
  2. Validation errors - malformed amount, type or description
  3. Invariant errors - debit would overdraw the balance

  Storage failures are NOT in this list. Stores wrap driver errors with
  fmt.Errorf("...: %w") and those surface as internal errors.

USAGE:
    if errors.Is(err, ledger.ErrInsufficientFunds) {
        var ife *ledger.InsufficientFundsError
        errors.As(err, &ife)
    }

SEE ALSO:
  - service.go: Raises these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/statement-ledger/users"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUserNotFound is returned when a referenced user id does not resolve.
	// It is the directory's own sentinel so both packages agree on it.
	ErrUserNotFound = users.ErrUserNotFound

	// ErrInvalidAmount is returned when an amount is missing, zero or negative.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrInvalidOperation is returned for an empty or unknown type, an empty
	// description, or a transfer to oneself.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrInsufficientFunds is returned when a debit would make the balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrStatementNotFound is returned when a statement id does not exist for the user.
	ErrStatementNotFound = errors.New("statement not found")
)

// Stable codes surfaced to API clients.
const (
	CodeUserNotFound      = "user_not_found"
	CodeInvalidAmount     = "invalid_amount"
	CodeInvalidOperation  = "invalid_operation"
	CodeInsufficientFunds = "insufficient_funds"
	CodeStatementNotFound = "statement_not_found"
	CodeInternal          = "internal_error"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError provides details about a balance shortage.
type InsufficientFundsError struct {
	UserID    string
	Available decimal.Decimal
	Requested decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s, requested %s, shortfall %s",
		e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// OperationError explains which field made an operation invalid.
type OperationError struct {
	Field  string
	Reason string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("invalid operation: %s %s", e.Field, e.Reason)
}

func (e *OperationError) Unwrap() error {
	return ErrInvalidOperation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidOperation) ||
		errors.Is(err, ErrInsufficientFunds)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrStatementNotFound)
}

// Code returns the stable code for a domain error, or CodeInternal.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUserNotFound):
		return CodeUserNotFound
	case errors.Is(err, ErrStatementNotFound):
		return CodeStatementNotFound
	case errors.Is(err, ErrInvalidAmount):
		return CodeInvalidAmount
	case errors.Is(err, ErrInvalidOperation):
		return CodeInvalidOperation
	case errors.Is(err, ErrInsufficientFunds):
		return CodeInsufficientFunds
	default:
		return CodeInternal
	}
}
