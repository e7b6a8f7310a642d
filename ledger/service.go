/*
service.go - Statement creation and transfers

PURPOSE:
  The Service is the ONLY writer of the ledger. Every rule about what may be
  appended is enforced here, before the Store is touched.

CREATE STATEMENT FLOW:
  1. Resolve user            -> ErrUserNotFound
  2. amount > 0              -> ErrInvalidAmount
  3. type / description      -> ErrInvalidOperation
  4. lock user; for debits, balance - amount >= 0 -> InsufficientFundsError
  5. append, unlock, return the stored statement

TRANSFER FLOW:
  Same checks for both parties, then both users are locked in sorted id
  order and the transfer_sent / transfer_received pair is written with a
  single AppendBatch. There is no state where only one side exists.

REJECTIONS:
  A rejected request writes nothing. Rejections are logged, not recorded.

SEE ALSO:
  - locker.go: Per-user serialization
  - errors.go: Error kinds raised here
*/
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/statement-ledger/users"
)

// UserDirectory resolves the user a statement belongs to.
// Lookups return (nil, nil) when the id is unknown.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
}

// CreateStatementInput is a request to record one deposit or withdrawal.
type CreateStatementInput struct {
	UserID      string
	Type        OperationType
	Amount      decimal.Decimal
	Description string
}

// TransferInput is a request to move money between two users.
type TransferInput struct {
	SenderID    string
	ReceiverID  string
	Amount      decimal.Decimal
	Description string
}

// TransferResult holds both sides of a completed transfer.
type TransferResult struct {
	Sent     Statement
	Received Statement
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	users  UserDirectory
	store  Store
	ledger *Ledger
	locks  Locker
	log    zerolog.Logger
}

func NewService(dir UserDirectory, store Store, locks Locker, log zerolog.Logger) *Service {
	return &Service{
		users:  dir,
		store:  store,
		ledger: NewLedger(store),
		locks:  locks,
		log:    log.With().Str("component", "ledger").Logger(),
	}
}

// Ledger exposes the read side used by this service.
func (s *Service) Ledger() *Ledger { return s.ledger }

// CreateStatement validates and appends a deposit or withdrawal.
func (s *Service) CreateStatement(ctx context.Context, in CreateStatementInput) (Statement, error) {
	if err := s.resolveUser(ctx, in.UserID); err != nil {
		return Statement{}, s.rejected(in.UserID, in.Type, in.Amount, err)
	}
	if err := validateAmount(in.Amount); err != nil {
		return Statement{}, s.rejected(in.UserID, in.Type, in.Amount, err)
	}
	if err := validateDirectType(in.Type); err != nil {
		return Statement{}, s.rejected(in.UserID, in.Type, in.Amount, err)
	}
	if err := validateDescription(in.Description); err != nil {
		return Statement{}, s.rejected(in.UserID, in.Type, in.Amount, err)
	}

	unlock, err := s.lock(ctx, in.UserID)
	if err != nil {
		return Statement{}, err
	}
	defer unlock()

	if in.Type.IsDebit() {
		if err := s.ensureFunds(ctx, in.UserID, in.Amount); err != nil {
			return Statement{}, s.rejected(in.UserID, in.Type, in.Amount, err)
		}
	}

	st, err := s.store.Append(ctx, Statement{
		UserID:      in.UserID,
		Type:        in.Type,
		Amount:      in.Amount,
		Description: strings.TrimSpace(in.Description),
	})
	if err != nil {
		return Statement{}, err
	}

	s.log.Info().
		Str("user_id", st.UserID).
		Str("statement_id", st.ID).
		Str("type", string(st.Type)).
		Str("amount", st.Amount.String()).
		Msg("statement created")
	return st, nil
}

// Transfer writes a paired transfer_sent / transfer_received atomically.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if err := s.resolveUser(ctx, in.SenderID); err != nil {
		return TransferResult{}, s.rejected(in.SenderID, OpTransferSent, in.Amount, err)
	}
	if err := s.resolveUser(ctx, in.ReceiverID); err != nil {
		return TransferResult{}, s.rejected(in.SenderID, OpTransferSent, in.Amount, err)
	}
	if err := validateAmount(in.Amount); err != nil {
		return TransferResult{}, s.rejected(in.SenderID, OpTransferSent, in.Amount, err)
	}
	if in.SenderID == in.ReceiverID {
		err := &OperationError{Field: "receiver", Reason: "must differ from sender"}
		return TransferResult{}, s.rejected(in.SenderID, OpTransferSent, in.Amount, err)
	}
	if err := validateDescription(in.Description); err != nil {
		return TransferResult{}, s.rejected(in.SenderID, OpTransferSent, in.Amount, err)
	}

	unlock, err := s.lock(ctx, in.SenderID, in.ReceiverID)
	if err != nil {
		return TransferResult{}, err
	}
	defer unlock()

	if err := s.ensureFunds(ctx, in.SenderID, in.Amount); err != nil {
		return TransferResult{}, s.rejected(in.SenderID, OpTransferSent, in.Amount, err)
	}

	now := time.Now().UTC()
	desc := strings.TrimSpace(in.Description)
	stored, err := s.store.AppendBatch(ctx, []Statement{
		{
			UserID:      in.SenderID,
			Type:        OpTransferSent,
			Amount:      in.Amount,
			Description: desc,
			CreatedAt:   now,
		},
		{
			UserID:      in.ReceiverID,
			Type:        OpTransferReceived,
			Amount:      in.Amount,
			Description: desc,
			SenderID:    in.SenderID,
			CreatedAt:   now,
		},
	})
	if err != nil {
		return TransferResult{}, err
	}
	if len(stored) != 2 {
		return TransferResult{}, fmt.Errorf("transfer stored %d statements, want 2", len(stored))
	}

	s.log.Info().
		Str("sender_id", in.SenderID).
		Str("receiver_id", in.ReceiverID).
		Str("amount", in.Amount.String()).
		Msg("transfer completed")
	return TransferResult{Sent: stored[0], Received: stored[1]}, nil
}

// GetBalance returns the balance of an existing user.
func (s *Service) GetBalance(ctx context.Context, userID string, withStatements bool) (BalanceResult, error) {
	if err := s.resolveUser(ctx, userID); err != nil {
		return BalanceResult{}, err
	}
	return s.ledger.GetBalance(ctx, userID, withStatements)
}

// GetStatement returns one statement owned by userID.
func (s *Service) GetStatement(ctx context.Context, userID, statementID string) (Statement, error) {
	if err := s.resolveUser(ctx, userID); err != nil {
		return Statement{}, err
	}
	st, err := s.store.Get(ctx, userID, statementID)
	if err != nil {
		return Statement{}, err
	}
	if st == nil {
		return Statement{}, ErrStatementNotFound
	}
	return *st, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) resolveUser(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrUserNotFound
	}
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to resolve user: %w", err)
	}
	if u == nil {
		return ErrUserNotFound
	}
	return nil
}

func (s *Service) lock(ctx context.Context, ids ...string) (func(), error) {
	unlock, err := s.locks.Lock(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire ledger lock: %w", err)
	}
	return unlock, nil
}

// ensureFunds must run while the user's lock is held.
func (s *Service) ensureFunds(ctx context.Context, userID string, amount decimal.Decimal) error {
	bal, err := s.ledger.GetBalance(ctx, userID, false)
	if err != nil {
		return err
	}
	if remaining := bal.Balance.Sub(amount); remaining.IsNegative() {
		return &InsufficientFundsError{
			UserID:    userID,
			Available: bal.Balance,
			Requested: amount,
			Shortfall: remaining.Neg(),
		}
	}
	return nil
}

// rejected logs domain rejections and passes every error through unchanged.
func (s *Service) rejected(userID string, typ OperationType, amount decimal.Decimal, err error) error {
	if IsClientError(err) || IsNotFound(err) {
		s.log.Warn().
			Str("user_id", userID).
			Str("type", string(typ)).
			Str("amount", amount.String()).
			Str("code", Code(err)).
			Msg("statement rejected")
	}
	return err
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// validateDirectType accepts the types a caller may create on its own.
// Transfer types only come out of Transfer.
func validateDirectType(t OperationType) error {
	switch t {
	case OpDeposit, OpWithdraw:
		return nil
	case OpTransferSent, OpTransferReceived:
		return &OperationError{Field: "type", Reason: "must be created through a transfer"}
	case "":
		return &OperationError{Field: "type", Reason: "is required"}
	default:
		return &OperationError{Field: "type", Reason: fmt.Sprintf("%q is not supported", string(t))}
	}
}

func validateDescription(desc string) error {
	if strings.TrimSpace(desc) == "" {
		return &OperationError{Field: "description", Reason: "is required"}
	}
	return nil
}
