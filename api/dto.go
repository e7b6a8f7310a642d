/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

AMOUNTS:
  Requests decode amounts into decimal.Decimal (number or quoted string).
  Responses render them as JSON numbers holding the exact decimal digits,
  never rounded through float64. A missing amount decodes to zero and is
  rejected by the ledger as invalid_amount.

FIXED FIELD NAMES:
  BalanceDTO.balance and BalanceDTO.statement are consumed by existing
  clients and must not be renamed.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/statement-ledger/ledger"
	"github.com/warp/statement-ledger/users"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// UserDTO represents a user in API responses. No credential fields.
type UserDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// CreateUserRequest is the request to register a user.
type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionRequest is the request to authenticate.
type SessionRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse carries the issued bearer token.
type SessionResponse struct {
	User  UserDTO `json:"user"`
	Token string  `json:"token"`
}

// StatementDTO represents a ledger entry.
type StatementDTO struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	SenderID    string `json:"sender_id,omitempty"` // transfer_received only
	Type        string `json:"type"`
	Amount      Amount `json:"amount"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// OperationRequest is the body of the deposit and withdraw endpoints.
type OperationRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// CreateStatementRequest is the body of the generic statement endpoint.
type CreateStatementRequest struct {
	UserID      string          `json:"user_id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// TransferRequest is the body of the transfer endpoint.
type TransferRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// TransferResponseDTO holds both sides of a transfer.
type TransferResponseDTO struct {
	Sent     StatementDTO `json:"sent"`
	Received StatementDTO `json:"received"`
}

// BalanceDTO is the balance query response.
type BalanceDTO struct {
	Statement []StatementDTO `json:"statement"`
	Balance   Amount         `json:"balance"`
}

// Amount is a decimal written as an unquoted JSON number with every digit
// kept. Decoding accepts numbers and quoted strings.
type Amount struct {
	decimal.Decimal
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toUserDTO(u users.User) UserDTO {
	return UserDTO{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: u.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toStatementDTO(st ledger.Statement) StatementDTO {
	created := st.CreatedAt.UTC().Format(time.RFC3339)
	dto := StatementDTO{
		ID:          st.ID,
		UserID:      st.UserID,
		Type:        string(st.Type),
		Amount:      Amount{st.Amount},
		Description: st.Description,
		CreatedAt:   created,
		UpdatedAt:   created, // statements are never updated
	}
	if st.Type == ledger.OpTransferReceived {
		dto.SenderID = st.SenderID
	}
	return dto
}

func toStatementDTOs(sts []ledger.Statement) []StatementDTO {
	dtos := make([]StatementDTO, len(sts))
	for i, st := range sts {
		dtos[i] = toStatementDTO(st)
	}
	return dtos
}
