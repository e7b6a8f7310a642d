/*
handlers.go - HTTP API handlers for the statement ledger

PURPOSE:
  Exposes the ledger and the user directory via REST. Handles HTTP
  request/response and JSON, and delegates every rule to the domain
  packages.

ENDPOINTS:
  Users:
    POST   /api/v1/users                          Register
    POST   /api/v1/sessions                       Authenticate, returns token
    GET    /api/v1/profile                        Show caller's profile

  Statements (bearer token required):
    GET    /api/v1/statements/balance             Balance + statements
    POST   /api/v1/statements/deposit             Deposit
    POST   /api/v1/statements/withdraw            Withdraw
    POST   /api/v1/statements/transfers/{user_id} Transfer to user_id
    POST   /api/v1/statements                     Generic create
    GET    /api/v1/statements/{statement_id}      One statement

REQUEST FLOW:
  1. Parse HTTP request
  2. Resolve the caller from the verified token
  3. Call domain logic
  4. Serialize response
  5. Map errors

ERROR HANDLING:
  Errors are returned as JSON {error, code, details} with status:
  - 400: invalid_amount, invalid_operation, insufficient_funds,
         invalid_user, email_taken, invalid body
  - 401: missing or invalid token, incorrect credentials
  - 403: acting on another user's account
  - 404: user_not_found, statement_not_found
  - 500: internal_error (storage faults; never a domain kind)

SEE ALSO:
  - dto.go: Request/response data structures
  - middleware.go: Bearer token verification
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/warp/statement-ledger/ledger"
	"github.com/warp/statement-ledger/users"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger *ledger.Service
	Users  *users.Service
	Tokens *users.TokenIssuer

	// Health is optional; nil means the store has nothing to ping.
	Health Pinger

	log zerolog.Logger
}

// NewHandler creates a new handler.
func NewHandler(ls *ledger.Service, us *users.Service, tokens *users.TokenIssuer, log zerolog.Logger) *Handler {
	return &Handler{
		Ledger: ls,
		Users:  us,
		Tokens: tokens,
		log:    log.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// CreateUser registers a new user.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeBody(w, r, &req) {
		return
	}

	u, err := h.Users.Register(r.Context(), users.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

// CreateSession authenticates a user and returns a bearer token.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	session, err := h.Users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		User:  toUserDTO(session.User),
		Token: session.Token,
	})
}

// ShowProfile returns the caller's profile.
func (h *Handler) ShowProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.Users.Profile(r.Context(), callerID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// =============================================================================
// STATEMENT HANDLERS
// =============================================================================

// GetBalance returns the caller's balance and statements.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	result, err := h.Ledger.GetBalance(r.Context(), callerID(r), true)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		Statement: toStatementDTOs(result.Statements),
		Balance:   Amount{result.Balance},
	})
}

// Deposit records a deposit for the caller.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.createOperation(w, r, ledger.OpDeposit)
}

// Withdraw records a withdrawal for the caller.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.createOperation(w, r, ledger.OpWithdraw)
}

func (h *Handler) createOperation(w http.ResponseWriter, r *http.Request, typ ledger.OperationType) {
	var req OperationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	st, err := h.Ledger.CreateStatement(r.Context(), ledger.CreateStatementInput{
		UserID:      callerID(r),
		Type:        typ,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toStatementDTO(st))
}

// CreateStatement is the generic form: {user_id, type, amount, description}.
// user_id defaults to the caller and may not name anyone else.
func (h *Handler) CreateStatement(w http.ResponseWriter, r *http.Request) {
	var req CreateStatementRequest
	if !decodeBody(w, r, &req) {
		return
	}

	caller := callerID(r)
	if req.UserID == "" {
		req.UserID = caller
	}
	if req.UserID != caller {
		writeError(w, http.StatusForbidden, "Cannot record statements for another user", "forbidden", nil)
		return
	}

	st, err := h.Ledger.CreateStatement(r.Context(), ledger.CreateStatementInput{
		UserID:      req.UserID,
		Type:        ledger.OperationType(req.Type),
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toStatementDTO(st))
}

// Transfer moves money from the caller to the user in the path.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.Ledger.Transfer(r.Context(), ledger.TransferInput{
		SenderID:    callerID(r),
		ReceiverID:  chi.URLParam(r, "user_id"),
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, TransferResponseDTO{
		Sent:     toStatementDTO(result.Sent),
		Received: toStatementDTO(result.Received),
	})
}

// GetStatement returns one of the caller's statements.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	st, err := h.Ledger.GetStatement(r.Context(), callerID(r), chi.URLParam(r, "statement_id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(st))
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", "store_unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "invalid_body", err)
		return false
	}
	return true
}

// writeDomainError maps domain errors to status codes. Anything it does not
// recognize is an infrastructure failure and is logged, not echoed.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, users.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Incorrect email or password", "invalid_credentials", nil)
	case errors.Is(err, users.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, "Email already registered", "email_taken", nil)
	case errors.Is(err, users.ErrInvalidUser):
		writeError(w, http.StatusBadRequest, "Invalid user", "invalid_user", err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), ledger.Code(err), nil)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), ledger.Code(err), nil)
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error", ledger.CodeInternal, nil)
	}
}
