/*
handlers_test.go - HTTP tests for the API

Tests for:
- Registration, sessions and profile
- Bearer token enforcement
- Deposit, withdraw, generic create, transfer and balance
- Error status and code mapping
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/statement-ledger/api"
	"github.com/warp/statement-ledger/ledger"
	"github.com/warp/statement-ledger/ledger/store"
	"github.com/warp/statement-ledger/store/sqlite"
	"github.com/warp/statement-ledger/users"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	t      *testing.T
	router http.Handler
	h      *api.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return newTestServerWith(t, db, db)
}

func newTestServerWith(t *testing.T, statements ledger.Store, dir users.Directory) *testServer {
	t.Helper()

	log := zerolog.Nop()
	tokens := users.NewTokenIssuer("test-secret", time.Hour)
	us := users.NewService(dir, tokens, log).WithHashCost(bcrypt.MinCost)
	ls := ledger.NewService(dir, statements, ledger.NewKeyedLocker(), log)

	h := api.NewHandler(ls, us, tokens, log)
	return &testServer{t: t, router: api.NewRouter(h, nil), h: h}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// signUp registers a user and returns its id and bearer token.
func (s *testServer) signUp(name, email string) (string, string) {
	s.t.Helper()

	rec := s.do(http.MethodPost, "/api/v1/users", "", map[string]string{
		"name": name, "email": email, "password": "123456",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	var u api.UserDTO
	decode(s.t, rec, &u)

	rec = s.do(http.MethodPost, "/api/v1/sessions", "", map[string]string{
		"email": email, "password": "123456",
	})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var session api.SessionResponse
	decode(s.t, rec, &session)

	return u.ID, session.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp api.ErrorResponse
	decode(t, rec, &resp)
	return resp.Code
}

func (s *testServer) balance(token string) api.BalanceDTO {
	s.t.Helper()
	rec := s.do(http.MethodGet, "/api/v1/statements/balance", token, nil)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var b api.BalanceDTO
	decode(s.t, rec, &b)
	return b
}

// =============================================================================
// USERS
// =============================================================================

func TestCreateUser(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodPost, "/api/v1/users", "", map[string]string{
		"name": "John Doe", "email": "johndoe@example.com", "password": "123456",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var u api.UserDTO
	decode(t, rec, &u)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "John Doe", u.Name)
	assert.NotContains(t, rec.Body.String(), "password")

	// Same email again
	rec = srv.do(http.MethodPost, "/api/v1/users", "", map[string]string{
		"name": "John", "email": "johndoe@example.com", "password": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email_taken", errorCode(t, rec))

	// Missing field
	rec = srv.do(http.MethodPost, "/api/v1/users", "", map[string]string{"email": "a@b.c"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_user", errorCode(t, rec))
}

func TestCreateSession_WrongCredentials(t *testing.T) {
	srv := newTestServer(t)
	srv.signUp("John Doe", "johndoe@example.com")

	rec := srv.do(http.MethodPost, "/api/v1/sessions", "", map[string]string{
		"email": "johndoe@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", errorCode(t, rec))

	rec = srv.do(http.MethodPost, "/api/v1/sessions", "", map[string]string{
		"email": "nobody@example.com", "password": "123456",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestShowProfile(t *testing.T) {
	srv := newTestServer(t)
	id, token := srv.signUp("John Doe", "johndoe@example.com")

	rec := srv.do(http.MethodGet, "/api/v1/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var u api.UserDTO
	decode(t, rec, &u)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "johndoe@example.com", u.Email)
}

func TestAuth_MissingAndInvalidToken(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/api/v1/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_missing", errorCode(t, rec))

	rec = srv.do(http.MethodGet, "/api/v1/statements/balance", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_invalid", errorCode(t, rec))
}

func TestAuth_TokenForDeletedUser(t *testing.T) {
	// A valid token whose subject the directory no longer knows
	srv := newTestServer(t)
	token, err := srv.h.Tokens.Issue(users.User{ID: "ghost", Email: "ghost@example.com"})
	require.NoError(t, err)

	rec := srv.do(http.MethodGet, "/api/v1/statements/balance", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ledger.CodeUserNotFound, errorCode(t, rec))
}

// =============================================================================
// STATEMENTS
// =============================================================================

func TestDepositWithdraw_Balance(t *testing.T) {
	srv := newTestServer(t)
	_, token := srv.signUp("John Doe", "johndoe@example.com")

	// GIVEN: A deposit of 1500
	rec := srv.do(http.MethodPost, "/api/v1/statements/deposit", token, map[string]any{
		"amount": 1500, "description": "salary",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var dep api.StatementDTO
	decode(t, rec, &dep)
	assert.Equal(t, "deposit", dep.Type)
	assert.Equal(t, "1500", dep.Amount.String())

	// WHEN: Withdrawing 1000
	rec = srv.do(http.MethodPost, "/api/v1/statements/withdraw", token, map[string]any{
		"amount": "1000", "description": "rent",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: Balance is 500 with both statements in order
	b := srv.balance(token)
	assert.Equal(t, "500", b.Balance.String())
	require.Len(t, b.Statement, 2)
	assert.Equal(t, "deposit", b.Statement[0].Type)
	assert.Equal(t, "withdraw", b.Statement[1].Type)
}

func TestBalance_KeepsEveryDigit(t *testing.T) {
	srv := newTestServer(t)
	_, token := srv.signUp("John Doe", "johndoe@example.com")

	// GIVEN: A deposit above 2^53 with cents
	rec := srv.do(http.MethodPost, "/api/v1/statements/deposit", token, map[string]any{
		"amount": "9007199254740993.01", "description": "x",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"amount":9007199254740993.01`)

	// THEN: The balance is written as an exact JSON number
	rec = srv.do(http.MethodGet, "/api/v1/statements/balance", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance":9007199254740993.01`)

	var b api.BalanceDTO
	decode(t, rec, &b)
	assert.Equal(t, "9007199254740993.01", b.Balance.String())
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	srv := newTestServer(t)
	_, token := srv.signUp("John Doe", "johndoe@example.com")

	rec := srv.do(http.MethodPost, "/api/v1/statements/withdraw", token, map[string]any{
		"amount": 50000000, "description": "too much",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ledger.CodeInsufficientFunds, errorCode(t, rec))

	b := srv.balance(token)
	assert.Equal(t, "0", b.Balance.String())
	assert.NotNil(t, b.Statement)
	assert.Empty(t, b.Statement)
}

func TestCreateStatement_Validation(t *testing.T) {
	srv := newTestServer(t)
	_, token := srv.signUp("John Doe", "johndoe@example.com")

	tests := []struct {
		name string
		path string
		body any
		code string
	}{
		{"zero amount", "/api/v1/statements/deposit", map[string]any{"amount": 0, "description": "x"}, ledger.CodeInvalidAmount},
		{"negative amount", "/api/v1/statements/withdraw", map[string]any{"amount": -500, "description": "x"}, ledger.CodeInvalidAmount},
		{"missing amount", "/api/v1/statements/deposit", map[string]any{"description": "x"}, ledger.CodeInvalidAmount},
		{"missing description", "/api/v1/statements/deposit", map[string]any{"amount": 10}, ledger.CodeInvalidOperation},
		{"unknown type", "/api/v1/statements", map[string]any{"type": "refund", "amount": 10, "description": "x"}, ledger.CodeInvalidOperation},
		{"transfer type", "/api/v1/statements", map[string]any{"type": "transfer_received", "amount": 10, "description": "x"}, ledger.CodeInvalidOperation},
		{"malformed body", "/api/v1/statements/deposit", "{", "invalid_body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(http.MethodPost, tt.path, token, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	assert.Empty(t, srv.balance(token).Statement)
}

func TestCreateStatement_Generic(t *testing.T) {
	srv := newTestServer(t)
	id, token := srv.signUp("John Doe", "johndoe@example.com")
	otherID, _ := srv.signUp("Jane Doe", "janedoe@example.com")

	// Own account, explicit and implicit user_id
	rec := srv.do(http.MethodPost, "/api/v1/statements", token, map[string]any{
		"user_id": id, "type": "deposit", "amount": 1000, "description": "x",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = srv.do(http.MethodPost, "/api/v1/statements", token, map[string]any{
		"type": "withdraw", "amount": 999, "description": "x",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "1", srv.balance(token).Balance.String())

	// Someone else's account
	rec = srv.do(http.MethodPost, "/api/v1/statements", token, map[string]any{
		"user_id": otherID, "type": "deposit", "amount": 10, "description": "x",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorCode(t, rec))
}

func TestTransfer(t *testing.T) {
	srv := newTestServer(t)
	aliceID, alice := srv.signUp("Alice", "alice@example.com")
	bobID, bob := srv.signUp("Bob", "bob@example.com")

	rec := srv.do(http.MethodPost, "/api/v1/statements/deposit", alice, map[string]any{"amount": 1000, "description": "x"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: Alice sends 250 to Bob
	rec = srv.do(http.MethodPost, "/api/v1/statements/transfers/"+bobID, alice, map[string]any{
		"amount": 250, "description": "dinner",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var tr api.TransferResponseDTO
	decode(t, rec, &tr)
	assert.Equal(t, "transfer_sent", tr.Sent.Type)
	assert.Empty(t, tr.Sent.SenderID)
	assert.Equal(t, "transfer_received", tr.Received.Type)
	assert.Equal(t, aliceID, tr.Received.SenderID)
	assert.Equal(t, bobID, tr.Received.UserID)

	// THEN: Both balances moved
	assert.Equal(t, "750", srv.balance(alice).Balance.String())
	bobBalance := srv.balance(bob)
	assert.Equal(t, "250", bobBalance.Balance.String())
	require.Len(t, bobBalance.Statement, 1)
	assert.Equal(t, aliceID, bobBalance.Statement[0].SenderID)

	// Rejections
	rec = srv.do(http.MethodPost, "/api/v1/statements/transfers/"+bobID, alice, map[string]any{"amount": 751, "description": "x"})
	assert.Equal(t, ledger.CodeInsufficientFunds, errorCode(t, rec))
	rec = srv.do(http.MethodPost, "/api/v1/statements/transfers/ghost", alice, map[string]any{"amount": 1, "description": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = srv.do(http.MethodPost, "/api/v1/statements/transfers/"+aliceID, alice, map[string]any{"amount": 1, "description": "x"})
	assert.Equal(t, ledger.CodeInvalidOperation, errorCode(t, rec))

	assert.Equal(t, "750", srv.balance(alice).Balance.String())
}

func TestGetStatement(t *testing.T) {
	srv := newTestServer(t)
	_, alice := srv.signUp("Alice", "alice@example.com")
	_, bob := srv.signUp("Bob", "bob@example.com")

	rec := srv.do(http.MethodPost, "/api/v1/statements/deposit", alice, map[string]any{"amount": 12.5, "description": "x"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created api.StatementDTO
	decode(t, rec, &created)

	rec = srv.do(http.MethodGet, "/api/v1/statements/"+created.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got api.StatementDTO
	decode(t, rec, &got)
	assert.Equal(t, created, got)
	assert.Equal(t, "12.5", got.Amount.String())

	// Bob cannot read Alice's statement
	rec = srv.do(http.MethodGet, "/api/v1/statements/"+created.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ledger.CodeStatementNotFound, errorCode(t, rec))
}

func TestWithdraw_Concurrent(t *testing.T) {
	srv := newTestServer(t)
	_, token := srv.signUp("John Doe", "johndoe@example.com")
	rec := srv.do(http.MethodPost, "/api/v1/statements/deposit", token, map[string]any{"amount": 1000, "description": "x"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = srv.do(http.MethodPost, "/api/v1/statements/withdraw", token, map[string]any{"amount": 600, "description": "x"}).Code
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusCreated, http.StatusBadRequest}, codes)
	assert.Equal(t, "400", srv.balance(token).Balance.String())
}

// =============================================================================
// INFRASTRUCTURE
// =============================================================================

type brokenStore struct{ ledger.Store }

func (brokenStore) ListByUser(context.Context, string) ([]ledger.Statement, error) {
	return nil, errors.New("connection reset")
}

func TestStorageFault_Is500(t *testing.T) {
	srv := newTestServerWith(t, brokenStore{store.NewMemory()}, users.NewMemory())
	_, token := srv.signUp("John Doe", "johndoe@example.com")

	rec := srv.do(http.MethodGet, "/api/v1/statements/balance", token, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ledger.CodeInternal, errorCode(t, rec))
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	srv.h.Health = pinger{err: errors.New("down")}
	rec = srv.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
