package users_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/statement-ledger/users"
)

func newTestService(t *testing.T) (*users.Service, *users.TokenIssuer) {
	t.Helper()
	tokens := users.NewTokenIssuer("test-secret", time.Hour)
	svc := users.NewService(users.NewMemory(), tokens, zerolog.Nop()).WithHashCost(bcrypt.MinCost)
	return svc, tokens
}

func register(t *testing.T, svc *users.Service) users.User {
	t.Helper()
	u, err := svc.Register(context.Background(), users.RegisterInput{
		Name:     "John Doe",
		Email:    "johndoe@example.com",
		Password: "123456",
	})
	require.NoError(t, err)
	return u
}

func TestRegister_CreatesUser(t *testing.T) {
	svc, _ := newTestService(t)

	u := register(t, svc)

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "John Doe", u.Name)
	assert.Equal(t, "johndoe@example.com", u.Email)
	assert.NotEqual(t, "123456", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("123456")))
	assert.False(t, u.CreatedAt.IsZero())
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc)

	_, err := svc.Register(context.Background(), users.RegisterInput{
		Name:     "Other",
		Email:    "JohnDoe@Example.com",
		Password: "abcdef",
	})
	assert.ErrorIs(t, err, users.ErrEmailTaken)
}

func TestRegister_MissingFields(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		in    users.RegisterInput
		field string
	}{
		{users.RegisterInput{Email: "a@b.c", Password: "x"}, "name"},
		{users.RegisterInput{Name: "A", Email: "  ", Password: "x"}, "email"},
		{users.RegisterInput{Name: "A", Email: "a@b.c"}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.in)
			assert.ErrorIs(t, err, users.ErrInvalidUser)

			var fe *users.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	svc, tokens := newTestService(t)
	u := register(t, svc)
	ctx := context.Background()

	// GIVEN: Correct credentials
	session, err := svc.Authenticate(ctx, "johndoe@example.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, u.ID, session.User.ID)

	// THEN: The token resolves back to the user
	claims, err := tokens.Verify(session.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Subject)

	// Wrong password and unknown email look the same
	_, err = svc.Authenticate(ctx, "johndoe@example.com", "wrong")
	assert.ErrorIs(t, err, users.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody@example.com", "123456")
	assert.ErrorIs(t, err, users.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "", "")
	assert.ErrorIs(t, err, users.ErrInvalidCredentials)
}

func TestProfile(t *testing.T) {
	svc, _ := newTestService(t)
	u := register(t, svc)

	got, err := svc.Profile(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	_, err = svc.Profile(context.Background(), "ghost")
	assert.ErrorIs(t, err, users.ErrUserNotFound)
}
