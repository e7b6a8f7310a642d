/*
Package users is the User Directory: identity records, registration,
authentication and profile lookup.

PURPOSE:
  The ledger only needs to know that a user id resolves. Everything else
  about users (credentials, tokens, uniqueness of email) lives here so the
  ledger can treat a user as an opaque reference.

KEY TYPES:
  - User: identity record with a bcrypt password hash
  - Directory: persistence interface (memory, sqlite, gorm implementations)
  - Service: register / authenticate / profile use cases
  - TokenIssuer: JWT issuance and verification

SEE ALSO:
  - ledger/service.go: Resolves users through Directory.FindByID
  - api/middleware.go: Verifies bearer tokens
*/
package users

import (
	"context"
	"time"
)

// User is an identity record. PasswordHash is never serialized to clients.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Directory stores users. Lookups return (nil, nil) when nothing matches.
type Directory interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Create persists a new user. Returns ErrEmailTaken if the email exists.
	Create(ctx context.Context, u User) error
}
