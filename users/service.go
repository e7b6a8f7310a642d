/*
service.go - Register, authenticate and show-profile use cases

RULES:
  - name, email and password are all required on registration
  - email is unique (case-insensitive)
  - passwords are stored as bcrypt hashes, never in clear
  - authentication failures never reveal whether the email exists
*/
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// RegisterInput is the data needed to create a user.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Session is the result of a successful authentication.
type Session struct {
	User  User
	Token string
}

type Service struct {
	dir    Directory
	tokens *TokenIssuer
	log    zerolog.Logger

	// bcrypt cost; tests lower it to keep runs fast.
	hashCost int
}

func NewService(dir Directory, tokens *TokenIssuer, log zerolog.Logger) *Service {
	return &Service{
		dir:      dir,
		tokens:   tokens,
		log:      log.With().Str("component", "users").Logger(),
		hashCost: bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost.
func (s *Service) WithHashCost(cost int) *Service {
	s.hashCost = cost
	return s
}

// Register creates a user.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)

	switch {
	case in.Name == "":
		return User{}, &FieldError{Field: "name"}
	case in.Email == "":
		return User{}, &FieldError{Field: "email"}
	case in.Password == "":
		return User{}, &FieldError{Field: "password"}
	}

	existing, err := s.dir.FindByEmail(ctx, in.Email)
	if err != nil {
		return User{}, err
	}
	if existing != nil {
		return User{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	u := User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.dir.Create(ctx, u); err != nil {
		return User{}, err
	}

	s.log.Info().Str("user_id", u.ID).Msg("user registered")
	return u, nil
}

// Authenticate checks credentials and issues a token.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	u, err := s.dir.FindByEmail(ctx, email)
	if err != nil {
		return Session{}, err
	}
	if u == nil {
		return Session{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("failed to compare password: %w", err)
	}

	token, err := s.tokens.Issue(*u)
	if err != nil {
		return Session{}, err
	}
	return Session{User: *u, Token: token}, nil
}

// Profile returns the user with the given id.
func (s *Service) Profile(ctx context.Context, id string) (User, error) {
	u, err := s.dir.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if u == nil {
		return User{}, ErrUserNotFound
	}
	return *u, nil
}
