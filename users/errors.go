package users

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound is returned when a user id does not resolve.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidUser is returned when a required registration field is empty.
	ErrInvalidUser = errors.New("invalid user")

	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	// Both cases share one error so callers cannot probe which emails exist.
	ErrInvalidCredentials = errors.New("incorrect email or password")

	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = errors.New("invalid token")
)

// FieldError names the registration field that was rejected.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid user: %s is required", e.Field)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidUser
}
