package entity

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Capsule errors
	ErrCapsuleNotFound = errors.New("capsule not found")
	ErrCapsuleLocked   = errors.New("this capsule is still locked")
	ErrShareExpired    = errors.New("this share link has expired")

	// Scheduled message errors
	ErrMessageNotFound  = errors.New("scheduled message not found")
	ErrMessageDelivered = errors.New("cannot delete a delivered message")

	// User errors
	ErrUserNotFound       = errors.New("no user found with that email")
	ErrUserAlreadyExists  = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")

	// General errors
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("not authorized")
)

// ValidationError describes rejected client input. It matches ErrInvalidInput.
type ValidationError struct {
	Reason string
}

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// LockedError is returned for share-link access before the unlock date.
type LockedError struct {
	UnlockDate time.Time
}

func (e *LockedError) Error() string { return ErrCapsuleLocked.Error() }

func (e *LockedError) Unwrap() error { return ErrCapsuleLocked }
