package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session layer
var (
	// Transport errors
	ErrTransport = errors.New("transport error")
	ErrTimeout   = errors.New("server did not respond in time")

	// Authentication errors
	ErrAuthExpired       = errors.New("authentication expired")
	ErrAuthInvalid       = errors.New("authentication invalid")
	ErrCredentialAbsent  = errors.New("platform credential absent")
	ErrIdentityMismatch  = errors.New("stored identity does not match platform user")
	ErrNoRefreshToken    = errors.New("no refresh token")
	ErrInvalidCredential = errors.New("invalid platform credential")

	// Request errors
	ErrValidation = errors.New("validation failed")
	ErrServer     = errors.New("server error")

	// Storage errors
	ErrInvalidKey     = errors.New("invalid storage key")
	ErrValueTooLarge  = errors.New("storage value too large")
	ErrStorageTimeout = errors.New("storage timeout")
	ErrNoBackend      = errors.New("no storage backend for platform")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
