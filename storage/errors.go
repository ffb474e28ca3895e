package storage

import "errors"

var (
	ErrNotFound        = errors.New("storage: not found")
	ErrInvalidIdentity = errors.New("storage: invalid identity")
	ErrMismatch        = errors.New("storage: content does not match identity")
	ErrImmutable       = errors.New("storage: immutable object mismatch")
	ErrReadOnly        = errors.New("storage: read-only store")
	ErrUnsupported     = errors.New("storage: algorithm not supported by backend")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err signals content that failed re-verification.
func IsValidation(err error) bool { return errors.Is(err, ErrMismatch) }
