// Package common defines shared constants and sentinel errors used across
// the upload service. Callers should use errors.Is / errors.As to match
// these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrInternal  = errors.New("internal error")
	ErrForbidden = errors.New("forbidden")

	// ErrNothingToCommit is returned when a commit request matches no
	// pending reservation: the keys were never reserved, already
	// committed, or already reclaimed by the cleanup sweeper.
	ErrNothingToCommit = errors.New("nothing to commit")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// ValidationError reports an input rejected before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// QuotaExceededError reports a rejected reservation or commit together with
// the numbers the caller needs to render a meaningful message.
type QuotaExceededError struct {
	TenantID       string
	UsedBytes      int64
	LimitBytes     int64
	RequestedBytes int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("storage quota exceeded for tenant %s: used %d + requested %d > limit %d",
		e.TenantID, e.UsedBytes, e.RequestedBytes, e.LimitBytes)
}

// ExternalStoreError wraps a blob-store failure with the operation and key
// context needed for manual reconciliation.
type ExternalStoreError struct {
	Op  string
	Key string
	Err error
}

func (e *ExternalStoreError) Error() string {
	return fmt.Sprintf("blob store %s failed for %q: %v", e.Op, e.Key, e.Err)
}

func (e *ExternalStoreError) Unwrap() error { return e.Err }
