package engine

import (
	"errors"
	"fmt"

	"taskroute/internal/archive"
	"taskroute/internal/repo"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotFound         = repo.ErrNotFound
	ErrAccessDenied     = errors.New("access denied")
	ErrConflict         = errors.New("conflict")
	ErrStorage          = errors.New("storage failure")
	// ErrCannotRestore marks an archive whose operational row was purged.
	ErrCannotRestore = errors.New("task was permanently deleted and cannot be restored")
)

// ValidationError reports malformed input on one field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AccessDeniedError reports an authenticated user lacking a capability.
type AccessDeniedError struct {
	UserID     string
	Capability string
}

func (e AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s requires %s", e.UserID, e.Capability)
}

func (e AccessDeniedError) Is(target error) bool { return target == ErrAccessDenied }

// ConflictError reports an operation that does not fit the current state.
type ConflictError struct {
	Reason string
	Err    error
}

func (e ConflictError) Error() string {
	if e.Reason == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}

func (e ConflictError) Unwrap() error        { return e.Err }
func (e ConflictError) Is(target error) bool { return target == ErrConflict }

// StorageError wraps a failure of the operational or archive store.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error        { return e.Err }
func (e StorageError) Is(target error) bool { return target == ErrStorage }

// classify leaves taxonomy errors untouched and turns anything else coming
// out of a store into a StorageError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, ErrNotAuthenticated),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAccessDenied),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrStorage):
		return err
	case errors.Is(err, archive.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, repo.ErrAlreadyExists):
		return ConflictError{Reason: err.Error(), Err: err}
	}
	return StorageError{Op: op, Err: err}
}

func denied(userID, capability string) error {
	return AccessDeniedError{UserID: userID, Capability: capability}
}
