// Package coreerrors centralizes the sentinel error taxonomy shared across
// the core, so callers can classify failures with errors.Is regardless of
// which package raised them.
package coreerrors

import "errors"

var (
	ErrSessionNotFound             = errors.New("session not found")
	ErrWorkspaceNotFound           = errors.New("workspace not found")
	ErrToolNotFound                = errors.New("tool not found")
	ErrAccessDenied                = errors.New("access denied")
	ErrInvalidWorkspaceType        = errors.New("invalid workspace type")
	ErrToolExecutionNotSupported   = errors.New("tool execution not supported in this context")
	ErrInvalidConfiguration        = errors.New("invalid configuration")
	ErrEmbeddingFailed             = errors.New("embedding generation failed")
	ErrPersistenceFailed           = errors.New("persistence operation failed")
	ErrTagGenerationFailed         = errors.New("tag generation failed")
	ErrDatabaseImmutabilityViolation = errors.New("database immutability violation")
)

// Class is a coarse HTTP-status-like classification attached to a CoreError,
// so the illustrative HTTP adapter can pick a response code without a
// sprawling switch over every sentinel.
type Class int

const (
	ClassInternal Class = iota
	ClassNotFound
	ClassInvalidInput
	ClassForbidden
	ClassConflict
)

// CoreError wraps a sentinel error with a class and optional context.
type CoreError struct {
	Class Class
	Err   error
}

func (e *CoreError) Error() string {
	return e.Err.Error()
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// Wrap attaches class to err as given; it does not inspect err.
func Wrap(class Class, err error) *CoreError {
	return &CoreError{Class: class, Err: err}
}
