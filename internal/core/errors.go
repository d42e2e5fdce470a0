package core

import "errors"

// Error kinds. Components return these sentinels wrapped with
// fmt.Errorf("...: %w", ...) so callers can errors.Is() against a
// stable kind instead of parsing messages.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrInvalidScope       = errors.New("invalid scope")
	ErrConflict           = errors.New("conflict")
	ErrPersistenceFailure = errors.New("persistence failure")
)
