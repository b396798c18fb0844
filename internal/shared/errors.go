package shared

import "errors"

// Error kinds shared by every module. Package errors wrap one of these so the
// HTTP edge can map them without knowing each package.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a status change not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInsufficientStock indicates a pool or ready quantity would go negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrVersionConflict indicates the row changed since it was read.
	ErrVersionConflict = errors.New("version conflict")
	// ErrConflict indicates a duplicate or already processed request.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized indicates a missing or invalid bearer token.
	ErrUnauthorized = errors.New("unauthorized")
)
