package shared

import "errors"

// Error kinds. Domain packages wrap one of these so callers can classify a
// failure with errors.Is without knowing the concrete error.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a malformed or incomplete request.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a business rule rejected the change.
	ErrConflict = errors.New("conflict")
	// ErrTemporal indicates a schedule that is not in the future.
	ErrTemporal = errors.New("schedule not in the future")
	// ErrUnauthorized indicates the request carries no acting user.
	ErrUnauthorized = errors.New("unauthorized")
)
