package errors

import "errors"

// Sentinel errors shared by the service and API layers. Services wrap them
// with context (fmt.Errorf("%w: ...")) and the API maps them to status codes
// with errors.Is.

var (
	// ErrNotFound signifies that a requested resource could not be located.
	ErrNotFound = errors.New("resource not found")

	// ErrValidation signifies that input data failed validation.
	ErrValidation = errors.New("validation failed")

	// ErrConflict signifies that the operation conflicts with the current
	// state, e.g. starting a generation while another one is in flight.
	ErrConflict = errors.New("resource conflict")

	// ErrPermission signifies that the capability flags do not allow the action.
	ErrPermission = errors.New("permission denied")

	// ErrInternal is a generic error used to avoid leaking implementation details.
	ErrInternal = errors.New("internal server error")
)
