package gateway

import "errors"

// Errors returned by gateway operations. Callers match with errors.Is;
// wrapped messages carry server detail verbatim.
var (
	// ErrUnauthorized means no usable credential was available, or the
	// server rejected the one we sent. The credential source is
	// invalidated when the server rejects it.
	ErrUnauthorized = errors.New("not authenticated")

	// ErrValidation is a client-detected precondition failure. Nothing
	// was dispatched to the server.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is a server-side business-rule rejection (4xx with a
	// structured error body).
	ErrConflict = errors.New("request rejected")

	// ErrNotFound means the entity no longer exists server-side; local
	// state referencing it is stale.
	ErrNotFound = errors.New("not found")

	// ErrNetwork covers transport failures and non-2xx responses without
	// a structured body.
	ErrNetwork = errors.New("network failure")
)
