package model

import "errors"

// Domain error kinds. Store and service code wraps these with context via
// fmt.Errorf("...: %w", err); callers match with errors.Is.
var (
	// ErrResourceExhausted is returned synchronously when an admission
	// request does not fit the gateway server's available pool on every
	// dimension. The request is rejected, never queued.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrInvalidProcess marks an unknown process id, unknown process type,
	// or a missing gateway/target server at admission time.
	ErrInvalidProcess = errors.New("invalid process")

	// ErrPermissionDenied marks an owner mismatch on non-cancel operations.
	// Cancellation intentionally suppresses this into a silent no-op.
	ErrPermissionDenied = errors.New("permission denied")
)
