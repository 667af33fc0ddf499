package domain

import "errors"

// Error taxonomy for reconciliation operations. Callers classify failures
// with errors.Is; lower layers wrap these with fmt.Errorf("...: %w", ...).
var (
	// ErrNotFound: statement, line, account or movement does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict: the movement is already claimed by a different line.
	ErrConflict = errors.New("conflict")

	// ErrValidation: malformed import data or an illegal state transition.
	ErrValidation = errors.New("validation failed")

	// ErrTransient: candidate pool or storage unreachable; safe to retry,
	// no partial state was committed.
	ErrTransient = errors.New("transient failure")

	// ErrPermissionDenied: cross-tenant access.
	ErrPermissionDenied = errors.New("permission denied")
)
