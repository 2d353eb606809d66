package interview

import "errors"

// Error taxonomy for engine operations. Handlers map these to HTTP status
// codes; everything else is treated as internal.
var (
	// ErrNotFound means a referenced session, template, or question does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation means required input is missing or inconsistent with
	// the session's current position.
	ErrValidation = errors.New("invalid input")

	// ErrConflict means the session was concurrently advanced or is in a
	// state that forbids the operation.
	ErrConflict = errors.New("conflicting session state")

	// ErrIntegrity means stored data is corrupt, e.g. a frozen selection
	// references a question that no longer resolves.
	ErrIntegrity = errors.New("data integrity error")

	// ErrProvider marks upstream AI provider failures.
	ErrProvider = errors.New("upstream provider error")
)

// ProviderError wraps a failed LLM call so callers can match ErrProvider
// while keeping the underlying cause.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *ProviderError) Unwrap() error { return e.Err }

// Is reports true for ErrProvider targets.
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }
