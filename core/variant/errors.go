package variant

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package wraps exactly one of them.
var (
	ErrConflict         = errors.New("conflict")
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrIllegalOperation = errors.New("illegal operation")
)

var (
	ErrVariantAlreadyExists      = fmt.Errorf("variant already exists: %w", ErrConflict)
	ErrVariantNotFound           = fmt.Errorf("variant not found: %w", ErrNotFound)
	ErrEmptyVariantID            = fmt.Errorf("empty variant id: %w", ErrIllegalOperation)
	ErrDuplicateTarget           = fmt.Errorf("duplicate variant id: %w", ErrConflict)
	ErrNoWorkingVariant          = fmt.Errorf("no working variant for this context: %w", ErrInvalidState)
	ErrStaleWorkingVariant       = fmt.Errorf("working variant has been removed: %w", ErrInvalidState)
	ErrNoWorkerSlot              = fmt.Errorf("context carries no worker slot: %w", ErrInvalidState)
	ErrNotInitialized            = fmt.Errorf("variant manager not initialized: %w", ErrInvalidState)
	ErrMultiThreadAccessDisabled = fmt.Errorf("multi-thread access is not enabled: %w", ErrInvalidState)
	ErrAlreadyInitialized        = fmt.Errorf("variant manager already initialized: %w", ErrIllegalOperation)
	ErrInitialVariantRemoval     = fmt.Errorf("initial variant cannot be removed: %w", ErrIllegalOperation)
)

// Kind names the error kind err belongs to, or "unknown".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrIllegalOperation):
		return "illegal_operation"
	default:
		return "unknown"
	}
}

// Error records the failed operation and the variant it was applied to.
type Error struct {
	Op  string
	ID  string
	Err error
}

func (e *Error) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("variant %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("variant %s %q: %v", e.Op, e.ID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op, id string, err error) error {
	return &Error{Op: op, ID: id, Err: err}
}
