package circulation

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the engine reports.
type ErrorKind int

const (
	// KindValidation means the request was malformed; nothing was written.
	KindValidation ErrorKind = iota + 1

	// KindNotFound means the referenced book or member does not exist.
	KindNotFound

	// KindConflict means the current state does not allow the operation.
	KindConflict

	// KindInconsistentState means a primary write succeeded but a dependent write failed.
	KindInconsistentState

	// KindStore means the record store failed.
	KindStore
)

// String returns the snake_case name of the kind, as used in logs and transport payloads.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInconsistentState:
		return "inconsistent_state"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Sentinels matching the error kinds; use errors.Is to classify an engine error.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInconsistentState = errors.New("inconsistent state")
	ErrStore             = errors.New("store error")
)

// Sentinels a RecordStore returns, joined with the driver error where there is one.
var (
	ErrRecordNotFound     = errors.New("record not found")
	ErrPreconditionFailed = errors.New("precondition failed, no rows were affected")
	ErrDuplicateRecord    = errors.New("duplicate record")
)

// Sentinels for constructor and option failures.
var (
	ErrNilRecordStore         = errors.New("record store must not be nil")
	ErrNilClock               = errors.New("clock must not be nil")
	ErrNilIDGenerator         = errors.New("id generator must not be nil")
	ErrNonPositiveTimeout     = errors.New("timeout must be positive")
	ErrLockNotAcquired        = errors.New("lock not acquired")
	ErrNilDatabaseConnection  = errors.New("database connection must not be nil")
	ErrEmptyTableNameSupplied = errors.New("empty table name supplied")
)

// Error is the error type returned by all Engine operations.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap exposes the kind sentinel and the cause, so errors.Is matches either.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindInconsistentState:
		return ErrInconsistentState
	default:
		return ErrStore
	}
}

// KindOf returns the ErrorKind of err, or zero if err is nil or not an engine error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return 0
}

func newError(kind ErrorKind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

func validationError(op, message string) *Error {
	return newError(KindValidation, op, message, nil)
}

func notFoundError(op, message string) *Error {
	return newError(KindNotFound, op, message, nil)
}

func conflictError(op, message string) *Error {
	return newError(KindConflict, op, message, nil)
}

func inconsistentStateError(op, message string, cause error) *Error {
	return newError(KindInconsistentState, op, message, cause)
}

func storeError(op string, cause error) *Error {
	return newError(KindStore, op, "record store failed", cause)
}
