package tier

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned (wrapped) when an entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned by a TransitionStore when the distributor
// version no longer matches the expected one.
var ErrVersionConflict = errors.New("distributor version conflict")

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string // "distributor", "tier", "history", ...
	ID     any
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity string, id any) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// StorageError represents an error from a storage backend.
type StorageError struct {
	Backend   string // "sqlite", "postgres", "memory"
	Operation string // Operation that failed
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// TransitionErrorKind distinguishes the two ways a transition can fail.
type TransitionErrorKind string

const (
	// TransitionConflict means another writer changed the distributor first.
	// Callers must re-resolve rather than retry the same transition.
	TransitionConflict TransitionErrorKind = "concurrency_conflict"
	// TransitionStorage means the atomic unit failed and was rolled back.
	TransitionStorage TransitionErrorKind = "storage_failure"
)

// TransitionError is returned when a transition could not be committed.
// Neither the tier change nor the history record is visible afterwards.
type TransitionError struct {
	Kind          TransitionErrorKind
	DistributorID int64
	Cause         error
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition error [kind=%s, distributor=%d]: %v", e.Kind, e.DistributorID, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *TransitionError) Unwrap() error {
	return e.Cause
}

// NewTransitionError classifies cause: ErrVersionConflict becomes a
// conflict, anything else a storage failure.
func NewTransitionError(distributorID int64, cause error) *TransitionError {
	kind := TransitionStorage
	if errors.Is(cause, ErrVersionConflict) {
		kind = TransitionConflict
	}
	return &TransitionError{Kind: kind, DistributorID: distributorID, Cause: cause}
}

// IsConflict reports whether err is a concurrency conflict.
func IsConflict(err error) bool {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Kind == TransitionConflict
	}
	return errors.Is(err, ErrVersionConflict)
}

// RuleError reports a rule that fails authoring checks.
type RuleError struct {
	Kind   RuleKind
	RuleID int64
	Field  string
	Cause  error
}

// Error implements the error interface.
func (e *RuleError) Error() string {
	return fmt.Sprintf("%s rule %d: %s: %v", e.Kind, e.RuleID, e.Field, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RuleError) Unwrap() error {
	return e.Cause
}
