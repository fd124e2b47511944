// Package dberrors provides standardized error types and helpers for the
// façade, concurrency layer, and engine adapter.
//
// Nothing panics out of the public façade API: fallible façade and engine
// operations return a Go error. These types and sentinels give those
// errors an identity callers can test with errors.Is/errors.As, and carry
// context onto values that get logged.
package dberrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases.
var (
	// ErrNotFound indicates a resource was not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument indicates a nil/invalid parameter was passed to a façade call.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAlreadyExists indicates a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrEngine indicates the underlying engine reported a query failure.
	ErrEngine = errors.New("engine error")
	// ErrLockHeld indicates a record lock is held by another thread.
	ErrLockHeld = errors.New("lock held by another thread")
	// ErrTableLocked indicates a table lock is held by another thread.
	ErrTableLocked = errors.New("table locked by another thread")
	// ErrSchemaEvolutionFailed indicates the copy-and-rename algorithm aborted.
	ErrSchemaEvolutionFailed = errors.New("schema evolution failed")
	// ErrInvalidLockHandle indicates unlock_tables received a corrupted handle.
	ErrInvalidLockHandle = errors.New("invalid lock handle")
)

// NotFoundError represents a resource-not-found error with context.
type NotFoundError struct {
	Resource string // e.g. "table", "database", "field"
	ID       string
	Err      error
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError represents an input validation failure.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidArgument
}

// EngineError wraps an engine-side query failure (spec.md §7).
type EngineError struct {
	Op    string // e.g. "query", "describeTable"
	Query string
	Err   error
}

func (e *EngineError) Error() string {
	if e.Query != "" {
		return fmt.Sprintf("engine %s failed for %q: %v", e.Op, e.Query, e.Err)
	}
	return fmt.Sprintf("engine %s failed: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrEngine
}

// Is matches ErrEngine whether or not Err is set, so errors.Is reaches
// both the sentinel and the underlying cause.
func (e *EngineError) Is(target error) bool { return target == ErrEngine }

// SchemaEvolutionError wraps a copy-and-rename step failure (spec.md §4.7).
type SchemaEvolutionError struct {
	Table string
	Step  string // e.g. "create-temp", "bulk-insert", "drop-original", "rename"
	Err   error
}

func (e *SchemaEvolutionError) Error() string {
	return fmt.Sprintf("schema evolution of %s failed at step %q: %v", e.Table, e.Step, e.Err)
}

func (e *SchemaEvolutionError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrSchemaEvolutionFailed
}

// Is matches ErrSchemaEvolutionFailed whether or not Err is set.
func (e *SchemaEvolutionError) Is(target error) bool { return target == ErrSchemaEvolutionFailed }

// LockError describes why a lock operation could not proceed immediately.
type LockError struct {
	Table  string
	Holder string // thread/goroutine identifier currently holding the lock
}

func (e *LockError) Error() string {
	return fmt.Sprintf("table %s locked by %s", e.Table, e.Holder)
}

func (e *LockError) Unwrap() error {
	return ErrTableLocked
}

// NewNotFound creates a NotFoundError.
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// NewValidation creates a ValidationError.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Wrap adds context to an error. Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. Returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool { return errors.Is(err, target) }

// As wraps errors.As for convenience.
func As(err error, target interface{}) bool { return errors.As(err, target) }
