package dberrors

import (
	"errors"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFound("table", "users")
	if err.Error() != "table not found: users" {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected errors.Is to match ErrNotFound")
	}
}

func TestNotFoundErrorNoID(t *testing.T) {
	err := &NotFoundError{Resource: "database"}
	if err.Error() != "database not found" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidation("tableName", "must not be empty")
	if err.Error() != "validation failed for tableName: must not be empty" {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, ErrInvalidArgument) {
		t.Error("expected errors.Is to match ErrInvalidArgument")
	}
}

func TestEngineError(t *testing.T) {
	underlying := errors.New("syntax error")
	err := &EngineError{Op: "query", Query: "SELECT *", Err: underlying}
	if !errors.Is(err, underlying) {
		t.Error("expected unwrap to reach underlying error")
	}
	if !errors.Is(err, ErrEngine) {
		t.Error("expected errors.Is to match ErrEngine")
	}
}

func TestEngineErrorNoUnderlying(t *testing.T) {
	err := &EngineError{Op: "connect"}
	if !errors.Is(err, ErrEngine) {
		t.Error("expected fallback to ErrEngine when Err is nil")
	}
}

func TestSchemaEvolutionError(t *testing.T) {
	err := &SchemaEvolutionError{Table: "users", Step: "bulk-insert", Err: errors.New("disk full")}
	if !errors.Is(err, ErrSchemaEvolutionFailed) {
		t.Error("expected errors.Is to match ErrSchemaEvolutionFailed")
	}
}

func TestLockError(t *testing.T) {
	err := &LockError{Table: "app.users", Holder: "thread-7"}
	if !errors.Is(err, ErrTableLocked) {
		t.Error("expected errors.Is to match ErrTableLocked")
	}
	if err.Error() != "table app.users locked by thread-7" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("expected Wrap(nil, ...) to return nil")
	}
	wrapped := Wrap(ErrNotFound, "loading table")
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("expected wrapped error to unwrap to ErrNotFound")
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("expected Wrapf(nil, ...) to return nil")
	}
	wrapped := Wrapf(ErrEngine, "query %q", "SELECT 1")
	if wrapped.Error() != `query "SELECT 1": engine error` {
		t.Errorf("unexpected message: %s", wrapped.Error())
	}
}

func TestIsAs(t *testing.T) {
	err := NewNotFound("table", "x")
	if !Is(err, ErrNotFound) {
		t.Error("Is should delegate to errors.Is")
	}
	var nfe *NotFoundError
	if !As(err, &nfe) {
		t.Error("As should delegate to errors.As")
	}
}
