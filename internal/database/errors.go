package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"media-registry/internal/metrics"
)

// Error kinds reported by StoreError.ErrorKind.
const (
	KindUniqueViolation     = "unique_violation"
	KindForeignKeyViolation = "foreign_key_violation"
	KindNotNullViolation    = "not_null_violation"
	KindNotFound            = "not_found"
	KindSchema              = "schema"
	KindBusy                = "busy"
	KindInvalidState        = "invalid_state"
	KindInternal            = "internal"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("duplicate key")
	ErrForeignKey   = errors.New("referenced record does not exist")
	ErrSchema       = errors.New("schema missing or incompatible")
	ErrBatchClosed  = errors.New("batch is no longer running")
	ErrLegacySchema = errors.New("legacy schema present; migration required")
)

// StoreError is returned by every store operation that fails. Kind classifies
// the failure; Err is the underlying driver error.
type StoreError struct {
	Op   string
	Kind string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ErrorKind returns the classification used by callers and the HTTP layer.
func (e *StoreError) ErrorKind() string { return e.Kind }

// Is matches the package sentinels by kind, so errors.Is(err, ErrNotFound)
// holds for any not-found StoreError regardless of the wrapped driver error.
func (e *StoreError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrDuplicate:
		return e.Kind == KindUniqueViolation
	case ErrForeignKey:
		return e.Kind == KindForeignKeyViolation
	case ErrSchema:
		return e.Kind == KindSchema
	case ErrBatchClosed:
		return e.Kind == KindInvalidState
	}
	return false
}

// wrapErr classifies err and wraps it in a StoreError for op. A nil error
// stays nil and an existing StoreError is returned unchanged.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var se *StoreError
	if errors.As(err, &se) {
		return err
	}

	kind := classify(err)
	switch kind {
	case KindUniqueViolation, KindForeignKeyViolation, KindNotNullViolation:
		metrics.DBConstraintViolations.WithLabelValues(kind).Inc()
	}

	return &StoreError{Op: op, Kind: kind, Err: err}
}

func classify(err error) string {
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	if errors.Is(err, ErrBatchClosed) {
		return KindInvalidState
	}
	if errors.Is(err, ErrSchema) || errors.Is(err, ErrLegacySchema) {
		return KindSchema
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindInternal
	}

	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		switch sqErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return KindUniqueViolation
		case sqlite3.ErrConstraintForeignKey:
			return KindForeignKeyViolation
		case sqlite3.ErrConstraintNotNull:
			return KindNotNullViolation
		}
		switch sqErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return KindBusy
		case sqlite3.ErrError:
			// "no such table" and "no such column" surface as generic SQL errors.
			return KindSchema
		}
	}

	return KindInternal
}

// notFound builds a not-found StoreError for op.
func notFound(op string, format string, args ...any) error {
	return &StoreError{Op: op, Kind: KindNotFound, Err: fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)}
}
