package edb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/edb/internal/ir"
	"github.com/roach88/edb/internal/store"
)

// ErrorCode categorizes database errors.
type ErrorCode string

const (
	// ErrCodeValidation indicates input rejected before any persistence attempt.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeBackend indicates a storage failure.
	ErrCodeBackend ErrorCode = "BACKEND"

	// ErrCodeConflict indicates a consistency or revision check failed.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeNotFound indicates a lookup that requires a result found none.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeCommitState indicates an operation on a commit in the wrong state.
	ErrCodeCommitState ErrorCode = "COMMIT_STATE"
)

// Error is the error type of every Database operation.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// OID identifies the affected object, if any.
	OID string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.OID != "" {
		msg += fmt.Sprintf(" (oid=%s)", e.OID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool { return hasCode(err, ErrCodeValidation) }

// IsBackend returns true if err is a storage failure.
func IsBackend(err error) bool { return hasCode(err, ErrCodeBackend) }

// IsCommitState returns true if err reports a commit in the wrong state.
func IsCommitState(err error) bool { return hasCode(err, ErrCodeCommitState) }

// IsConflict returns true if err is a conflict, including a *CheckError.
func IsConflict(err error) bool {
	var ce *CheckError
	if errors.As(err, &ce) {
		return true
	}
	return hasCode(err, ErrCodeConflict)
}

func validationError(oid, format string, args ...any) *Error {
	return &Error{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...), OID: oid}
}

func notFoundError(oid, format string, args ...any) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...), OID: oid}
}

// storeError converts a store failure into an *Error. store.ErrNotFound maps
// to ErrCodeNotFound, everything else to ErrCodeBackend.
func storeError(op, oid string, err error) *Error {
	if errors.Is(err, store.ErrNotFound) {
		return &Error{Code: ErrCodeNotFound, Message: op, OID: oid, Err: err}
	}
	return &Error{Code: ErrCodeBackend, Message: op, OID: oid, Err: err}
}

// CheckError reports every object of a commit that failed the consistency
// check: inserts of live OIDs, stale updates that conflict with the head, and
// deletes of OIDs that are not live.
type CheckError struct {
	FailedInserts []ir.Object
	FailedUpdates []ir.Object
	FailedDeletes []string
}

// Error implements the error interface.
func (e *CheckError) Error() string {
	var parts []string
	for _, o := range e.FailedInserts {
		parts = append(parts, fmt.Sprintf("object %s exists already", o.OID))
	}
	for _, o := range e.FailedUpdates {
		parts = append(parts, fmt.Sprintf("conflict for object %s", o.OID))
	}
	for _, oid := range e.FailedDeletes {
		parts = append(parts, fmt.Sprintf("object %s does not exist or is deleted", oid))
	}
	return fmt.Sprintf("%s: %s", ErrCodeConflict, strings.Join(parts, "; "))
}

// empty reports whether no object failed.
func (e *CheckError) empty() bool {
	return len(e.FailedInserts) == 0 && len(e.FailedUpdates) == 0 && len(e.FailedDeletes) == 0
}

// aborts reports whether a hook error is one of the database's own error
// types. Only those abort a commit; other hook errors are logged.
func aborts(err error) bool {
	var e *Error
	var ce *CheckError
	return errors.As(err, &e) || errors.As(err, &ce)
}
