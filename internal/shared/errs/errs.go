// Package errs holds the error taxonomy shared by the engine components.
//
// Nothing in the engine surfaces errors to an end user. Callers log them and
// decide, by category, whether local cleanup is required:
//
//   - LookupMiss: the application or process is absent; nothing to do.
//   - StaleReference: the record is mid-teardown; abort this call only.
//   - Collaborator: an outbound supervisor call failed; warn and clean up.
//   - Invariant: the input violates a model invariant; warn and skip.
package errs

import (
	"errors"
	"fmt"
)

// Category classifies an engine error
type Category string

const (
	CategoryLookupMiss     Category = "lookup_miss"
	CategoryStaleReference Category = "stale_reference"
	CategoryCollaborator   Category = "collaborator"
	CategoryInvariant      Category = "invariant"
)

// Error is a categorized engine error
type Error struct {
	Category Category
	Op       string
	Message  string
	Cause    error
	Context  map[string]any
}

// New creates an error without a cause
func New(category Category, op, message string) *Error {
	return &Error{Category: category, Op: op, Message: message}
}

// Wrap creates an error around cause
func Wrap(cause error, category Category, op, message string) *Error {
	return &Error{Category: category, Op: op, Message: message, Cause: cause}
}

// With attaches a context field
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Error implements error
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes the cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors of the same category and message
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Category == e.Category && (t.Message == "" || t.Message == e.Message)
}

// Sentinels
var (
	ErrNotFound         = New(CategoryLookupMiss, "", "not found")
	ErrDead             = New(CategoryStaleReference, "", "application is dead")
	ErrProcessRemoved   = New(CategoryStaleReference, "", "process already removed")
	ErrMainProcessAlive = New(CategoryInvariant, "", "main process still registered")
	ErrInvalidPID       = New(CategoryInvariant, "", "invalid pid")
	ErrInvalidPackage   = New(CategoryInvariant, "", "invalid package name")
	ErrCollaboratorCall = New(CategoryCollaborator, "", "supervisor call failed")
	ErrProcessGone      = New(CategoryCollaborator, "", "target process no longer exists")
	ErrCollaboratorTrip = New(CategoryCollaborator, "", "supervisor calls suspended")
)

// CategoryOf returns the category of err, or "" when err is not categorized
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// IsLookupMiss reports whether err means "nothing to do"
func IsLookupMiss(err error) bool {
	return CategoryOf(err) == CategoryLookupMiss
}
