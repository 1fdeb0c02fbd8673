// Package errors defines the error taxonomy shared by the chat core.
// Callers classify failures with errors.Is/errors.As and decide who gets
// told: validation and auth failures go to the originating connection only,
// store failures to the sender only, never to the whole room.
package errors

import (
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrAuthenticationFailed refuses a connection attempt. Terminal, no retry.
	ErrAuthenticationFailed = fmt.Errorf("authentication failed")
	// ErrNotFound covers edit/delete of a message id that does not exist,
	// including an id that was already deleted.
	ErrNotFound = fmt.Errorf("not found")
	// ErrForbidden covers edit/delete by a requester who is not the sender.
	ErrForbidden = fmt.Errorf("forbidden")
	// ErrValidationFailed is the sentinel wrapped by ValidationError.
	ErrValidationFailed = fmt.Errorf("validation failed")
	// ErrStoreUnavailable reports a persistence failure or timeout.
	ErrStoreUnavailable = fmt.Errorf("store unavailable")

	ErrUserAlreadyExists  = fmt.Errorf("username or email already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")

	ErrWorkerPanic    = fmt.Errorf("worker panic")
	ErrRegistryClosed = fmt.Errorf("registry is not running")
	ErrEmptyWords     = fmt.Errorf("no words have been found")
)

// ValidationError carries an error kind plus a field name to message mapping,
// so transport layers can render per-field errors without string parsing.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Add(field, message string) *ValidationError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
	return e
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidationFailed.Error()
	}
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fmt.Sprintf("%v: %s", ErrValidationFailed, strings.Join(fields, ", "))
}

// Unwrap lets errors.Is(err, ErrValidationFailed) match any ValidationError.
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}
