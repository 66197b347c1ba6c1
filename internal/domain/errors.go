package domain

import (
	"errors"
	"strings"

	"github.com/sharetube/client/pkg/validator"
)

var (
	// ErrValidation marks malformed local input rejected before any network call.
	ErrValidation = errors.New("validation error")
	// ErrTransient marks timeouts and connection failures. State is kept and the
	// next natural poll or action is the retry.
	ErrTransient = errors.New("transient network error")
	// ErrNotFound means the room or session no longer exists on the Room Service.
	ErrNotFound = errors.New("room not found")
	// ErrTransportUnavailable is returned by transport calls made before the
	// transport signalled ready or after it was destroyed.
	ErrTransportUnavailable = errors.New("transport unavailable")
)

// ValidationError lists the rejected input fields. It matches ErrValidation.
type ValidationError struct {
	Fields []validator.ValidationError
}

func NewValidationError(field, code, message string) *ValidationError {
	return &ValidationError{Fields: []validator.ValidationError{{
		Field:   field,
		Code:    code,
		Message: message,
	}}}
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}

	return "validation error: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
