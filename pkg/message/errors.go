package message

import (
	"errors"
	"fmt"
)

// ErrInvalidMessage is wrapped by every ValidationError.
var ErrInvalidMessage = errors.New("invalid agent message")

// ValidationError reports a structural problem with an AgentMessage.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %q: %s", e.Field, e.Message)
}

// Unwrap returns ErrInvalidMessage so callers can use errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidMessage
}
