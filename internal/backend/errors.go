package backend

import (
	"errors"
	"fmt"
	"strings"
)

const conflictMarker = "already have a locked appointment"

// APIError is a non-success answer from the backend.
type APIError struct {
	Op      string
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned status %d code %d", e.Op, e.Status, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// ConflictError means the caller already holds a different active lock.
type ConflictError struct {
	Op                    string
	ExistingAppointmentID string
	Message               string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s (existing appointment %s)", e.Op, e.Message, e.ExistingAppointmentID)
}

func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// isConflict applies the backend's convention: code 409 with the
// "already have a locked appointment" message.
func isConflict(status, code int, message string) bool {
	if code != 409 && status != 409 {
		return false
	}
	return strings.Contains(strings.ToLower(message), conflictMarker)
}

// UserMessage is the text to show for a failed backend call.
func UserMessage(err error, fallback string) string {
	if ae, ok := AsAPIError(err); ok && ae.Message != "" {
		return ae.Message
	}
	if ce, ok := AsConflict(err); ok && ce.Message != "" {
		return ce.Message
	}
	return fallback
}
