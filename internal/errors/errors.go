package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig        = "CONFIG"
	ErrStorage       = "STORAGE"
	ErrFetch         = "FETCH"
	ErrDiscord       = "DISCORD"
	ErrPermission    = "PERMISSION"
	ErrNotConfigured = "NOT_CONFIGURED"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
// Command handlers render it to the invoking user as:
//
//	❌ <What failed>
//	<How to fix it>
//
// The cause is kept for logs only and never shown in chat.
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrDiscord code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrDiscord,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %s", e.Cause.Error()))
	}

	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var botErr *Error
	if errors.As(err, &botErr) {
		return botErr.Code == code
	}
	return false
}

// UserMessage renders err as a short reply suitable for a chat user.
// Unstructured errors collapse to a generic message so internals never leak.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var botErr *Error
	if !errors.As(err, &botErr) {
		return "❌ An unexpected error occurred!"
	}

	msg := "❌ " + botErr.Message
	if botErr.Suggestion != "" {
		msg += "\n" + botErr.Suggestion
	}
	return msg
}
