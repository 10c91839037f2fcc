package app

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned for unknown emails and wrong
	// passwords alike, so login failures never reveal whether an email
	// is registered.
	ErrInvalidCredentials = errors.New("Invalid credentials")

	ErrEmailExists = errors.New("User with this email already exists")

	// ErrUnauthorized is returned for missing, malformed or expired
	// tokens, and for tokens whose user no longer exists.
	ErrUnauthorized = errors.New("Not authorized")

	// Absent and not-owned resources share one error so responses never
	// leak existence.
	ErrPDFNotFound     = errors.New("PDF not found or access denied")
	ErrChatNotFound    = errors.New("Chat not found or access denied")
	ErrQuizNotFound    = errors.New("Quiz not found or access denied")
	ErrAttemptNotFound = errors.New("Quiz attempt not found or access denied")
)

// ValidationError marks malformed or missing input. Handlers map it to a
// 400 response carrying the message.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
