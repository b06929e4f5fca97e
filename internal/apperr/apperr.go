package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed domain error carrying a stable machine code and an HTTP
// status. The code is part of the wire contract: clients branch on it to
// decide between a silent token refresh and forcing re-login.
type Error struct {
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two Errors by code, so a WithMessage clone still compares equal
// to its sentinel under errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New creates an Error with the given code, status and message.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches an underlying cause to a new Error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// WithMessage returns a copy of err with the message replaced.
func WithMessage(err *Error, message string) *Error {
	clone := *err
	clone.Message = message
	return &clone
}

var (
	// Validation and generic errors.
	ErrValidation = New("validation_error", http.StatusBadRequest, "invalid request")
	ErrNotFound   = New("not_found", http.StatusNotFound, "resource not found")
	ErrInternal   = New("internal_error", http.StatusInternalServerError, "internal server error")
	ErrRateLimit  = New("rate_limit_exceeded", http.StatusTooManyRequests, "too many requests")

	// Authentication errors. The four 401 codes are deliberately distinct:
	// token_expired invites a refresh attempt, the others force re-login.
	ErrTokenRequired      = New("token_required", http.StatusUnauthorized, "an authentication token is required")
	ErrTokenInvalid       = New("token_invalid", http.StatusUnauthorized, "the authentication token is invalid")
	ErrTokenExpired       = New("token_expired", http.StatusUnauthorized, "the authentication token has expired")
	ErrSessionInvalid     = New("session_invalid", http.StatusUnauthorized, "the session has expired or is invalid")
	ErrUserInvalid        = New("user_invalid", http.StatusUnauthorized, "the user does not exist or is inactive")
	ErrInvalidCredentials = New("invalid_credentials", http.StatusUnauthorized, "incorrect username or password")

	// Authorization errors.
	ErrUserInactive = New("user_inactive", http.StatusForbidden, "the account is inactive")
	ErrForbidden    = New("forbidden", http.StatusForbidden, "you do not have permission to access this resource")
)

// From normalises any error into an *Error, defaulting to ErrInternal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}
