package auth

import (
	"errors"
	"net/http"
)

// Token errors.
var (
	// ErrMissingToken indicates the request carries no bearer token.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken indicates the token is malformed, badly signed or expired.
	ErrInvalidToken = errors.New("invalid bearer token")

	// ErrSessionEnded indicates the token's session has logged out or expired.
	ErrSessionEnded = errors.New("session has ended")

	// ErrMissingSecret indicates the token manager was built without a signing secret.
	ErrMissingSecret = errors.New("token secret is required")
)

// ErrorCode is the machine-readable code of an authentication error response.
type ErrorCode string

const (
	// ErrorCodeUnauthorized maps to HTTP 401.
	ErrorCodeUnauthorized ErrorCode = "unauthorized"

	// ErrorCodeInvalidToken maps to HTTP 401.
	ErrorCodeInvalidToken ErrorCode = "invalid_token"

	// ErrorCodeSessionEnded maps to HTTP 401.
	ErrorCodeSessionEnded ErrorCode = "session_ended"
)

// AuthError represents an authentication error with a response code.
type AuthError struct {
	// Code is the error code.
	Code ErrorCode `json:"code"`

	// Message is the error message.
	Message string `json:"message"`

	// HTTPStatus is the HTTP status code.
	HTTPStatus int `json:"-"`
}

func (e *AuthError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewAuthError creates a new AuthError from a standard error.
func NewAuthError(err error) *AuthError {
	switch {
	case errors.Is(err, ErrInvalidToken):
		return &AuthError{Code: ErrorCodeInvalidToken, Message: err.Error(), HTTPStatus: http.StatusUnauthorized}
	case errors.Is(err, ErrSessionEnded):
		return &AuthError{Code: ErrorCodeSessionEnded, Message: err.Error(), HTTPStatus: http.StatusUnauthorized}
	default:
		return &AuthError{Code: ErrorCodeUnauthorized, Message: err.Error(), HTTPStatus: http.StatusUnauthorized}
	}
}
