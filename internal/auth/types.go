// Package auth binds HTTP requests to the terminal's authenticated session with
// signed bearer tokens.
package auth

import (
	"github.com/google/uuid"

	"github.com/prn-tf/medstore/internal/domain"
)

// contextKey is the type for context keys used by this package.
type contextKey string

// AuthContextKey is the context key for storing authentication information.
const AuthContextKey contextKey = "auth"

// AuthContext contains authentication information for a request.
type AuthContext struct {
	// SessionID is the session the bearer token is bound to.
	SessionID uuid.UUID

	// AccountID is the ID of the authenticated account.
	AccountID int64

	// Username is the username of the authenticated account.
	Username string

	// Role is the role the session was opened with.
	Role domain.Role
}

// BearerPrefix precedes the token in the Authorization header.
const BearerPrefix = "Bearer "

// AuthorizationHeader is the request header carrying the bearer token.
const AuthorizationHeader = "Authorization"
