package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/medstore/internal/domain"
)

// SessionSource exposes the live session a token must be bound to.
type SessionSource interface {
	// RefreshSession records activity on the live session if its ID is id and
	// returns a copy of it. Checking and refreshing happen under one lock.
	RefreshSession(id uuid.UUID) (*domain.Session, bool)
}

// Config contains configuration for the auth middleware.
type Config struct {
	// SkipPaths are paths that skip authentication.
	SkipPaths []string

	Logger zerolog.Logger
}

// DefaultConfig returns the default auth configuration.
func DefaultConfig() Config {
	return Config{
		SkipPaths: []string{"/health", "/api/v1/auth/login"},
		Logger:    zerolog.Nop(),
	}
}

// Middleware authenticates requests with a bearer token issued for the live session.
// Every accepted request counts as session activity.
func Middleware(tokens *TokenManager, sessions SessionSource, config Config) func(http.Handler) http.Handler {
	logger := config.Logger.With().Str("component", "auth_middleware").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range config.SkipPaths {
				if r.URL.Path == path {
					next.ServeHTTP(w, r)
					return
				}
			}

			authCtx, err := authenticate(r, tokens, sessions)
			if err != nil {
				logger.Debug().Err(err).Str("path", r.URL.Path).Msg("bearer authentication failed")
				writeAuthError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), AuthContextKey, authCtx)))
		})
	}
}

func authenticate(r *http.Request, tokens *TokenManager, sessions SessionSource) (*AuthContext, error) {
	header := r.Header.Get(AuthorizationHeader)
	if !strings.HasPrefix(header, BearerPrefix) {
		return nil, ErrMissingToken
	}

	claims, err := tokens.Parse(strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix)))
	if err != nil {
		return nil, err
	}

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, ErrSessionEnded
	}
	session, ok := sessions.RefreshSession(sessionID)
	if !ok {
		return nil, ErrSessionEnded
	}

	return &AuthContext{
		SessionID: session.ID,
		AccountID: session.Account.ID,
		Username:  session.Account.Username,
		Role:      session.Account.Role,
	}, nil
}

// writeAuthError writes a JSON error response.
func writeAuthError(w http.ResponseWriter, err error) {
	authErr := NewAuthError(err)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="medstore"`)
	w.WriteHeader(authErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": authErr})
}

// GetAuthContext retrieves the AuthContext from a request context.
func GetAuthContext(ctx context.Context) *AuthContext {
	if authCtx, ok := ctx.Value(AuthContextKey).(*AuthContext); ok {
		return authCtx
	}
	return nil
}

// RequireAuth is a helper to get auth context or return an error.
func RequireAuth(ctx context.Context) (*AuthContext, error) {
	authCtx := GetAuthContext(ctx)
	if authCtx == nil {
		return nil, ErrMissingToken
	}
	return authCtx, nil
}
