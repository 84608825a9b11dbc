package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/medstore/internal/auth"
	"github.com/prn-tf/medstore/internal/domain"
	"github.com/prn-tf/medstore/internal/service"
)

// AuthHandler serves login, logout and session endpoints.
type AuthHandler struct {
	service *service.AuthService
	tokens  *auth.TokenManager
	logger  zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService, tokens *auth.TokenManager, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		service: svc,
		tokens:  tokens,
		logger:  logger.With().Str("handler", "auth").Logger(),
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Password string `json:"password" validate:"required,max=128"`
}

type loginResponse struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
	Session   service.SessionInfo `json:"session"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=128"`
}

type permissionResponse struct {
	Feature domain.Feature `json:"feature"`
	Allowed bool           `json:"allowed"`
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	account, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	session := h.service.CurrentSession()
	if session == nil || session.Account.ID != account.ID {
		writeError(w, domain.ErrNotAuthenticated)
		return
	}

	token, expires, err := h.tokens.Issue(session)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to issue session token")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expires,
		Session:   h.service.SessionInfo(),
	})
}

// Logout handles POST /api/v1/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /api/v1/auth/session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.SessionInfo())
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, domain.ErrNotAuthenticated)
		return
	}
	if _, ok := h.service.RefreshSession(authCtx.SessionID); !ok {
		writeError(w, domain.ErrNotAuthenticated)
		return
	}
	writeJSON(w, http.StatusOK, h.service.SessionInfo())
}

// ChangePassword handles POST /api/v1/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.ChangeOwnSecret(r.Context(), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Permission handles GET /api/v1/auth/permissions/{feature}.
func (h *AuthHandler) Permission(w http.ResponseWriter, r *http.Request) {
	feature := domain.Feature(chi.URLParam(r, "feature"))
	writeJSON(w, http.StatusOK, permissionResponse{
		Feature: feature,
		Allowed: h.service.HasPermission(feature),
	})
}
