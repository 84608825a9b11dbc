// Package handler provides the HTTP API of a medstore terminal.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prn-tf/medstore/internal/auth"
	"github.com/prn-tf/medstore/internal/repository"
	"github.com/prn-tf/medstore/internal/service"
)

// Router handles HTTP routing for the medstore API.
type Router struct {
	authHandler    *AuthHandler
	accountHandler *AccountHandler
	healthHandler  *HealthHandler
	authMiddleware func(http.Handler) http.Handler
	logger         zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	Service  *service.AuthService
	Tokens   *auth.TokenManager
	Database repository.DatabaseHealth
	Version  string
	Logger   zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	authConfig := auth.DefaultConfig()
	authConfig.Logger = config.Logger

	return &Router{
		authHandler:    NewAuthHandler(config.Service, config.Tokens, config.Logger),
		accountHandler: NewAccountHandler(config.Service, config.Logger),
		healthHandler:  NewHealthHandler(config.Database, config.Version),
		authMiddleware: auth.Middleware(config.Tokens, config.Service, authConfig),
		logger:         config.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(rt.logger))
	r.Use(middleware.Recoverer)

	// Health check (no auth)
	r.Get("/health", rt.healthHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.authMiddleware)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", rt.authHandler.Login)
			r.Post("/logout", rt.authHandler.Logout)
			r.Get("/session", rt.authHandler.Session)
			r.Post("/refresh", rt.authHandler.Refresh)
			r.Post("/password", rt.authHandler.ChangePassword)
			r.Get("/permissions/{feature}", rt.authHandler.Permission)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", rt.accountHandler.List)
			r.Post("/", rt.accountHandler.Create)
			r.Get("/{id}", rt.accountHandler.Get)
			r.Put("/{id}", rt.accountHandler.Update)
			r.Delete("/{id}", rt.accountHandler.Delete)
			r.Post("/{id}/activate", rt.accountHandler.Activate)
			r.Post("/{id}/deactivate", rt.accountHandler.Deactivate)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: APIError{Code: "route_not_found", Message: "no such endpoint"}})
	})

	return r
}
