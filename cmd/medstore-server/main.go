// Package main is the entry point for the medstore terminal server.
// It exposes the authentication and account management API of one point-of-sale terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/prn-tf/medstore/internal/app"
	"github.com/prn-tf/medstore/internal/auth"
	"github.com/prn-tf/medstore/internal/config"
	"github.com/prn-tf/medstore/internal/handler"
	"github.com/prn-tf/medstore/internal/logging"
	"github.com/prn-tf/medstore/internal/metrics"
	"github.com/prn-tf/medstore/internal/pkg/crypto"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to the configuration file")
	pflag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise logging")
	}
	defer closer.Close()

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("starting medstore server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		closer.Close()
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	a, err := app.New(ctx, cfg, logger, app.Options{Migrate: cfg.Database.IsEmbedded()})
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.BootstrapAdministrator(ctx); err != nil {
		return fmt.Errorf("failed to seed administrator: %w", err)
	}

	secret := cfg.Auth.TokenSecret
	if secret == "" {
		if secret, err = crypto.GenerateTokenSecret(); err != nil {
			return err
		}
		logger.Warn().Msg("auth.token_secret is not set; tokens will not survive a restart")
	}
	tokens, err := auth.NewTokenManager(secret, cfg.Auth.TokenIssuer, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	router := handler.NewRouter(handler.RouterConfig{
		Service:  a.Auth,
		Tokens:   tokens,
		Database: a.Store.Database,
		Version:  Version,
		Logger:   logger,
	})

	var h http.Handler = router.Handler()
	if cfg.Server.MaxBodySize > 0 {
		h = http.MaxBytesHandler(h, cfg.Server.MaxBodySize)
	}

	servers := []*http.Server{{
		Addr:         cfg.Server.Addr(),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}}
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler(a.Registry))
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down server")
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Error().Err(serr).Str("addr", srv.Addr).Msg("graceful shutdown failed")
		}
	}

	if a.Auth.IsAuthenticated() {
		_ = a.Auth.Logout()
	}
	return err
}
