package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatekit/gatekit/internal/auth"
	"github.com/gatekit/gatekit/internal/billing"
	"github.com/gatekit/gatekit/internal/logging"
	"github.com/gatekit/gatekit/internal/metrics"
	"github.com/gatekit/gatekit/internal/store"
)

// Run starts the application server with graceful shutdown.
func Run(ctx context.Context, version string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "gatekit",
	})

	log.Info().Str("version", version).Msg("Starting gatekit")

	// Ensure data directories exist
	if err := os.MkdirAll(cfg.StoreDir(), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	if err := os.MkdirAll(cfg.SessionsDir(), 0o700); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}

	// Open user store
	users, err := store.Open(cfg.StoreDir())
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	defer users.Close()

	// Session store with persistence across restarts
	sessions := auth.NewSessionStore(cfg.SessionsDir())
	defer sessions.Close()

	// OIDC provider discovery can take a moment on cold start
	discoverCtx, discoverCancel := context.WithTimeout(ctx, 30*time.Second)
	oidcSvc, err := auth.NewOIDCService(discoverCtx, auth.OIDCConfig{
		IssuerURL:    cfg.OIDCIssuerURL,
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURL:  cfg.RedirectURL(),
	})
	discoverCancel()
	if err != nil {
		return fmt.Errorf("init oidc: %w", err)
	}
	log.Info().Str("issuer", cfg.OIDCIssuerURL).Msg("OIDC provider configured")

	// Billing service
	billingSvc := billing.NewService(users, billing.NewClient(cfg.StripeAPIKey), billing.PlanConfig{
		Name:       cfg.PlanName,
		Currency:   cfg.PlanCurrency,
		UnitAmount: cfg.PlanAmount,
		Interval:   cfg.PlanInterval,
	}, cfg.BaseURL)

	authHandlers := auth.NewHandlers(oidcSvc, sessions, users, cfg.SecureCookies())

	// Build HTTP routes
	mux := http.NewServeMux()
	deps := &Deps{
		Config:   cfg,
		Users:    users,
		Sessions: sessions,
		Billing:  billingSvc,
		Auth:     authHandlers,
		Version:  version,
	}
	RegisterRoutes(mux, deps)

	handler := SecurityHeaders(RequestID(AccessLog(mux)))

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Create derived context for background goroutines
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Keep the session gauge current
	go runSessionMetrics(ctx, sessions)

	// Start server in background
	go func() {
		log.Info().Str("addr", addr).Msg("Listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Server failed")
		}
	}()

	// Signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down...")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	cancel()
	log.Info().Msg("Stopped")
	return nil
}

// runSessionMetrics periodically publishes the live session count.
func runSessionMetrics(ctx context.Context, sessions *auth.SessionStore) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		metrics.ActiveSessions.Set(float64(sessions.Count()))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
