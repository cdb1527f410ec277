package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gatekit/gatekit/internal/auth"
	"github.com/gatekit/gatekit/internal/billing"
	"github.com/gatekit/gatekit/internal/store"
)

// Deps holds shared dependencies injected into HTTP handlers.
type Deps struct {
	Config   *Config
	Users    *store.UserStore
	Sessions *auth.SessionStore
	Billing  *billing.Service
	Auth     *auth.Handlers // nil disables the login flow (tests)
	Version  string
}

// RegisterRoutes wires all HTTP handlers onto the given ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps *Deps) {
	sessionAuth := func(next http.Handler) http.Handler {
		return auth.RequireSession(deps.Sessions, next)
	}

	// Liveness/readiness probes are unauthenticated.
	mux.HandleFunc("/healthz", handleHealthz)
	mux.Handle("/readyz", handleReadyz(deps.Users))
	mux.HandleFunc("/api/health", handleHealth)

	if deps.Config.PublicMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}

	// Login flow endpoints are public but rate limited per IP.
	if deps.Auth != nil {
		loginLimiter := NewRateLimiter(30, time.Minute)
		mux.Handle("/api/login", loginLimiter.Middleware(http.HandlerFunc(deps.Auth.HandleLogin)))
		mux.Handle("/api/callback", loginLimiter.Middleware(http.HandlerFunc(deps.Auth.HandleCallback)))
		mux.HandleFunc("/api/logout", deps.Auth.HandleLogout)
	}

	// Everything else sits behind the session gate.
	mux.Handle("/api/auth/user", sessionAuth(handleAuthUser(deps.Users)))
	mux.Handle("/api/create-subscription", sessionAuth(handleCreateSubscription(deps.Billing)))
	mux.Handle("/api/subscription-status", sessionAuth(handleSubscriptionStatus(deps.Billing)))
	mux.Handle("/api/create-portal-session", sessionAuth(handlePortalSession(deps.Billing)))
}
