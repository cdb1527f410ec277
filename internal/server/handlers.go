package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gatekit/gatekit/internal/auth"
	"github.com/gatekit/gatekit/internal/billing"
	"github.com/gatekit/gatekit/internal/store"
	"github.com/rs/zerolog/log"
)

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

// handleHealth is a trivial liveness endpoint for the frontend.
// Route: GET /api/health
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleAuthUser returns the caller's user record.
// Route: GET /api/auth/user
func handleAuthUser(users *store.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		user, err := users.Get(identity.Subject)
		if err != nil {
			log.Error().Err(err).Str("subject", identity.Subject).Msg("Error fetching user")
			writeMessage(w, http.StatusInternalServerError, "Failed to fetch user")
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

type createSubscriptionResponse struct {
	SubscriptionID string  `json:"subscriptionId"`
	ClientSecret   *string `json:"clientSecret"`
}

// handleCreateSubscription creates or idempotently returns the caller's
// subscription.
// Route: POST /api/create-subscription
func handleCreateSubscription(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		res, err := svc.CreateSubscription(r.Context(), identity.Subject)
		if err != nil {
			switch {
			case errors.Is(err, billing.ErrUserNotFound):
				writeMessage(w, http.StatusNotFound, "User not found")
			case errors.Is(err, billing.ErrEmailRequired):
				writeMessage(w, http.StatusBadRequest, "User email is required")
			default:
				// Upstream errors surface their message verbatim.
				log.Error().Err(err).Str("subject", identity.Subject).Msg("Subscription creation error")
				writeMessage(w, http.StatusBadRequest, err.Error())
			}
			return
		}

		resp := createSubscriptionResponse{SubscriptionID: res.SubscriptionID}
		if res.ClientSecret != "" {
			resp.ClientSecret = &res.ClientSecret
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleSubscriptionStatus reconciles and returns the caller's subscription
// status.
// Route: GET /api/subscription-status
func handleSubscriptionStatus(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		status, err := svc.SubscriptionStatus(r.Context(), identity.Subject)
		if err != nil {
			log.Error().Err(err).Str("subject", identity.Subject).Msg("Subscription status error")
			writeMessage(w, http.StatusInternalServerError, "Failed to get subscription status")
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// handlePortalSession returns a hosted billing-management URL.
// Route: POST /api/create-portal-session
func handlePortalSession(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		url, err := svc.PortalSessionURL(r.Context(), identity.Subject)
		if err != nil {
			if errors.Is(err, billing.ErrNoCustomer) {
				writeMessage(w, http.StatusBadRequest, "No billing customer found")
				return
			}
			log.Error().Err(err).Str("subject", identity.Subject).Msg("Portal session error")
			writeMessage(w, http.StatusInternalServerError, "Failed to create portal session")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	}
}

// handleHealthz is an unauthenticated liveness probe.
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz reports readiness based on store connectivity.
func handleReadyz(users *store.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if users == nil || users.Ping() != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}
