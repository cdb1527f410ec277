package auth

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gatekit/gatekit/internal/metrics"
	"github.com/gatekit/gatekit/internal/store"
	"github.com/rs/zerolog/log"
)

const exchangeTimeout = 15 * time.Second

// ProfileUpserter mirrors identity-provider profiles into the user record
// store. Implemented by *store.UserStore.
type ProfileUpserter interface {
	Upsert(p store.Profile) (*store.User, error)
}

// Handlers implements the login, callback, and logout endpoints.
type Handlers struct {
	svc           *OIDCService
	sessions      *SessionStore
	users         ProfileUpserter
	secureCookies bool
}

// NewHandlers wires the OIDC flow handlers. secureCookies should be true
// whenever the app is served over HTTPS.
func NewHandlers(svc *OIDCService, sessions *SessionStore, users ProfileUpserter, secureCookies bool) *Handlers {
	return &Handlers{
		svc:           svc,
		sessions:      sessions,
		users:         users,
		secureCookies: secureCookies,
	}
}

// HandleLogin starts the authorization-code flow by redirecting to the
// identity provider.
// Route: GET /api/login
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	returnTo := sanitizeReturnTo(r.URL.Query().Get("returnTo"))
	state, entry, err := h.svc.NewStateEntry(returnTo)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create login state entry")
		http.Error(w, "Unable to start login", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, h.svc.AuthCodeURL(state, entry), http.StatusFound)
}

// HandleCallback completes the authorization-code flow: state check, code
// exchange, ID-token verification, user record upsert, session creation.
// Route: GET /api/callback
func (h *Handlers) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		log.Warn().Str("error", errParam).Msg("Identity provider returned error")
		redirectLoginError(w, r, errParam)
		return
	}

	state := query.Get("state")
	if state == "" {
		redirectLoginError(w, r, "missing_state")
		return
	}
	entry, ok := h.svc.ConsumeState(state)
	if !ok {
		redirectLoginError(w, r, "invalid_state")
		return
	}

	code := query.Get("code")
	if code == "" {
		redirectLoginError(w, r, "missing_code")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), exchangeTimeout)
	defer cancel()

	token, err := h.svc.ExchangeCode(ctx, code, entry)
	if err != nil {
		log.Error().Err(err).Msg("OIDC code exchange failed")
		redirectLoginError(w, r, "exchange_failed")
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		redirectLoginError(w, r, "missing_id_token")
		return
	}

	identity, err := h.svc.VerifyIDToken(ctx, rawIDToken, entry)
	if err != nil {
		log.Error().Err(err).Msg("ID token verification failed")
		redirectLoginError(w, r, "invalid_id_token")
		return
	}

	// Mirror the profile into the user record store on every login.
	if _, err := h.users.Upsert(store.Profile{
		ID:              identity.Subject,
		Email:           identity.Email,
		FirstName:       identity.GivenName,
		LastName:        identity.FamilyName,
		ProfileImageURL: identity.PictureURL,
	}); err != nil {
		log.Error().Err(err).Str("subject", identity.Subject).Msg("Failed to upsert user record")
		redirectLoginError(w, r, "store_failed")
		return
	}

	sessionToken, err := randomToken()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate session token")
		redirectLoginError(w, r, "session_failed")
		return
	}
	h.sessions.Create(sessionToken, identity, SessionTTL, r.UserAgent(), clientIP(r))

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionTTL.Seconds()),
	})

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	log.Info().Str("subject", identity.Subject).Str("email", identity.Email).Msg("Login successful")

	target := entry.ReturnTo
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleLogout deletes the session and clears the cookie.
// Route: GET /api/logout
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		h.sessions.Delete(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	http.Redirect(w, r, "/", http.StatusFound)
}

func redirectLoginError(w http.ResponseWriter, r *http.Request, code string) {
	metrics.LoginsTotal.WithLabelValues("failure").Inc()
	http.Redirect(w, r, "/?login=error&login_error="+code, http.StatusFound)
}

// sanitizeReturnTo only accepts site-local paths as post-login targets.
func sanitizeReturnTo(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if !strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, "//") {
		return ""
	}
	return trimmed
}

func clientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return xff
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
