package auth

import (
	"encoding/json"
	"net/http"
)

// SessionCookieName is the session cookie set on successful login.
const SessionCookieName = "gatekit_session"

// RequireSession gates a handler behind a valid session cookie. On success
// the session's identity is attached to the request context; on failure the
// request is rejected with 401 and no downstream handler runs.
func RequireSession(sessions *SessionStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			writeUnauthorized(w)
			return
		}

		identity, ok := sessions.Validate(cookie.Value)
		if !ok {
			writeUnauthorized(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Unauthorized"})
}
