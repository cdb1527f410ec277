package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gatekit/gatekit/internal/auth"
	"github.com/gatekit/gatekit/internal/billing"
	"github.com/gatekit/gatekit/internal/store"
)

func newTestMux(t *testing.T, cfg *Config) (*http.ServeMux, *Deps) {
	t.Helper()

	dir := t.TempDir()
	users, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = users.Close() })

	sessions := auth.NewSessionStore(dir)
	t.Cleanup(sessions.Close)

	if cfg == nil {
		cfg = &Config{BaseURL: "https://app.example.com"}
	}
	svc := billing.NewService(users, &billing.Client{}, billing.PlanConfig{
		Name:       "Premium Plan",
		Currency:   "usd",
		UnitAmount: 100,
		Interval:   "month",
	}, cfg.BaseURL)

	mux := http.NewServeMux()
	deps := &Deps{
		Config:   cfg,
		Users:    users,
		Sessions: sessions,
		Billing:  svc,
		Version:  "test",
	}
	RegisterRoutes(mux, deps)
	return mux, deps
}

func TestRegisterRoutes_ProtectedEndpointsRequireSession(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/auth/user"},
		{http.MethodPost, "/api/create-subscription"},
		{http.MethodGet, "/api/subscription-status"},
		{http.MethodPost, "/api/create-portal-session"},
	}
	for _, rt := range routes {
		req := httptest.NewRequest(rt.method, rt.path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s = %d, want %d", rt.method, rt.path, rec.Code, http.StatusUnauthorized)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s %s: invalid JSON body %q", rt.method, rt.path, rec.Body.String())
		}
		if body["message"] != "Unauthorized" {
			t.Errorf("%s %s message = %q, want %q", rt.method, rt.path, body["message"], "Unauthorized")
		}
	}
}

func TestRegisterRoutes_InvalidSessionCookieRejected(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "bogus-token"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRegisterRoutes_AuthUserWithSession(t *testing.T) {
	mux, deps := newTestMux(t, nil)

	if _, err := deps.Users.Upsert(store.Profile{
		ID:        "user-1",
		Email:     "jane@example.com",
		FirstName: "Jane",
		LastName:  "Doe",
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	token := "test-session-token"
	deps.Sessions.Create(token, auth.Identity{Subject: "user-1", Email: "jane@example.com"}, auth.SessionTTL, "test", "127.0.0.1")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body=%q)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var user store.User
	if err := json.Unmarshal(rec.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if user.ID != "user-1" || user.Email != "jane@example.com" {
		t.Errorf("user = %+v, want id user-1 email jane@example.com", user)
	}
	if user.SubscriptionStatus != store.SubscriptionStatusInactive {
		t.Errorf("subscriptionStatus = %q, want %q", user.SubscriptionStatus, store.SubscriptionStatusInactive)
	}
}

func TestRegisterRoutes_SubscriptionStatusInactiveForNewUser(t *testing.T) {
	mux, deps := newTestMux(t, nil)

	if _, err := deps.Users.Upsert(store.Profile{ID: "user-2", Email: "new@example.com"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	token := "status-token"
	deps.Sessions.Create(token, auth.Identity{Subject: "user-2"}, auth.SessionTTL, "test", "127.0.0.1")

	req := httptest.NewRequest(http.MethodGet, "/api/subscription-status", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body=%q)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var status billing.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != "inactive" {
		t.Errorf("status = %q, want %q", status.Status, "inactive")
	}
}

func TestRegisterRoutes_MethodNotAllowed(t *testing.T) {
	mux, deps := newTestMux(t, nil)

	token := "method-token"
	deps.Sessions.Create(token, auth.Identity{Subject: "user-3"}, auth.SessionTTL, "test", "127.0.0.1")

	req := httptest.NewRequest(http.MethodGet, "/api/create-subscription", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestRegisterRoutes_Probes(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	for _, path := range []string{"/healthz", "/readyz", "/api/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}

func TestRegisterRoutes_MetricsGated(t *testing.T) {
	t.Run("disabled by default", func(t *testing.T) {
		mux, _ := newTestMux(t, nil)
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("enabled via config", func(t *testing.T) {
		mux, _ := newTestMux(t, &Config{BaseURL: "https://app.example.com", PublicMetrics: true})
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	SecurityHeaders(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policy header missing")
	}
}

func TestRequestID(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("generated when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequestID(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Header().Get(requestIDHeader) == "" {
			t.Error("expected generated request ID")
		}
	})

	t.Run("upstream ID preserved", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, "upstream-id")
		rec := httptest.NewRecorder()
		RequestID(inner).ServeHTTP(rec, req)
		if got := rec.Header().Get(requestIDHeader); got != "upstream-id" {
			t.Errorf("request ID = %q, want upstream-id", got)
		}
	})
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d unexpectedly limited", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Error("expected fourth request to be limited")
	}
	// Other IPs are tracked independently.
	if !rl.Allow("5.6.7.8") {
		t.Error("unrelated IP should not be limited")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := rl.Middleware(inner)

	req := httptest.NewRequest(http.MethodGet, "/api/login", nil)
	req.RemoteAddr = "9.9.9.9:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}

func TestRequestIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"remote addr", "10.0.0.1:5000", "", "10.0.0.1"},
		{"forwarded single", "10.0.0.1:5000", "203.0.113.7", "203.0.113.7"},
		{"forwarded chain", "10.0.0.1:5000", "203.0.113.7, 10.0.0.2", "203.0.113.7"},
		{"ipv6 remote", "[::1]:5000", "", "::1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if got := requestIP(req); got != tc.want {
				t.Errorf("requestIP = %q, want %q", got, tc.want)
			}
		})
	}
}
