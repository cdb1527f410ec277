package server

import (
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GATEKIT_BASE_URL", "https://app.example.com")
	t.Setenv("STRIPE_API_KEY", "sk_test_123")
	t.Setenv("OIDC_CLIENT_ID", "client-id")
	t.Setenv("OIDC_CLIENT_SECRET", "client-secret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.DataDir != "/data" {
		t.Errorf("DataDir = %q, want /data", cfg.DataDir)
	}
	if cfg.PlanName != "Premium Plan" || cfg.PlanCurrency != "usd" || cfg.PlanAmount != 100 || cfg.PlanInterval != "month" {
		t.Errorf("plan = %q %q %d %q, want Premium Plan usd 100 month",
			cfg.PlanName, cfg.PlanCurrency, cfg.PlanAmount, cfg.PlanInterval)
	}
	if cfg.OIDCIssuerURL != "https://accounts.google.com" {
		t.Errorf("OIDCIssuerURL = %q", cfg.OIDCIssuerURL)
	}
	if cfg.PublicMetrics {
		t.Error("PublicMetrics should default to false")
	}
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STRIPE_API_KEY", "")
	t.Setenv("OIDC_CLIENT_ID", "")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected error for missing required variables")
	}
	for _, name := range []string{"STRIPE_API_KEY", "OIDC_CLIENT_ID"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q should name %s", err, name)
		}
	}
}

func TestLoadConfig_InvalidPort(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GATEKIT_PORT", "99999")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestLoadConfig_InvalidBaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GATEKIT_BASE_URL", "ftp://example.com")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for non-http base URL")
	}
}

func TestLoadConfig_ZeroPlanAmount(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GATEKIT_PLAN_AMOUNT", "0")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for zero plan amount")
	}
}

func TestConfigDerived(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/gatekit", BaseURL: "https://app.example.com/"}

	if got := cfg.RedirectURL(); got != "https://app.example.com/api/callback" {
		t.Errorf("RedirectURL = %q", got)
	}
	if !cfg.SecureCookies() {
		t.Error("SecureCookies should be true for https base URL")
	}

	cfg.BaseURL = "http://localhost:8080"
	if cfg.SecureCookies() {
		t.Error("SecureCookies should be false for http base URL")
	}
}
