package server

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application server.
type Config struct {
	DataDir     string
	BindAddress string
	Port        int
	BaseURL     string

	StripeAPIKey string

	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string

	PlanName     string
	PlanCurrency string
	PlanAmount   int64 // smallest currency unit
	PlanInterval string

	PublicMetrics bool
	LogLevel      string
	LogFormat     string
}

// StoreDir returns the directory holding the user database.
func (c *Config) StoreDir() string {
	return filepath.Join(c.DataDir, "store")
}

// SessionsDir returns the directory holding persisted sessions.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.DataDir, "sessions")
}

// RedirectURL is the OAuth2 callback endpoint registered with the identity
// provider.
func (c *Config) RedirectURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/api/callback"
}

// SecureCookies reports whether session cookies should carry the Secure flag.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.BaseURL, "https://")
}

// LoadConfig loads configuration from environment variables.
// A .env file is loaded if present but not required.
func LoadConfig() (*Config, error) {
	// Best-effort .env loading (not required)
	_ = godotenv.Load()

	port, err := envOrDefaultInt("GATEKIT_PORT", 8080)
	if err != nil {
		return nil, err
	}
	planAmount, err := envOrDefaultInt64("GATEKIT_PLAN_AMOUNT", 100) // $1.00
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:          envOrDefault("GATEKIT_DATA_DIR", "/data"),
		BindAddress:      envOrDefault("GATEKIT_BIND_ADDRESS", "0.0.0.0"),
		Port:             port,
		BaseURL:          strings.TrimSpace(os.Getenv("GATEKIT_BASE_URL")),
		StripeAPIKey:     strings.TrimSpace(os.Getenv("STRIPE_API_KEY")),
		OIDCIssuerURL:    envOrDefault("OIDC_ISSUER_URL", "https://accounts.google.com"),
		OIDCClientID:     strings.TrimSpace(os.Getenv("OIDC_CLIENT_ID")),
		OIDCClientSecret: strings.TrimSpace(os.Getenv("OIDC_CLIENT_SECRET")),
		PlanName:         envOrDefault("GATEKIT_PLAN_NAME", "Premium Plan"),
		PlanCurrency:     envOrDefault("GATEKIT_PLAN_CURRENCY", "usd"),
		PlanAmount:       planAmount,
		PlanInterval:     envOrDefault("GATEKIT_PLAN_INTERVAL", "month"),
		PublicMetrics:    envOrDefaultBool("GATEKIT_PUBLIC_METRICS", false),
		LogLevel:         envOrDefault("GATEKIT_LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("GATEKIT_LOG_FORMAT", "auto"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.BaseURL == "" {
		missing = append(missing, "GATEKIT_BASE_URL")
	}
	if c.StripeAPIKey == "" {
		missing = append(missing, "STRIPE_API_KEY")
	}
	if c.OIDCClientID == "" {
		missing = append(missing, "OIDC_CLIENT_ID")
	}
	if c.OIDCClientSecret == "" {
		missing = append(missing, "OIDC_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("GATEKIT_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.PlanAmount <= 0 {
		return fmt.Errorf("GATEKIT_PLAN_AMOUNT must be greater than 0, got %d", c.PlanAmount)
	}

	parsedBaseURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("GATEKIT_BASE_URL must be a valid URL: %w", err)
	}
	if parsedBaseURL.Scheme != "http" && parsedBaseURL.Scheme != "https" {
		return fmt.Errorf("GATEKIT_BASE_URL must use http or https scheme")
	}
	if parsedBaseURL.Host == "" {
		return fmt.Errorf("GATEKIT_BASE_URL must include a host")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultInt64(key string, fallback int64) (int64, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
