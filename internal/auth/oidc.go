package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const stateTTL = 10 * time.Minute

// OIDCConfig describes the identity provider connection.
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// OIDCService drives the authorization-code flow against the identity
// provider: state + PKCE bookkeeping, code exchange, and ID-token
// verification.
type OIDCService struct {
	verifier   *oidc.IDTokenVerifier
	oauth2Cfg  *oauth2.Config
	stateStore *oidcStateStore
}

// oidcStateEntry tracks one in-flight login attempt. State entries are
// single-use and expire after stateTTL.
type oidcStateEntry struct {
	Nonce         string
	CodeVerifier  string
	CodeChallenge string
	ReturnTo      string
	CreatedAt     time.Time
}

type oidcStateStore struct {
	mu      sync.Mutex
	entries map[string]*oidcStateEntry
}

func newOIDCStateStore() *oidcStateStore {
	return &oidcStateStore{entries: make(map[string]*oidcStateEntry)}
}

func (s *oidcStateStore) put(state string, entry *oidcStateEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, e := range s.entries {
		if now.Sub(e.CreatedAt) > stateTTL {
			delete(s.entries, k)
		}
	}
	s.entries[state] = entry
}

func (s *oidcStateStore) consume(state string) (*oidcStateEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[state]
	if !ok {
		return nil, false
	}
	delete(s.entries, state)
	if time.Since(entry.CreatedAt) > stateTTL {
		return nil, false
	}
	return entry, true
}

// NewOIDCService discovers the provider's endpoints and prepares the OAuth2
// configuration.
func NewOIDCService(ctx context.Context, cfg OIDCConfig) (*OIDCService, error) {
	issuer := strings.TrimSpace(cfg.IssuerURL)
	if issuer == "" {
		return nil, errors.New("oidc issuer URL is empty")
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &OIDCService{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		stateStore: newOIDCStateStore(),
	}, nil
}

// NewStateEntry creates a single-use state token with a fresh nonce and PKCE
// pair for one login attempt.
func (s *OIDCService) NewStateEntry(returnTo string) (string, *oidcStateEntry, error) {
	state, err := randomToken()
	if err != nil {
		return "", nil, fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomToken()
	if err != nil {
		return "", nil, fmt.Errorf("generate nonce: %w", err)
	}
	verifier, challenge, err := generatePKCEPair()
	if err != nil {
		return "", nil, err
	}

	entry := &oidcStateEntry{
		Nonce:         nonce,
		CodeVerifier:  verifier,
		CodeChallenge: challenge,
		ReturnTo:      returnTo,
		CreatedAt:     time.Now(),
	}
	s.stateStore.put(state, entry)
	return state, entry, nil
}

// ConsumeState returns and removes the entry for a state token. A state can
// only be consumed once.
func (s *OIDCService) ConsumeState(state string) (*oidcStateEntry, bool) {
	return s.stateStore.consume(state)
}

// AuthCodeURL builds the provider authorization URL for a state entry.
func (s *OIDCService) AuthCodeURL(state string, entry *oidcStateEntry) string {
	opts := []oauth2.AuthCodeOption{
		oidc.Nonce(entry.Nonce),
	}
	if entry.CodeChallenge != "" {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", entry.CodeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}
	return s.oauth2Cfg.AuthCodeURL(state, opts...)
}

// ExchangeCode swaps an authorization code for tokens, presenting the PKCE
// verifier recorded at login start.
func (s *OIDCService) ExchangeCode(ctx context.Context, code string, entry *oidcStateEntry) (*oauth2.Token, error) {
	var opts []oauth2.AuthCodeOption
	if entry != nil && entry.CodeVerifier != "" {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", entry.CodeVerifier))
	}
	token, err := s.oauth2Cfg.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return token, nil
}

// VerifyIDToken validates the raw ID token, checks the nonce, and extracts
// the authenticated identity from its claims.
func (s *OIDCService) VerifyIDToken(ctx context.Context, rawIDToken string, entry *oidcStateEntry) (Identity, error) {
	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Identity{}, fmt.Errorf("verify id token: %w", err)
	}
	if entry != nil && entry.Nonce != "" && idToken.Nonce != entry.Nonce {
		return Identity{}, errors.New("id token nonce mismatch")
	}

	claims := make(map[string]any)
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("parse id token claims: %w", err)
	}

	return Identity{
		Subject:    idToken.Subject,
		Email:      extractStringClaim(claims, "email"),
		GivenName:  extractStringClaim(claims, "given_name"),
		FamilyName: extractStringClaim(claims, "family_name"),
		PictureURL: extractStringClaim(claims, "picture"),
	}, nil
}

func extractStringClaim(claims map[string]any, key string) string {
	value, ok := claims[key]
	if !ok {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []string:
		if len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
	case []any:
		for _, item := range v {
			if str, ok := item.(string); ok {
				return strings.TrimSpace(str)
			}
		}
	}
	return ""
}

func generatePKCEPair() (verifier, challenge string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate pkce verifier: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(b)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
