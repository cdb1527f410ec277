package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SessionTTL is the default lifetime of a login session.
const SessionTTL = 7 * 24 * time.Hour

// SessionStore handles persistent session storage. Tokens are never stored
// directly; only their SHA-256 hashes are kept.
type SessionStore struct {
	sessions   map[string]*SessionData
	mu         sync.RWMutex
	dataPath   string
	saveTicker *time.Ticker
	stopChan   chan bool
	doneChan   chan struct{}
	stopOnce   sync.Once
}

func sessionHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// SessionData represents a user session with its identity snapshot.
type SessionData struct {
	Identity         Identity      `json:"identity"`
	ExpiresAt        time.Time     `json:"expires_at"`
	CreatedAt        time.Time     `json:"created_at"`
	UserAgent        string        `json:"user_agent,omitempty"`
	IP               string        `json:"ip,omitempty"`
	OriginalDuration time.Duration `json:"original_duration,omitempty"` // sliding-expiration window
}

type sessionPersisted struct {
	Key              string        `json:"key"`
	Identity         Identity      `json:"identity"`
	ExpiresAt        time.Time     `json:"expires_at"`
	CreatedAt        time.Time     `json:"created_at"`
	UserAgent        string        `json:"user_agent,omitempty"`
	IP               string        `json:"ip,omitempty"`
	OriginalDuration time.Duration `json:"original_duration,omitempty"`
}

// NewSessionStore creates a new persistent session store rooted at dataPath.
func NewSessionStore(dataPath string) *SessionStore {
	store := &SessionStore{
		sessions: make(map[string]*SessionData),
		dataPath: dataPath,
		stopChan: make(chan bool),
		doneChan: make(chan struct{}),
	}

	store.load()

	store.saveTicker = time.NewTicker(5 * time.Minute)
	go store.backgroundWorker()

	return store
}

func (s *SessionStore) backgroundWorker() {
	defer close(s.doneChan)
	for {
		select {
		case <-s.saveTicker.C:
			s.cleanup()
			s.save()
		case <-s.stopChan:
			s.save()
			return
		}
	}
}

// Close stops the background worker after a final save.
func (s *SessionStore) Close() {
	s.stopOnce.Do(func() {
		s.saveTicker.Stop()
		close(s.stopChan)
	})
	<-s.doneChan
}

// Create records a new session for the given identity.
func (s *SessionStore) Create(token string, identity Identity, duration time.Duration, userAgent, ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionHash(token)
	s.sessions[key] = &SessionData{
		Identity:         identity,
		ExpiresAt:        time.Now().Add(duration),
		CreatedAt:        time.Now(),
		UserAgent:        userAgent,
		IP:               ip,
		OriginalDuration: duration,
	}

	s.saveUnsafe()
}

// Validate checks whether a session is valid and, if so, extends it (sliding
// expiration) and returns the identity it carries.
func (s *SessionStore) Validate(token string) (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionHash(token)
	session, exists := s.sessions[key]
	if !exists {
		return Identity{}, false
	}

	now := time.Now()
	if now.After(session.ExpiresAt) {
		return Identity{}, false
	}

	if session.OriginalDuration > 0 {
		session.ExpiresAt = now.Add(session.OriginalDuration)
		// Not saved immediately; the background worker persists periodically.
	}

	return session.Identity, true
}

// Delete removes a session.
func (s *SessionStore) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionHash(token))
	s.saveUnsafe()
}

// Count returns the number of live sessions.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, key)
		}
	}
}

func (s *SessionStore) save() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.saveUnsafe()
}

// saveUnsafe saves without locking (caller must hold lock).
func (s *SessionStore) saveUnsafe() {
	sessionsFile := filepath.Join(s.dataPath, "sessions.json")

	if err := os.MkdirAll(s.dataPath, 0o700); err != nil {
		log.Error().Err(err).Msg("Failed to create sessions directory")
		return
	}

	persisted := make([]sessionPersisted, 0, len(s.sessions))
	for key, session := range s.sessions {
		persisted = append(persisted, sessionPersisted{
			Key:              key,
			Identity:         session.Identity,
			ExpiresAt:        session.ExpiresAt,
			CreatedAt:        session.CreatedAt,
			UserAgent:        session.UserAgent,
			IP:               session.IP,
			OriginalDuration: session.OriginalDuration,
		})
	}

	data, err := json.Marshal(persisted)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal sessions")
		return
	}

	// Write to a temporary file, then rename for atomicity.
	tmpFile := sessionsFile + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		log.Error().Err(err).Msg("Failed to write sessions file")
		return
	}
	if err := os.Rename(tmpFile, sessionsFile); err != nil {
		log.Error().Err(err).Msg("Failed to rename sessions file")
		return
	}

	log.Debug().Int("count", len(s.sessions)).Msg("Sessions saved to disk")
}

func (s *SessionStore) load() {
	sessionsFile := filepath.Join(s.dataPath, "sessions.json")

	data, err := os.ReadFile(sessionsFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error().Err(err).Msg("Failed to read sessions file")
		}
		return
	}

	var persisted []sessionPersisted
	if err := json.Unmarshal(data, &persisted); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal sessions")
		return
	}

	now := time.Now()
	s.sessions = make(map[string]*SessionData)
	for _, entry := range persisted {
		if now.After(entry.ExpiresAt) {
			continue
		}
		s.sessions[entry.Key] = &SessionData{
			Identity:         entry.Identity,
			ExpiresAt:        entry.ExpiresAt,
			CreatedAt:        entry.CreatedAt,
			UserAgent:        entry.UserAgent,
			IP:               entry.IP,
			OriginalDuration: entry.OriginalDuration,
		}
	}

	log.Info().Int("loaded", len(s.sessions)).Int("total", len(persisted)).Msg("Sessions loaded from disk")
}
