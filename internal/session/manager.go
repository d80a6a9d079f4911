package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	logx "github.com/deltax-data-professor/server/pkg/logger"
)

type Config struct {
	TTL           string `envconfig:"SESSION_TTL" default:"2h"`
	SweepInterval string `envconfig:"SESSION_SWEEP_INTERVAL" default:"1m"`
}

// DefaultConfig mirrors the envconfig defaults.
func DefaultConfig() Config {
	return Config{TTL: "2h", SweepInterval: "1m"}
}

func (c Config) ttl() time.Duration {
	return parseDuration(c.TTL, 2*time.Hour)
}

func (c Config) sweepInterval() time.Duration {
	return parseDuration(c.SweepInterval, time.Minute)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Manager owns the sessions of the process, keyed by id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      Config
	// OnEvict is called after an idle session is removed.
	OnEvict func(id string)
}

func NewManager(cfg Config) *Manager {
	return &Manager{sessions: make(map[string]*Session), cfg: cfg}
}

// Create starts a new session with a random id.
func (m *Manager) Create() *Session {
	s := newSession(uuid.NewString())
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	logx.Debug().Str("session_id", s.ID).Msg("session created")
	return s
}

// Get returns the session and marks it used.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch()
	}
	return s, ok
}

// GetOrCreate returns the session for id, creating a fresh one when id is
// unknown or expired.
func (m *Manager) GetOrCreate(id string) *Session {
	if id != "" {
		if s, ok := m.Get(id); ok {
			return s
		}
	}
	return m.Create()
}

// Delete removes a session and cancels its tasks.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.close()
	}
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle since before now-TTL and returns how many.
func (m *Manager) Sweep(now time.Time) int {
	cutoff := now.Add(-m.cfg.ttl())

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.LastUsed().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.close()
		if m.OnEvict != nil {
			m.OnEvict(s.ID)
		}
	}
	if len(stale) > 0 {
		logx.Debug().Int("evicted", len(stale)).Msg("idle sessions evicted")
	}
	return len(stale)
}

// Run sweeps periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.sweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// CloseAll cancels every session. Called on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.close()
	}
}
