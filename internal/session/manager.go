package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lewtec/maskbatch/internal/domain"
)

// Manager hands out one Session per connected client, keyed by an opaque
// session id, instead of sharing a single process-wide working state.
type Manager struct {
	images   domain.ImageStore
	layers   domain.LayerStore
	log      zerolog.Logger
	debounce time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session registry.
func NewManager(images domain.ImageStore, layers domain.LayerStore, log zerolog.Logger, debounce time.Duration) *Manager {
	return &Manager{
		images:   images,
		layers:   layers,
		log:      log,
		debounce: debounce,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for the given id, creating it on first use.
func (m *Manager) Get(sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		return s
	}
	s := New(m.images, m.layers, m.log.With().Str("session", sessionID).Logger(), m.debounce)
	m.sessions[sessionID] = s
	return s
}

// Close flushes a session's durable state and removes it from the registry.
// Unknown ids are a no-op.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return s.Flush(ctx)
}

// Shutdown flushes every live session. The first failure is returned but
// the remaining sessions still flush.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var first error
	for _, s := range sessions {
		if err := s.Flush(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
