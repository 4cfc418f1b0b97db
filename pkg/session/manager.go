package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/reagent-dev/reagent/pkg/api"
	"github.com/reagent-dev/reagent/pkg/artifacts"
	"github.com/reagent-dev/reagent/pkg/observability"
	"github.com/reagent-dev/reagent/pkg/runtime"
)

// EnvironmentFactory builds the environment and artifact sink for a new
// session. The transport layer wires this to the configured runtime variant.
// kind selects the environment ("local" or "sandbox"); empty means the
// configured default.
type EnvironmentFactory func(sessionID, kind string) (runtime.Environment, *artifacts.Sink, error)

// Manager tracks live sessions by ID.
type Manager struct {
	factory EnvironmentFactory
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager that provisions environments through factory.
func NewManager(factory EnvironmentFactory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		factory:  factory,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session with the given ID, or a not-found error.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, api.NewNotFoundError("session not found: " + id)
	}
	return s, nil
}

// GetOrCreate returns the session with the given ID, creating it first if
// needed. An empty ID creates a fresh session with a generated ID. kind is
// passed through to the factory for new sessions; existing sessions keep
// the environment they were created with.
func (m *Manager) GetOrCreate(id, kind string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if s, ok := m.sessions[id]; ok {
			return s, nil
		}
	} else {
		id = api.NewSessionID()
	}

	env, sink, err := m.factory(id, kind)
	if err != nil {
		return nil, err
	}

	s := New(id, env, sink)
	m.sessions[id] = s
	observability.SessionsActive.Set(float64(len(m.sessions)))
	m.logger.Info("session created", "session_id", id, "environment", env.Kind())
	return s, nil
}

// Delete closes the session's environment and removes it from the manager.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	observability.SessionsActive.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	if !ok {
		return api.NewNotFoundError("session not found: " + id)
	}

	if err := s.Close(ctx); err != nil {
		m.logger.Warn("session close failed", "session_id", id, "error", err)
		return err
	}
	m.logger.Info("session deleted", "session_id", id)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll closes every live session. Used during graceful shutdown so
// remote sandboxes are always released.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	observability.SessionsActive.Set(0)
	m.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			m.logger.Warn("session close failed during shutdown", "session_id", s.ID, "error", err)
		}
	}
}
