package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/breatheroute/airvoice/internal/geo"
	"github.com/breatheroute/airvoice/internal/host"
)

var (
	// ErrNotFound is returned for events addressed to an unknown session.
	ErrNotFound = host.ErrUnknownSession

	// ErrShuttingDown is returned when a session is started during shutdown.
	ErrShuttingDown = errors.New("session manager is shutting down")

	// ErrMissingSessionID is returned when a start request has no id.
	ErrMissingSessionID = errors.New("session id is required")
)

// Manager tracks live sessions by host session id and routes host events
// to them.
type Manager struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session
	closing  bool
}

var _ host.Dispatcher = (*Manager)(nil)

// NewManager creates a manager whose sessions share cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

// StartSession creates and starts a session. Starting an id that is already
// live is a no-op so host webhook retries do not restart sessions.
func (m *Manager) StartSession(_ context.Context, start host.SessionStart) error {
	if start.SessionID == "" {
		return ErrMissingSessionID
	}

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return ErrShuttingDown
	}
	if _, ok := m.sessions[start.SessionID]; ok {
		m.mu.Unlock()
		m.cfg.Logger.Debug().Str("session_id", start.SessionID).Msg("session already active")
		return nil
	}
	s := New(start, m.cfg)
	m.sessions[start.SessionID] = s
	m.mu.Unlock()

	s.Start()
	return nil
}

// EndSession stops a session and discards its state.
func (m *Manager) EndSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.Close()
	return nil
}

// Transcription delivers an utterance to a session.
func (m *Manager) Transcription(_ context.Context, sessionID string, event host.TranscriptionEvent) error {
	s, ok := m.Get(sessionID)
	if !ok {
		return ErrNotFound
	}
	s.Hub().PublishTranscription(event)
	return nil
}

// Location delivers a device fix to a session. Invalid coordinates are
// rejected with a *geo.ValidationError.
func (m *Manager) Location(_ context.Context, sessionID string, event host.LocationEvent) error {
	if err := geo.Validate(event.Coordinate()); err != nil {
		return err
	}
	s, ok := m.Get(sessionID)
	if !ok {
		return ErrNotFound
	}
	s.Hub().PublishLocation(event)
	return nil
}

// Get returns a live session.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	return s, ok
}

// Snapshot returns the status of a live session.
func (m *Manager) Snapshot(sessionID string) (Snapshot, bool) {
	s, ok := m.Get(sessionID)
	if !ok {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// ShuttingDown reports whether Shutdown has been called.
func (m *Manager) ShuttingDown() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closing
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs returns the live session ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Shutdown ends every session and refuses new ones. It returns ctx.Err()
// when sessions do not finish in time.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, s := range sessions {
			wg.Add(1)
			go func(s *Session) {
				defer wg.Done()
				s.Close()
			}(s)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cfg.Logger.Info().Int("sessions", len(sessions)).Msg("all sessions closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
