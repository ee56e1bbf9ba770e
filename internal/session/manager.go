package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Factory builds a new Orchestrator for a client. The gateway supplies one
// wired with the connection's capture fan-out, sink and gate state.
type Factory func(clientID string) (*Orchestrator, error)

// ErrTooManySessions is returned by Open when the session cap is reached.
var ErrTooManySessions = errors.New("session: too many concurrent sessions")

// Manager tracks at most one live Orchestrator per client. It backs the
// not-already-active start gate: opening a second session for a client that
// already has one fails with GateAlreadyActive.
//
// All methods are safe for concurrent use.
type Manager struct {
	log *slog.Logger
	max int

	mu       sync.Mutex
	sessions map[string]*managed
	closed   bool

	wg sync.WaitGroup
}

type managed struct {
	orch   *Orchestrator
	cancel context.CancelFunc
}

// ManagerOption is a functional option for configuring a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the structured logger. Defaults to slog.Default().
func WithManagerLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// WithMaxSessions caps the number of concurrent sessions. Zero or negative
// means unlimited.
func WithMaxSessions(n int) ManagerOption {
	return func(m *Manager) { m.max = n }
}

// NewManager constructs a Manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		log:      slog.Default(),
		sessions: make(map[string]*managed),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open builds an Orchestrator for clientID with factory and starts its event
// loop, which runs until ctx is cancelled, Release is called, or the manager
// shuts down. Returns GateAlreadyActive if the client already has a live
// session and ErrTooManySessions when the cap is reached.
func (m *Manager) Open(ctx context.Context, clientID string, factory Factory) (*Orchestrator, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, context.Canceled
	}
	if _, exists := m.sessions[clientID]; exists {
		m.mu.Unlock()
		return nil, &GateError{Reason: GateAlreadyActive}
	}
	if m.max > 0 && len(m.sessions) >= m.max {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	// Reserve the slot before constructing so concurrent opens for the same
	// client cannot race past the existence check.
	m.sessions[clientID] = nil
	m.mu.Unlock()

	orch, err := factory(clientID)
	if err != nil {
		m.remove(clientID)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.sessions[clientID] = &managed{orch: orch, cancel: cancel}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.remove(clientID)
		if err := orch.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			m.log.Error("session loop ended", "client_id", clientID, "error", err)
		}
	}()

	m.log.Info("session opened", "client_id", clientID)
	return orch, nil
}

// Get returns the live session for clientID, if any.
func (m *Manager) Get(clientID string) (*Orchestrator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[clientID]
	if !ok || s == nil {
		return nil, false
	}
	return s.orch, true
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Release stops the session for clientID, if any. The session's loop exits
// asynchronously.
func (m *Manager) Release(clientID string) {
	m.mu.Lock()
	s := m.sessions[clientID]
	m.mu.Unlock()
	if s != nil {
		s.cancel()
	}
}

// Shutdown stops every session and waits for their loops to exit or ctx to
// expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, s := range m.sessions {
		if s != nil {
			s.cancel()
		}
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) remove(clientID string) {
	m.mu.Lock()
	delete(m.sessions, clientID)
	m.mu.Unlock()
	m.log.Info("session closed", "client_id", clientID)
}
