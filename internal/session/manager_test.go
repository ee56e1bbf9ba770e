package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/recall/internal/player"
	resolvermock "github.com/MrWong99/recall/internal/resolver/mock"
	"github.com/MrWong99/recall/pkg/audio"
	sttmock "github.com/MrWong99/recall/pkg/provider/stt/mock"
	"github.com/MrWong99/recall/pkg/provider/tts"
	ttsmock "github.com/MrWong99/recall/pkg/provider/tts/mock"
	vadmock "github.com/MrWong99/recall/pkg/provider/vad/mock"
)

func testFactory(t *testing.T) Factory {
	t.Helper()
	return func(clientID string) (*Orchestrator, error) {
		sink := player.SinkFunc(func(context.Context, string, []byte) error { return nil })
		play := player.New(&ttsmock.Provider{}, tts.Voice{ID: "v"}, nil, sink)
		t.Cleanup(func() { play.Close() })
		return New(clientID, Deps{
			VAD:      &vadmock.Engine{},
			STT:      &sttmock.Provider{},
			Resolver: &resolvermock.Resolver{},
			Player:   play,
			Capture:  audio.NewFanout(8),
		})
	}
}

func waitActive(t *testing.T, m *Manager, want int) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for m.Active() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Active() = %d, want %d", m.Active(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManager_OpenAndGet(t *testing.T) {
	m := NewManager()
	factory := testFactory(t)
	defer m.Shutdown(context.Background())

	orch, err := m.Open(context.Background(), "client-1", factory)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, ok := m.Get("client-1")
	if !ok || got != orch {
		t.Error("Get did not return the opened session")
	}
	if m.Active() != 1 {
		t.Errorf("Active() = %d, want 1", m.Active())
	}
}

func TestManager_SecondOpenIsAlreadyActive(t *testing.T) {
	m := NewManager()
	factory := testFactory(t)
	defer m.Shutdown(context.Background())

	if _, err := m.Open(context.Background(), "client-1", factory); err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err := m.Open(context.Background(), "client-1", factory)
	var ge *GateError
	if !errors.As(err, &ge) || ge.Reason != GateAlreadyActive {
		t.Fatalf("second Open error = %v, want GateError already-active", err)
	}

	// A different client is unaffected.
	if _, err := m.Open(context.Background(), "client-2", factory); err != nil {
		t.Fatalf("Open for second client: %v", err)
	}
}

func TestManager_ReleaseFreesSlot(t *testing.T) {
	m := NewManager()
	factory := testFactory(t)
	defer m.Shutdown(context.Background())

	if _, err := m.Open(context.Background(), "client-1", factory); err != nil {
		t.Fatalf("Open: %v", err)
	}
	m.Release("client-1")
	waitActive(t, m, 0)

	if _, err := m.Open(context.Background(), "client-1", factory); err != nil {
		t.Fatalf("reopen after release: %v", err)
	}
}

func TestManager_ShutdownStopsSessions(t *testing.T) {
	m := NewManager()
	factory := testFactory(t)

	if _, err := m.Open(context.Background(), "client-1", factory); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := m.Open(context.Background(), "client-2", factory); err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if m.Active() != 0 {
		t.Errorf("Active() = %d after shutdown, want 0", m.Active())
	}

	if _, err := m.Open(context.Background(), "client-3", factory); err == nil {
		t.Error("Open succeeded after shutdown")
	}
}

func TestManager_CapRejectsOverflow(t *testing.T) {
	m := NewManager(WithMaxSessions(1))
	factory := testFactory(t)
	defer m.Shutdown(context.Background())

	if _, err := m.Open(context.Background(), "client-1", factory); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := m.Open(context.Background(), "client-2", factory); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("Open over cap = %v, want ErrTooManySessions", err)
	}

	m.Release("client-1")
	waitActive(t, m, 0)
	if _, err := m.Open(context.Background(), "client-2", factory); err != nil {
		t.Fatalf("Open after release: %v", err)
	}
}

func TestManager_FactoryErrorReleasesSlot(t *testing.T) {
	boom := errors.New("boom")
	m := NewManager()
	factory := func(string) (*Orchestrator, error) { return nil, boom }
	defer m.Shutdown(context.Background())

	if _, err := m.Open(context.Background(), "client-1", factory); !errors.Is(err, boom) {
		t.Fatalf("Open error = %v, want factory error", err)
	}
	if m.Active() != 0 {
		t.Errorf("Active() = %d after factory failure, want 0", m.Active())
	}
}
