package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/recall/pkg/audio"
	"github.com/MrWong99/recall/pkg/provider/tts"
	ttsmock "github.com/MrWong99/recall/pkg/provider/tts/mock"
)

// collectSink records delivered PCM per turn.
type collectSink struct {
	mu     sync.Mutex
	chunks map[string][][]byte
	err    error
}

func newCollectSink() *collectSink {
	return &collectSink{chunks: make(map[string][][]byte)}
}

func (s *collectSink) WriteAudio(_ context.Context, turnID string, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.chunks[turnID] = append(s.chunks[turnID], cp)
	return nil
}

func (s *collectSink) count(turnID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks[turnID])
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback event")
		return Event{}
	}
}

func TestPlayer_SpeakFinishes(t *testing.T) {
	provider := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{[]byte("c1"), []byte("c2"), []byte("c3")},
	}
	sink := newCollectSink()
	p := New(provider, tts.Voice{ID: "v1"}, nil, sink)
	defer p.Close()

	if err := p.Speak(context.Background(), "turn-1", "hello there"); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	ev := waitEvent(t, p.Events())
	if ev.TurnID != "turn-1" {
		t.Errorf("TurnID = %q, want turn-1", ev.TurnID)
	}
	if ev.Outcome != OutcomeFinished {
		t.Errorf("Outcome = %v, want finished", ev.Outcome)
	}
	if got := sink.count("turn-1"); got != 3 {
		t.Errorf("delivered chunks = %d, want 3", got)
	}
	if p.Speaking() {
		t.Error("Speaking() = true after completion")
	}
}

func TestPlayer_CancelMidStream(t *testing.T) {
	provider := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{[]byte("c1"), []byte("c2"), []byte("c3")},
		ChunkDelay:       50 * time.Millisecond,
	}
	sink := newCollectSink()
	p := New(provider, tts.Voice{ID: "v1"}, nil, sink)
	defer p.Close()

	if err := p.Speak(context.Background(), "turn-1", "a long reply"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	time.Sleep(70 * time.Millisecond)
	p.Cancel()

	ev := waitEvent(t, p.Events())
	if ev.Outcome != OutcomeCancelled {
		t.Fatalf("Outcome = %v, want cancelled", ev.Outcome)
	}
	if got := sink.count("turn-1"); got >= 3 {
		t.Errorf("delivered chunks = %d, want fewer than 3 (cancelled mid-stream)", got)
	}

	// Exactly one terminal event: nothing further should arrive.
	select {
	case extra := <-p.Events():
		t.Fatalf("unexpected second event: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPlayer_CancelIdempotent(t *testing.T) {
	provider := &ttsmock.Provider{SynthesizeChunks: [][]byte{[]byte("c1")}}
	p := New(provider, tts.Voice{ID: "v1"}, nil, newCollectSink())
	defer p.Close()

	// Cancel with no active turn is a no-op.
	p.Cancel()

	if err := p.Speak(context.Background(), "turn-1", "short"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	ev := waitEvent(t, p.Events())
	if ev.Outcome != OutcomeFinished {
		t.Fatalf("Outcome = %v, want finished", ev.Outcome)
	}

	// Cancel after natural completion must not emit another event.
	p.Cancel()
	p.Cancel()
	select {
	case extra := <-p.Events():
		t.Fatalf("unexpected event after late cancel: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPlayer_SpeakSupersedesActiveTurn(t *testing.T) {
	provider := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{[]byte("c1"), []byte("c2"), []byte("c3")},
		ChunkDelay:       50 * time.Millisecond,
	}
	sink := newCollectSink()
	p := New(provider, tts.Voice{ID: "v1"}, nil, sink)
	defer p.Close()

	if err := p.Speak(context.Background(), "turn-1", "first"); err != nil {
		t.Fatalf("Speak turn-1: %v", err)
	}
	time.Sleep(70 * time.Millisecond)
	if err := p.Speak(context.Background(), "turn-2", "second"); err != nil {
		t.Fatalf("Speak turn-2: %v", err)
	}

	first := waitEvent(t, p.Events())
	if first.TurnID != "turn-1" || first.Outcome != OutcomeCancelled {
		t.Fatalf("first event = %+v, want turn-1 cancelled", first)
	}
	second := waitEvent(t, p.Events())
	if second.TurnID != "turn-2" || second.Outcome != OutcomeFinished {
		t.Fatalf("second event = %+v, want turn-2 finished", second)
	}
}

func TestPlayer_SynthesisFailure(t *testing.T) {
	provider := &ttsmock.Provider{SynthesizeErr: errors.New("backend down")}
	p := New(provider, tts.Voice{ID: "v1"}, nil, newCollectSink())
	defer p.Close()

	if err := p.Speak(context.Background(), "turn-1", "hello"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	ev := waitEvent(t, p.Events())
	if ev.Outcome != OutcomeFailed {
		t.Fatalf("Outcome = %v, want failed", ev.Outcome)
	}
	if ev.Err == nil {
		t.Fatal("Err = nil, want synthesis error")
	}
}

func TestPlayer_SinkFailure(t *testing.T) {
	provider := &ttsmock.Provider{SynthesizeChunks: [][]byte{[]byte("c1")}}
	sink := newCollectSink()
	sink.err = errors.New("client gone")
	p := New(provider, tts.Voice{ID: "v1"}, nil, sink)
	defer p.Close()

	if err := p.Speak(context.Background(), "turn-1", "hello"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	ev := waitEvent(t, p.Events())
	if ev.Outcome != OutcomeFailed {
		t.Fatalf("Outcome = %v, want failed", ev.Outcome)
	}
}

func TestPlayer_WaitsForAudioSession(t *testing.T) {
	sessions := audio.NewSessionManager()
	defer sessions.Close()

	// Hold the session in record mode, as during capture.
	if err := sessions.Configure(context.Background(), audio.ModeRecord); err != nil {
		t.Fatalf("Configure record: %v", err)
	}

	provider := &ttsmock.Provider{SynthesizeChunks: [][]byte{[]byte("c1")}}
	sink := newCollectSink()
	p := New(provider, tts.Voice{ID: "v1"}, sessions, sink)
	defer p.Close()

	if err := p.Speak(context.Background(), "turn-1", "hello"); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	// Playback must not start while record mode holds the session.
	time.Sleep(50 * time.Millisecond)
	if got := sink.count("turn-1"); got != 0 {
		t.Fatalf("delivered chunks = %d while record mode held, want 0", got)
	}

	sessions.Release()

	ev := waitEvent(t, p.Events())
	if ev.Outcome != OutcomeFinished {
		t.Fatalf("Outcome = %v, want finished", ev.Outcome)
	}
	if got := sink.count("turn-1"); got != 1 {
		t.Fatalf("delivered chunks = %d, want 1", got)
	}
}

func TestPlayer_SpeakAfterClose(t *testing.T) {
	provider := &ttsmock.Provider{}
	p := New(provider, tts.Voice{ID: "v1"}, nil, newCollectSink())
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Speak(context.Background(), "turn-1", "hello"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Speak after Close = %v, want ErrClosed", err)
	}
	// Events channel is closed.
	if _, ok := <-p.Events(); ok {
		t.Fatal("Events channel should be closed")
	}
}
