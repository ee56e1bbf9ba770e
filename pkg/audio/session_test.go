package audio

import (
	"context"
	"testing"
	"time"
)

func TestSessionManagerMutualExclusion(t *testing.T) {
	t.Parallel()

	sm := NewSessionManager()
	t.Cleanup(func() { _ = sm.Close() })

	if err := sm.Configure(context.Background(), ModeRecord); err != nil {
		t.Fatalf("configure record: %v", err)
	}
	if got := sm.Mode(); got != ModeRecord {
		t.Fatalf("mode = %v, want record", got)
	}

	// A conflicting configure must block until release.
	acquired := make(chan struct{})
	go func() {
		if err := sm.Configure(context.Background(), ModePlayback); err != nil {
			t.Errorf("configure playback: %v", err)
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("playback configure succeeded while record was held")
	case <-time.After(50 * time.Millisecond):
	}

	sm.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("playback configure did not proceed after release")
	}
	if got := sm.Mode(); got != ModePlayback {
		t.Fatalf("mode = %v, want playback", got)
	}
}

func TestSessionManagerReconfigureSameModeIsNoop(t *testing.T) {
	t.Parallel()

	sm := NewSessionManager()
	t.Cleanup(func() { _ = sm.Close() })

	if err := sm.Configure(context.Background(), ModeRecord); err != nil {
		t.Fatalf("first configure: %v", err)
	}
	if err := sm.Configure(context.Background(), ModeRecord); err != nil {
		t.Fatalf("second configure (same mode): %v", err)
	}
}

func TestSessionManagerConfigureRespectsContext(t *testing.T) {
	t.Parallel()

	sm := NewSessionManager()
	t.Cleanup(func() { _ = sm.Close() })

	if err := sm.Configure(context.Background(), ModePlayback); err != nil {
		t.Fatalf("configure: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := sm.Configure(ctx, ModeRecord)
	if err == nil {
		t.Fatal("expected context error, got nil")
	}
}

func TestSessionManagerNotifyDeliversInterruptions(t *testing.T) {
	t.Parallel()

	sm := NewSessionManager()
	t.Cleanup(func() { _ = sm.Close() })

	sm.Notify(Interruption{Kind: RouteChanged, Reason: "headphones unplugged"})

	select {
	case ev := <-sm.Interruptions():
		if ev.Kind != RouteChanged {
			t.Fatalf("kind = %v, want RouteChanged", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no interruption delivered")
	}
}

func TestSessionManagerCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	sm := NewSessionManager()
	if err := sm.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := sm.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := sm.Configure(context.Background(), ModeRecord); err != ErrSessionClosed {
		t.Fatalf("configure after close = %v, want ErrSessionClosed", err)
	}
}

func TestFrameDuration(t *testing.T) {
	t.Parallel()

	// 20 ms of 16 kHz mono 16-bit audio = 320 samples = 640 bytes.
	f := Frame{PCM: make([]byte, 640), SampleRate: 16000, Channels: 1}
	if got := f.Duration(); got != 20*time.Millisecond {
		t.Fatalf("duration = %v, want 20ms", got)
	}

	if got := (Frame{PCM: make([]byte, 640)}).Duration(); got != 0 {
		t.Fatalf("duration without format = %v, want 0", got)
	}
}
