package audio

import (
	"context"
	"errors"
	"sync"
)

// ErrSessionClosed is returned by Configure after the manager has been closed.
var ErrSessionClosed = errors.New("audio: session manager is closed")

// Mode describes how the audio hardware session is currently configured.
type Mode int

const (
	// ModeNeutral means the session is not configured; neither capture nor
	// playback may run.
	ModeNeutral Mode = iota

	// ModeRecord means the session is configured for microphone capture.
	ModeRecord

	// ModePlayback means the session is configured for speaker output.
	ModePlayback
)

// String returns the human-readable name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeNeutral:
		return "neutral"
	case ModeRecord:
		return "record"
	case ModePlayback:
		return "playback"
	default:
		return "unknown"
	}
}

// InterruptionKind classifies an asynchronous audio session disruption.
type InterruptionKind int

const (
	// InterruptionBegan signals the platform took the session away
	// (incoming call, another app claiming exclusive audio).
	InterruptionBegan InterruptionKind = iota

	// InterruptionEnded signals the session may be reconfigured.
	InterruptionEnded

	// RouteChanged signals the output route changed (headphones unplugged,
	// Bluetooth device connected).
	RouteChanged
)

// Interruption is an asynchronous session disruption event delivered on
// [SessionManager.Interruptions].
type Interruption struct {
	Kind InterruptionKind

	// Reason is a short human-readable description, used in logs.
	Reason string
}

// SessionManager arbitrates the exclusively-owned audio hardware session.
//
// Configure-for-record and configure-for-playback are treated as a lock with a
// single holder: a Configure call blocks until the session is free (or the
// same mode is already held), and Release returns it to neutral. Transitions
// that switch the pipeline between capture and playback must serialise through
// this type.
//
// All methods are safe for concurrent use.
type SessionManager struct {
	mu     sync.Mutex
	cond   *sync.Cond
	mode   Mode
	closed bool

	interruptions chan Interruption
}

// NewSessionManager creates a SessionManager in the neutral mode.
func NewSessionManager() *SessionManager {
	sm := &SessionManager{
		interruptions: make(chan Interruption, 8),
	}
	sm.cond = sync.NewCond(&sm.mu)
	return sm
}

// Configure acquires the session for the given mode. If the session is held in
// a different mode, Configure blocks until the holder releases it or ctx is
// cancelled. Re-configuring into the currently held mode is a no-op.
//
// ModeNeutral is not a valid argument; use [SessionManager.Release].
func (sm *SessionManager) Configure(ctx context.Context, mode Mode) error {
	if mode == ModeNeutral {
		return errors.New("audio: cannot configure neutral mode, use Release")
	}

	// Wake the cond wait when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			sm.cond.Broadcast()
		case <-done:
		}
	}()

	sm.mu.Lock()
	defer sm.mu.Unlock()
	for {
		if sm.closed {
			return ErrSessionClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if sm.mode == ModeNeutral || sm.mode == mode {
			sm.mode = mode
			return nil
		}
		sm.cond.Wait()
	}
}

// Release returns the session to neutral and wakes any blocked Configure
// callers. Releasing an already-neutral session is a no-op.
func (sm *SessionManager) Release() {
	sm.mu.Lock()
	sm.mode = ModeNeutral
	sm.mu.Unlock()
	sm.cond.Broadcast()
}

// Mode returns the currently configured mode.
func (sm *SessionManager) Mode() Mode {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.mode
}

// Ready reports whether the session can be configured right now — i.e. the
// manager is open and not held by a conflicting configuration. Used as a gate
// condition before entering a listening turn.
func (sm *SessionManager) Ready() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return !sm.closed
}

// Interruptions returns the channel on which asynchronous session disruptions
// are delivered. The channel is closed by [SessionManager.Close].
func (sm *SessionManager) Interruptions() <-chan Interruption {
	return sm.interruptions
}

// Notify injects an interruption event. Called by the platform adapter when
// the underlying OS session is disturbed; tests use it to simulate route
// changes and incoming-call interruptions. Events are dropped if the
// consumer is not keeping up.
func (sm *SessionManager) Notify(ev Interruption) {
	sm.mu.Lock()
	closed := sm.closed
	sm.mu.Unlock()
	if closed {
		return
	}
	select {
	case sm.interruptions <- ev:
	default:
	}
}

// Close releases the session and closes the interruption channel. Close is
// safe to call more than once.
func (sm *SessionManager) Close() error {
	sm.mu.Lock()
	if sm.closed {
		sm.mu.Unlock()
		return nil
	}
	sm.closed = true
	sm.mode = ModeNeutral
	sm.mu.Unlock()

	sm.cond.Broadcast()
	close(sm.interruptions)
	return nil
}
