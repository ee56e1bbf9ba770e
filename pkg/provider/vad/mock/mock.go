// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to inject Event responses and inspect the frames that were
// submitted for processing.
package mock

import (
	"sync"

	"github.com/MrWong99/recall/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil, NewSession
	// returns a new default Session.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records the Config of every NewSession call in order.
	NewSessionCalls []vad.Config
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

var _ vad.Engine = (*Engine)(nil)

// Session is a mock implementation of vad.SessionHandle. Queue events via
// Enqueue; ProcessFrame pops one per call and falls back to EventResult when
// the queue is empty.
type Session struct {
	mu sync.Mutex

	// EventResult is returned by ProcessFrame when the queue is empty.
	EventResult vad.Event

	// ProcessFrameErr, if non-nil, is returned by every ProcessFrame call.
	ProcessFrameErr error

	queue []vad.Event

	// ProcessFrameCalls records a copy of every frame passed to ProcessFrame.
	ProcessFrameCalls [][]byte

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Enqueue appends events to be returned by subsequent ProcessFrame calls.
func (s *Session) Enqueue(events ...vad.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, events...)
}

// ProcessFrame records the call and returns the next queued event (or
// EventResult), ProcessFrameErr.
func (s *Session) ProcessFrame(frame []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.ProcessFrameCalls = append(s.ProcessFrameCalls, cp)
	if s.ProcessFrameErr != nil {
		return vad.Event{}, s.ProcessFrameErr
	}
	if len(s.queue) > 0 {
		ev := s.queue[0]
		s.queue = s.queue[1:]
		return ev, nil
	}
	return s.EventResult, nil
}

// Reset records the call by incrementing ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call and returns nil.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return nil
}

var _ vad.SessionHandle = (*Session)(nil)
