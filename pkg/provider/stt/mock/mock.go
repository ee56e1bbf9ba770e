// Package mock provides test doubles for the stt package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/recall/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by StartStream. If nil, a new default Session is
	// created (and recorded in Sessions).
	Session *Session

	// StartStreamErr, if non-nil, is returned by StartStream.
	StartStreamErr error

	// StartStreamCalls records the StreamConfig of every call in order.
	StartStreamCalls []stt.StreamConfig

	// Sessions records every session handed out by StartStream.
	Sessions []*Session
}

// StartStream records the call and returns Session (or a fresh Session),
// StartStreamErr.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, cfg)
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	sess := p.Session
	if sess == nil {
		sess = NewSession()
	}
	p.Sessions = append(p.Sessions, sess)
	return sess, nil
}

var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle. Tests drive the
// transcript channels directly via EmitPartial and EmitFinal.
type Session struct {
	mu sync.Mutex

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SendAudioCalls records a copy of every chunk passed to SendAudio.
	SendAudioCalls [][]byte

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	partials chan stt.Transcript
	finals   chan stt.Transcript
	closed   bool
}

// NewSession creates a Session with buffered transcript channels.
func NewSession() *Session {
	return &Session{
		partials: make(chan stt.Transcript, 16),
		finals:   make(chan stt.Transcript, 16),
	}
}

// SendAudio records the chunk and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, cp)
	return s.SendAudioErr
}

// SendAudioCallCount returns the number of SendAudio calls so far.
func (s *Session) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// Partials returns the partial transcript channel.
func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the final transcript channel.
func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// EmitPartial pushes an interim transcript to the Partials channel.
func (s *Session) EmitPartial(text string) {
	s.partials <- stt.Transcript{Text: text}
}

// EmitFinal pushes an authoritative transcript to the Finals channel.
func (s *Session) EmitFinal(text string, confidence float64) {
	s.finals <- stt.Transcript{Text: text, IsFinal: true, Confidence: confidence}
}

// Close records the call and closes both transcript channels exactly once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if !s.closed {
		s.closed = true
		close(s.partials)
		close(s.finals)
	}
	return nil
}

var _ stt.SessionHandle = (*Session)(nil)
