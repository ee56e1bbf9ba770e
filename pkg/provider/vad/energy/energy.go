// Package energy implements a pure-Go voice activity detector based on RMS
// frame energy with hysteresis. It implements the vad.Engine interface.
//
// The detector classifies each frame against two thresholds: energy must
// exceed SpeechThreshold for the full start-debounce window before speech is
// confirmed (rejecting coughs and transient noise), and must stay below
// SilenceThreshold for the full hangover window before the segment ends
// (tolerating natural mid-utterance pauses). A ring of recent frames is kept
// while idle so that the audio preceding a confirmed onset can be attached to
// the SpeechStart event — the speech boundary is only known retrospectively.
package energy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/MrWong99/recall/pkg/provider/vad"
)

const (
	defaultStartDebounceMs = 100
	defaultHangoverMs      = 800
	defaultPreRollMs       = 400
)

// Engine implements vad.Engine with the RMS detector. The zero value is ready
// to use.
type Engine struct{}

// Compile-time assertion that Engine satisfies vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// New returns a new energy VAD engine.
func New() *Engine { return &Engine{} }

// NewSession validates cfg, fills defaulted fields, and returns a session
// ready to accept frames.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate %d is invalid", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy: frame size %dms is invalid", cfg.FrameSizeMs)
	}
	if cfg.SpeechThreshold <= 0 || cfg.SpeechThreshold >= 1 {
		return nil, fmt.Errorf("energy: speech threshold %g out of range (0, 1)", cfg.SpeechThreshold)
	}
	if cfg.SilenceThreshold <= 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy: silence threshold %g must be in (0, %g]", cfg.SilenceThreshold, cfg.SpeechThreshold)
	}
	if cfg.StartDebounceMs <= 0 {
		cfg.StartDebounceMs = defaultStartDebounceMs
	}
	if cfg.HangoverMs <= 0 {
		cfg.HangoverMs = defaultHangoverMs
	}
	if cfg.PreRollMs <= 0 {
		cfg.PreRollMs = defaultPreRollMs
	}

	frameBytes := cfg.SampleRate * cfg.FrameSizeMs / 1000 * 2 // mono 16-bit
	return &session{
		cfg:          cfg,
		frameBytes:   frameBytes,
		startFrames:  ceilDiv(cfg.StartDebounceMs, cfg.FrameSizeMs),
		hangFrames:   ceilDiv(cfg.HangoverMs, cfg.FrameSizeMs),
		ringCapacity: ceilDiv(cfg.PreRollMs, cfg.FrameSizeMs),
	}, nil
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// session holds per-stream detection state. Not safe for concurrent use;
// the capture loop is the only caller.
type session struct {
	cfg        vad.Config
	frameBytes int

	startFrames  int
	hangFrames   int
	ringCapacity int

	inSpeech     bool
	speechCount  int
	silenceCount int

	ring   [][]byte // most recent idle frames, oldest first
	closed bool
}

var _ vad.SessionHandle = (*session)(nil)

// ProcessFrame implements vad.SessionHandle.
func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	if s.closed {
		return vad.Event{}, errors.New("energy: session is closed")
	}
	if len(frame) != s.frameBytes {
		return vad.Event{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	level := rms(frame)

	if s.inSpeech {
		if level < s.cfg.SilenceThreshold {
			s.silenceCount++
			if s.silenceCount >= s.hangFrames {
				s.inSpeech = false
				s.silenceCount = 0
				s.speechCount = 0
				return vad.Event{Type: vad.SpeechEnd, Energy: level}, nil
			}
		} else {
			s.silenceCount = 0
		}
		return vad.Event{Type: vad.SpeechContinue, Energy: level}, nil
	}

	// Idle: keep the pre-roll ring current before any decision.
	s.push(frame)

	if level >= s.cfg.SpeechThreshold {
		s.speechCount++
		if s.speechCount >= s.startFrames {
			s.inSpeech = true
			s.speechCount = 0
			s.silenceCount = 0
			pre := s.drainRing()
			return vad.Event{Type: vad.SpeechStart, Energy: level, PreRoll: pre}, nil
		}
	} else {
		s.speechCount = 0
	}
	return vad.Event{Type: vad.Silence, Energy: level}, nil
}

// Reset implements vad.SessionHandle.
func (s *session) Reset() {
	s.inSpeech = false
	s.speechCount = 0
	s.silenceCount = 0
	s.ring = s.ring[:0]
}

// Close implements vad.SessionHandle.
func (s *session) Close() error {
	s.closed = true
	s.ring = nil
	return nil
}

// push appends a copy of frame to the pre-roll ring, evicting the oldest
// entry once the ring is at capacity.
func (s *session) push(frame []byte) {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.ring = append(s.ring, cp)
	if len(s.ring) > s.ringCapacity {
		s.ring = s.ring[1:]
	}
}

// drainRing concatenates and clears the pre-roll ring. The returned slice
// includes the debounce frames that triggered the start decision.
func (s *session) drainRing() []byte {
	var n int
	for _, f := range s.ring {
		n += len(f)
	}
	out := make([]byte, 0, n)
	for _, f := range s.ring {
		out = append(out, f...)
	}
	s.ring = s.ring[:0]
	return out
}

// rms computes the normalised root-mean-square energy of a little-endian
// 16-bit PCM frame, in [0.0, 1.0].
func rms(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(frame[i*2:]))
		v := float64(sample) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
