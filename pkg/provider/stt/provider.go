// Package stt defines the Provider interface for streaming Speech-to-Text
// backends.
//
// An STT provider wraps a real-time transcription service and exposes a
// uniform streaming interface. The central abstraction is SessionHandle: once
// opened, a session accepts raw PCM audio frames and emits two streams of
// Transcript values — low-latency partials that extend monotonically while
// the user speaks, and exactly one authoritative final per utterance once the
// session is flushed.
//
// A transcriber being unavailable must never take the voice session down: a
// session that fails mid-stream closes its transcript channels, and the
// caller treats the missing final as an empty transcript (the turn is
// discarded, the session continues).
//
// Implementations must be safe for concurrent use. Audio input and transcript
// output channels are goroutine-safe by construction.
package stt

import (
	"context"
	"time"
)

// StreamConfig describes the audio format and recognition hints for a new
// STT session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (16000 for the capture path).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono, required by most
	// STT providers.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect, if supported.
	Language string

	// Hints is a list of vocabulary boosts for uncommon words such as artist
	// and track names. Providers without hint support ignore the list.
	Hints []string
}

// Transcript is a speech-to-text result. Both partial (interim) and final
// transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is an authoritative final or an interim
	// partial.
	IsFinal bool

	// Confidence is the overall confidence score in [0.0, 1.0]. Zero if the
	// provider does not report confidence.
	Confidence float64

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// SessionHandle represents an open STT streaming session.
//
// Callers must call Close when the session is no longer needed; failing to do
// so may leak goroutines and network connections inside the provider.
// All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio to the provider. The chunk
	// must match the SampleRate and Channels agreed in StreamConfig. Calling
	// SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel emitting interim Transcript values.
	// Suitable for UI feedback; never written to the turn log. Closed when
	// the session ends.
	Partials() <-chan Transcript

	// Finals returns a read-only channel emitting authoritative Transcript
	// values once the provider commits to a result. Closed when the session
	// ends.
	Finals() <-chan Transcript

	// Close flushes pending audio, terminates the session, and releases all
	// resources. After Close returns, Partials and Finals are closed.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
//
// Implementations must be safe for concurrent use; multiple sessions may be
// open simultaneously.
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// SessionHandle is ready to accept audio immediately. Returns an error if
	// the session cannot be established (authentication failure, unsupported
	// configuration, ctx already cancelled).
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
