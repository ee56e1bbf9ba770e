// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service and presents a uniform
// streaming interface: SynthesizeStream accepts a channel of text fragments
// and returns a channel of raw PCM audio bytes as they become available,
// enabling playback to begin before synthesis of the full response finishes.
//
// Cancellation is channel-based by design: closing (or cancelling the context
// of) a synthesis stream stops audio production, and the caller drains the
// audio channel. The player built on top of this interface is responsible for
// the exactly-one-completion-event and idempotent-cancel semantics the
// session orchestrator relies on.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Voice describes a synthesis voice configuration.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS backend this voice belongs to.
	Provider string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 0 = provider default).
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel emitting raw PCM audio byte slices as they are
	// synthesised.
	//
	// The returned audio channel is closed by the implementation when all
	// text has been synthesised or when ctx is cancelled. The caller must
	// drain the audio channel to avoid blocking the provider's internal
	// goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// during synthesis are signalled by closing the audio channel early;
	// callers should check ctx.Err() to distinguish cancellation from
	// provider failure.
	SynthesizeStream(ctx context.Context, text <-chan string, voice Voice) (<-chan []byte, error)

	// Voices returns all voice profiles available from this provider.
	Voices(ctx context.Context) ([]Voice, error)
}
