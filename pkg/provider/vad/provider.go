// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector and surfaces it as a
// stateful, per-stream session. Each session maintains its own internal state
// (energy history, debounce counters, pre-roll ring) so that multiple
// concurrent audio streams can be processed independently.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a
// detection result, making it suitable for the low-latency capture loop that
// gates transcriber finalisation and turn-taking. The event stream a session
// produces is deliberately context-free: whether a SpeechStart during
// assistant playback counts as a barge-in is decided by the session
// orchestrator, not here.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

// Config holds the tuning parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to ProcessFrame. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. The
	// detector operates on fixed frame sizes (e.g., 10, 20, or 30 ms) and
	// ProcessFrame returns an error on a frame of the wrong length.
	FrameSizeMs int

	// SpeechThreshold is the normalised energy above which a frame is
	// classified as speech. Range: (0.0, 1.0). Typical: 0.015.
	SpeechThreshold float64

	// SilenceThreshold is the normalised energy below which a frame is
	// classified as silence. Must be ≤ SpeechThreshold so that detection has
	// hysteresis. Typical: 0.008.
	SilenceThreshold float64

	// StartDebounceMs is how long energy must stay above SpeechThreshold
	// before SpeechStart is emitted, rejecting transient noise. Default 100.
	StartDebounceMs int

	// HangoverMs is how long silence must persist after confirmed speech
	// before SpeechEnd is emitted. This is the turn-taking silence timeout;
	// the supported range is roughly 700–900 ms. Default 800.
	HangoverMs int

	// PreRollMs is how much audio immediately preceding a confirmed
	// SpeechStart is buffered and attached to the event, since the speech
	// boundary is only known retrospectively. Default 400.
	PreRollMs int
}

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply mock implementations
// without a live detector. Reset clears detection state without closing the
// session.
//
// A SessionHandle must not be shared between goroutines unless the
// implementation explicitly guarantees concurrent safety.
type SessionHandle interface {
	// ProcessFrame analyses a single audio frame and returns the detection
	// result. The frame must be raw little-endian 16-bit PCM at the
	// configured SampleRate and FrameSizeMs. This method is called
	// synchronously in the capture loop and must not block.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears all accumulated detection state (energy counters, pre-roll
	// ring) without closing the session. Use this when the audio stream is
	// interrupted or a new utterance turn begins.
	Reset()

	// Close releases all resources associated with the session. After Close,
	// ProcessFrame must return an error. Calling Close more than once is safe
	// and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration,
	// immediately ready to accept audio frames. Returns an error if the
	// configuration is invalid.
	NewSession(cfg Config) (SessionHandle, error)
}
