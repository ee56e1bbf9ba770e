package vad

// Event represents a voice activity detection result for a single audio frame.
type Event struct {
	// Type is the detection result.
	Type EventType

	// Energy is the normalised frame energy in [0.0, 1.0] that produced the
	// decision. Useful for logging and threshold tuning.
	Energy float64

	// PreRoll carries the buffered PCM audio immediately preceding a
	// confirmed speech onset. Non-nil only when Type is SpeechStart. The
	// slice is owned by the caller after ProcessFrame returns.
	PreRoll []byte
}

// EventType enumerates VAD detection states.
type EventType int

const (
	// Silence indicates no speech detected.
	Silence EventType = iota

	// SpeechStart indicates speech has just been confirmed after the start
	// debounce window.
	SpeechStart

	// SpeechContinue indicates ongoing speech.
	SpeechContinue

	// SpeechEnd indicates the hangover silence window elapsed after a
	// confirmed speech segment.
	SpeechEnd
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case Silence:
		return "silence"
	case SpeechStart:
		return "speech-start"
	case SpeechContinue:
		return "speech-continue"
	case SpeechEnd:
		return "speech-end"
	default:
		return "unknown"
	}
}
