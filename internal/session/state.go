package session

// State is the orchestrator's position in the voice turn lifecycle.
type State int

const (
	// StateIdle means no voice session is active.
	StateIdle State = iota

	// StateArmed means the start gates passed and the audio session is being
	// configured for capture.
	StateArmed

	// StateListening means capture is live and the detector is watching for
	// speech.
	StateListening

	// StateProcessing means a finalised utterance is at the resolver.
	StateProcessing

	// StateResponding means the assistant's reply is being spoken.
	StateResponding

	// StateInterrupted means a barge-in was detected and playback cancellation
	// is being awaited.
	StateInterrupted

	// StateError means the session failed; the user may tap start to retry.
	StateError
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateResponding:
		return "responding"
	case StateInterrupted:
		return "interrupted"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
