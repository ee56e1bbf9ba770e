package session

// GateReason identifies which start precondition failed.
type GateReason string

const (
	// GateMicrophoneDenied means the platform microphone permission is not
	// granted.
	GateMicrophoneDenied GateReason = "microphone-denied"

	// GateSpeechPermissionDenied means the speech recognition permission is
	// not granted.
	GateSpeechPermissionDenied GateReason = "speech-permission-denied"

	// GateAlreadyActive means a voice session is already running for this
	// client.
	GateAlreadyActive GateReason = "already-active"

	// GateScrollingInProgress means the client UI is mid-scroll; starting a
	// session now would fight the gesture.
	GateScrollingInProgress GateReason = "scrolling-in-progress"
)

// GateError reports a failed start precondition.
type GateError struct {
	Reason GateReason
}

// Error implements the error interface.
func (e *GateError) Error() string {
	return "session gate failed: " + string(e.Reason)
}

// Unwrap maps permission-related gate failures onto ErrPermissionDenied so
// callers can classify them with errors.Is.
func (e *GateError) Unwrap() error {
	switch e.Reason {
	case GateMicrophoneDenied, GateSpeechPermissionDenied:
		return ErrPermissionDenied
	default:
		return nil
	}
}

// GateState is a snapshot of the client-side preconditions for starting a
// session. It is transient: the orchestrator recomputes it on every start
// attempt and never persists it.
type GateState struct {
	// MicrophoneGranted reports the platform microphone permission.
	MicrophoneGranted bool

	// SpeechRecognitionGranted reports the speech recognition permission.
	SpeechRecognitionGranted bool

	// ScrollingInProgress reports whether the client UI is mid-scroll.
	ScrollingInProgress bool
}

// GateFunc supplies the current GateState. The gateway keeps it up to date
// from client status messages.
type GateFunc func() GateState

// check evaluates the snapshot and returns the first failed gate, or nil.
func (gs GateState) check() *GateError {
	switch {
	case !gs.MicrophoneGranted:
		return &GateError{Reason: GateMicrophoneDenied}
	case !gs.SpeechRecognitionGranted:
		return &GateError{Reason: GateSpeechPermissionDenied}
	case gs.ScrollingInProgress:
		return &GateError{Reason: GateScrollingInProgress}
	default:
		return nil
	}
}
