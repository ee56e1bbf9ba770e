package session

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied means a required platform permission is missing.
	// Fatal for the session; user-actionable.
	ErrPermissionDenied = errors.New("session: permission denied")

	// ErrAudioSessionConflict means the audio hardware session could not be
	// configured. Retryable.
	ErrAudioSessionConflict = errors.New("session: audio session conflict")

	// ErrTranscriptionUnavailable means the transcriber could not be reached
	// or produced no result. Retryable; a missing final degrades to an
	// empty-turn discard instead.
	ErrTranscriptionUnavailable = errors.New("session: transcription unavailable")

	// ErrResolverTimeout means the resolver did not answer within the
	// configured deadline. Retryable.
	ErrResolverTimeout = errors.New("session: resolver timed out")

	// ErrResolverFailure means the resolver call failed or returned a payload
	// that did not match the schema. Retryable.
	ErrResolverFailure = errors.New("session: resolver failed")
)

// InvalidTransitionError reports an event that is not legal in the current
// state. It indicates a programming error, never user input: the orchestrator
// logs it and ignores the event rather than surfacing it to the client.
type InvalidTransitionError struct {
	From  State
	Event string
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("session: event %q not valid in state %s", e.Event, e.From)
}

// Retryable reports whether the user may recover from err by tapping start
// again. Permission failures are not retryable until the user changes the
// platform permission.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrAudioSessionConflict),
		errors.Is(err, ErrTranscriptionUnavailable),
		errors.Is(err, ErrResolverTimeout),
		errors.Is(err, ErrResolverFailure):
		return true
	}
	var ge *GateError
	if errors.As(err, &ge) {
		return ge.Reason == GateAlreadyActive || ge.Reason == GateScrollingInProgress
	}
	return false
}

// errorReason converts err into the short token sent to the client alongside
// an error-state notification.
func errorReason(err error) string {
	var ge *GateError
	if errors.As(err, &ge) {
		return string(ge.Reason)
	}
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "permission-denied"
	case errors.Is(err, ErrAudioSessionConflict):
		return "audio-session-conflict"
	case errors.Is(err, ErrTranscriptionUnavailable):
		return "transcription-unavailable"
	case errors.Is(err, ErrResolverTimeout):
		return "resolver-timeout"
	case errors.Is(err, ErrResolverFailure):
		return "resolver-failure"
	default:
		return "internal-error"
	}
}
