package session

import (
	"github.com/MrWong99/recall/internal/player"
	"github.com/MrWong99/recall/internal/resolver"
	"github.com/MrWong99/recall/pkg/audio"
	"github.com/MrWong99/recall/pkg/provider/stt"
)

// NotificationKind distinguishes the notification payloads the orchestrator
// emits towards the client.
type NotificationKind int

const (
	// NotifyState signals a state transition.
	NotifyState NotificationKind = iota

	// NotifyPartialTranscript carries an interim transcript for live UI
	// feedback.
	NotifyPartialTranscript

	// NotifyFinalTranscript carries the committed transcript of an utterance.
	NotifyFinalTranscript

	// NotifyAssistantTurn carries the assistant's reply, including any song
	// candidates, as playback begins.
	NotifyAssistantTurn
)

// String returns the wire name of the notification kind.
func (k NotificationKind) String() string {
	switch k {
	case NotifyState:
		return "state"
	case NotifyPartialTranscript:
		return "partial-transcript"
	case NotifyFinalTranscript:
		return "final-transcript"
	case NotifyAssistantTurn:
		return "assistant-turn"
	default:
		return "unknown"
	}
}

// Notification is an asynchronous update the orchestrator publishes on
// [Orchestrator.Notifications]. Fields beyond Kind and State are populated
// per kind.
type Notification struct {
	// Kind says which payload fields are set.
	Kind NotificationKind

	// State is the orchestrator state at emission time.
	State State

	// Reason carries the gate or error token for error-state transitions and
	// the mute marker for mute transitions.
	Reason string

	// Retryable reports, for error-state transitions, whether tapping start
	// again may succeed.
	Retryable bool

	// Transcript carries partial or final transcript text.
	Transcript string

	// Turn carries the assistant reply for NotifyAssistantTurn.
	Turn *AssistantTurn
}

// eventKind enumerates the inputs feeding the orchestrator's event loop.
type eventKind int

const (
	evTapStart eventKind = iota
	evTapStop
	evTapExit
	evMute
	evUnmute
	evPermissionRevoked
	evSpeechStart
	evSpeechEnd
	evPartial
	evFinal
	evFinalTimeout
	evResolved
	evResolveFailed
	evPlayback
	evCaptureFailed
	evInterruption
)

// String returns the event name used in transition logs.
func (k eventKind) String() string {
	switch k {
	case evTapStart:
		return "userTappedStart"
	case evTapStop:
		return "userTappedStop"
	case evTapExit:
		return "userTappedExit"
	case evMute:
		return "userTappedMute"
	case evUnmute:
		return "userTappedUnmute"
	case evPermissionRevoked:
		return "permissionRevoked"
	case evSpeechStart:
		return "vadSpeechStart"
	case evSpeechEnd:
		return "vadSpeechEnd"
	case evPartial:
		return "partialTranscript"
	case evFinal:
		return "finalTranscript"
	case evFinalTimeout:
		return "finalTranscriptTimeout"
	case evResolved:
		return "resolverResponseReady"
	case evResolveFailed:
		return "resolverError"
	case evPlayback:
		return "playbackEvent"
	case evCaptureFailed:
		return "captureFailed"
	case evInterruption:
		return "audioSessionInterruption"
	default:
		return "unknown"
	}
}

// event is one unit of work for the orchestrator loop. gen ties capture
// events to the capture pipeline that produced them; seq ties resolver
// results to the utterance that requested them. Stale values are dropped.
type event struct {
	kind eventKind
	gen  uint64
	seq  uint64

	preRoll      []byte
	transcript   stt.Transcript
	resp         *resolver.Response
	err          error
	playback     player.Event
	interruption audio.Interruption
	gateReason   GateReason
}
