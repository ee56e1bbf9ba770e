package gateway

import (
	"github.com/MrWong99/recall/internal/resolver"
	"github.com/MrWong99/recall/internal/session"
)

// Client-to-server control message types.
const (
	msgTapStart          = "tap-start"
	msgTapStop           = "tap-stop"
	msgTapExit           = "tap-exit"
	msgMute              = "mute"
	msgUnmute            = "unmute"
	msgGateState         = "gate-state"
	msgPermissionRevoked = "permission-revoked"
)

// Server-to-client message types.
const (
	msgState             = "state"
	msgPartialTranscript = "partial-transcript"
	msgFinalTranscript   = "final-transcript"
	msgAssistantTurn     = "assistant-turn"
)

// clientMessage is a JSON control frame from the client. Binary frames carry
// raw PCM capture audio instead.
type clientMessage struct {
	// Type selects the action (tap-start, tap-stop, tap-exit, mute, unmute,
	// gate-state, permission-revoked).
	Type string `json:"type"`

	// Gate updates the start preconditions. Sent with gate-state and
	// optionally piggybacked on tap-start.
	Gate *gatePayload `json:"gate,omitempty"`

	// Reason names the revoked permission for permission-revoked.
	Reason string `json:"reason,omitempty"`
}

// gatePayload mirrors session.GateState on the wire.
type gatePayload struct {
	MicrophoneGranted        bool `json:"microphoneGranted"`
	SpeechRecognitionGranted bool `json:"speechRecognitionGranted"`
	ScrollingInProgress      bool `json:"scrollingInProgress"`
}

func (p *gatePayload) state() session.GateState {
	return session.GateState{
		MicrophoneGranted:        p.MicrophoneGranted,
		SpeechRecognitionGranted: p.SpeechRecognitionGranted,
		ScrollingInProgress:      p.ScrollingInProgress,
	}
}

// serverMessage is a JSON frame from the server. Binary frames carry
// synthesized PCM playback audio instead.
type serverMessage struct {
	// Type selects the payload (state, partial-transcript, final-transcript,
	// assistant-turn).
	Type string `json:"type"`

	// State is the session state name for Type "state".
	State string `json:"state,omitempty"`

	// Reason carries the gate or error token for error states and the mute
	// marker.
	Reason string `json:"reason,omitempty"`

	// Retryable reports, for error states, whether tapping start again may
	// succeed.
	Retryable bool `json:"retryable,omitempty"`

	// Transcript carries partial or final transcript text.
	Transcript string `json:"transcript,omitempty"`

	// Turn carries the assistant reply for Type "assistant-turn".
	Turn *turnPayload `json:"turn,omitempty"`
}

// turnPayload is the wire form of an assistant turn.
type turnPayload struct {
	ID               string               `json:"id"`
	ThreadID         string               `json:"threadId"`
	Text             string               `json:"text"`
	Intent           string               `json:"intent"`
	Status           string               `json:"status"`
	FollowUpQuestion string               `json:"followUpQuestion,omitempty"`
	Candidates       []resolver.Candidate `json:"candidates,omitempty"`
}

// encodeNotification translates a session notification into its wire form.
// Returns false for notifications with no wire representation.
func encodeNotification(n session.Notification) (serverMessage, bool) {
	switch n.Kind {
	case session.NotifyState:
		return serverMessage{
			Type:      msgState,
			State:     n.State.String(),
			Reason:    n.Reason,
			Retryable: n.Retryable,
		}, true
	case session.NotifyPartialTranscript:
		return serverMessage{Type: msgPartialTranscript, Transcript: n.Transcript}, true
	case session.NotifyFinalTranscript:
		return serverMessage{Type: msgFinalTranscript, Transcript: n.Transcript}, true
	case session.NotifyAssistantTurn:
		if n.Turn == nil {
			return serverMessage{}, false
		}
		return serverMessage{
			Type: msgAssistantTurn,
			Turn: &turnPayload{
				ID:               n.Turn.ID,
				ThreadID:         n.Turn.ThreadID,
				Text:             n.Turn.Text,
				Intent:           string(n.Turn.Intent),
				Status:           string(n.Turn.Status),
				FollowUpQuestion: n.Turn.FollowUpQuestion,
				Candidates:       n.Turn.Candidates,
			},
		}, true
	default:
		return serverMessage{}, false
	}
}
