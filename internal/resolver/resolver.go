// Package resolver defines the client side of the external resolver, the
// collaborator that turns a finalised transcript into a structured assistant
// response (answer text, song candidates, a follow-up question or an
// ask-the-crowd fallback).
//
// The wire schema is decoded strictly: a payload that does not match the
// schema is reported as a [MalformedError] carrying the raw body instead of
// being probed field by field.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Status reports how far the resolver got with a request.
type Status string

const (
	// StatusDone means the resolver produced a final answer.
	StatusDone Status = "done"

	// StatusRefining means the resolver needs more input and has attached a
	// follow-up question.
	StatusRefining Status = "refining"

	// StatusFailed means the resolver could not produce an answer; the
	// assistant falls back to asking the crowd.
	StatusFailed Status = "failed"
)

// ResponseType describes which part of a response carries the payload.
type ResponseType string

const (
	// TypeAnswer means only the assistant message is populated.
	TypeAnswer ResponseType = "answer"

	// TypeSearch means only the candidate list is populated.
	TypeSearch ResponseType = "search"

	// TypeBoth means the assistant message and candidates are both populated.
	TypeBoth ResponseType = "both"
)

// Intent is the classification of an assistant turn derived from the
// resolver response.
type Intent string

const (
	// IntentConversation is a plain conversational reply.
	IntentConversation Intent = "conversation"

	// IntentSongIdentification is a reply carrying song candidates.
	IntentSongIdentification Intent = "song-identification"

	// IntentAskCrowd is the fallback when the resolver failed and the
	// question is handed to the crowd instead.
	IntentAskCrowd Intent = "ask-crowd-fallback"
)

// Attachment is an optional image attached to a request.
type Attachment struct {
	// MIMEType is the content type, e.g. "image/jpeg".
	MIMEType string `json:"mimeType"`
	// Data is the raw bytes; encoded as base64 on the wire.
	Data []byte `json:"data"`
}

// Request is the payload sent to the resolver for one utterance.
type Request struct {
	// Transcript is the finalised utterance text. Never empty; the
	// orchestrator discards silence-only captures before reaching here.
	Transcript string `json:"transcript"`
	// ThreadID ties the request to a conversation thread.
	ThreadID string `json:"threadId"`
	// Attachments are optional images (e.g. a photo of the stage).
	Attachments []Attachment `json:"attachments,omitempty"`
}

// AssistantMessage is the conversational part of a resolver response.
type AssistantMessage struct {
	// Role is the speaker role, normally "assistant".
	Role string `json:"role,omitempty"`
	// Text is the message to speak.
	Text string `json:"text"`
}

// Candidate is one possible song identification.
type Candidate struct {
	// Title is the song title.
	Title string `json:"title"`
	// Artist is the performing artist.
	Artist string `json:"artist"`
	// Confidence is the resolver's confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// Sources cites where the candidate came from.
	Sources []string `json:"sources,omitempty"`
}

// Response is the structured resolver reply for one utterance.
type Response struct {
	// Status reports whether the resolver finished, needs refinement or
	// failed.
	Status Status `json:"status"`
	// ResponseType says which payload parts are populated.
	ResponseType ResponseType `json:"responseType"`
	// AssistantMessage is the conversational reply, if any.
	AssistantMessage AssistantMessage `json:"assistantMessage,omitzero"`
	// Candidates lists possible song identifications, best first.
	Candidates []Candidate `json:"candidates,omitempty"`
	// FollowUpQuestion is set when Status is "refining".
	FollowUpQuestion string `json:"followUpQuestion,omitempty"`
}

// Intent classifies the response for the assistant turn.
func (r *Response) Intent() Intent {
	switch {
	case r.Status == StatusFailed:
		return IntentAskCrowd
	case len(r.Candidates) > 0:
		return IntentSongIdentification
	default:
		return IntentConversation
	}
}

// SpokenText builds the text an assistant turn should speak for this
// response. The assistant message wins; without one a summary of the top
// candidate or the follow-up question is used.
func (r *Response) SpokenText() string {
	if t := strings.TrimSpace(r.AssistantMessage.Text); t != "" {
		return t
	}
	if len(r.Candidates) > 0 {
		top := r.Candidates[0]
		if top.Artist != "" {
			return fmt.Sprintf("That sounds like %s by %s.", top.Title, top.Artist)
		}
		return fmt.Sprintf("That sounds like %s.", top.Title)
	}
	if q := strings.TrimSpace(r.FollowUpQuestion); q != "" {
		return q
	}
	return "I couldn't figure that one out. Want me to ask the crowd?"
}

// MalformedError reports a resolver payload that did not match the schema.
// Raw carries the original body so it can be logged or surfaced for
// debugging without another read of the stream.
type MalformedError struct {
	Raw json.RawMessage
	Err error
}

// Error implements the error interface.
func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed resolver response: %v", e.Err)
}

// Unwrap returns the underlying decode or validation error.
func (e *MalformedError) Unwrap() error { return e.Err }

// ParseResponse decodes a resolver payload strictly. Unknown fields, unknown
// enum values and out-of-range confidences all yield a [MalformedError]
// wrapping the raw payload.
func ParseResponse(raw []byte) (*Response, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var resp Response
	if err := dec.Decode(&resp); err != nil {
		return nil, &MalformedError{Raw: append([]byte(nil), raw...), Err: err}
	}
	if err := resp.validate(); err != nil {
		return nil, &MalformedError{Raw: append([]byte(nil), raw...), Err: err}
	}
	return &resp, nil
}

// validate checks enum values and candidate ranges.
func (r *Response) validate() error {
	switch r.Status {
	case StatusDone, StatusRefining, StatusFailed:
	default:
		return fmt.Errorf("unknown status %q", r.Status)
	}
	switch r.ResponseType {
	case TypeAnswer, TypeSearch, TypeBoth, "":
	default:
		return fmt.Errorf("unknown responseType %q", r.ResponseType)
	}
	for i, c := range r.Candidates {
		if c.Title == "" {
			return fmt.Errorf("candidate %d: empty title", i)
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			return fmt.Errorf("candidate %d: confidence %v out of [0,1]", i, c.Confidence)
		}
	}
	return nil
}

// Resolver turns one finalised transcript into a structured response. The
// call is a single attempt; retry policy belongs to the caller's client
// configuration, never to the session state machine.
type Resolver interface {
	Resolve(ctx context.Context, req Request) (*Response, error)
}
