package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/recall/internal/resolver"
	"github.com/MrWong99/recall/pkg/memory"
)

// Utterance is one bounded span of user speech, from detected start to
// detected end. The orchestrator holds at most one open Utterance at a time.
type Utterance struct {
	// ID uniquely identifies the utterance.
	ID string

	// ThreadID is the conversation thread the utterance belongs to.
	ThreadID string

	// PreRoll is the audio buffered immediately before the confirmed speech
	// onset.
	PreRoll []byte

	// Transcript is the finalised text. Empty until the transcriber commits.
	Transcript string

	// StartedAt is when speech onset was confirmed.
	StartedAt time.Time

	// FinalizedAt is when the final transcript was accepted.
	FinalizedAt time.Time
}

// AssistantTurn is the assistant's reply to one utterance. It is immutable
// once built from the resolver response.
type AssistantTurn struct {
	// ID uniquely identifies the turn; playback events reference it.
	ID string

	// ThreadID is the conversation thread the turn belongs to.
	ThreadID string

	// Text is what the assistant speaks.
	Text string

	// Intent classifies the reply.
	Intent resolver.Intent

	// Candidates are the song identifications attached to the reply, best
	// first.
	Candidates []resolver.Candidate

	// FollowUpQuestion is set when the resolver needs more input.
	FollowUpQuestion string

	// Status is the resolver's reported outcome.
	Status resolver.Status

	// CreatedAt is when the resolver response was accepted.
	CreatedAt time.Time
}

// newAssistantTurn builds an AssistantTurn from a resolver response.
func newAssistantTurn(threadID string, resp *resolver.Response) *AssistantTurn {
	return &AssistantTurn{
		ID:               uuid.NewString(),
		ThreadID:         threadID,
		Text:             resp.SpokenText(),
		Intent:           resp.Intent(),
		Candidates:       resp.Candidates,
		FollowUpQuestion: resp.FollowUpQuestion,
		Status:           resp.Status,
		CreatedAt:        time.Now(),
	}
}

// record converts the turn into its persisted form.
func (t *AssistantTurn) record(duration time.Duration) memory.TurnRecord {
	candidates := make([]memory.SongCandidate, 0, len(t.Candidates))
	for _, c := range t.Candidates {
		candidates = append(candidates, memory.SongCandidate{
			Title:      c.Title,
			Artist:     c.Artist,
			Confidence: c.Confidence,
			Sources:    c.Sources,
		})
	}
	return memory.TurnRecord{
		ThreadID:   t.ThreadID,
		Role:       memory.RoleAssistant,
		Text:       t.Text,
		Intent:     string(t.Intent),
		Candidates: candidates,
		Timestamp:  t.CreatedAt,
		Duration:   duration,
	}
}
