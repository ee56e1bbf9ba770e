package memory

import "time"

// Role identifies who produced a turn in a thread.
type Role string

const (
	// RoleUser marks a turn created from a finalised user utterance.
	RoleUser Role = "user"

	// RoleAssistant marks a turn created from a resolver response.
	RoleAssistant Role = "assistant"
)

// Thread is one conversation between a client and the assistant. A thread
// outlives individual voice sessions so a user can resume a conversation;
// exiting a session archives its thread.
type Thread struct {
	// ID is the unique thread identifier (a UUID).
	ID string

	// ClientID identifies the device or user the thread belongs to.
	ClientID string

	// Archived is set when the owning session exits. Archived threads are
	// kept for history but no longer receive turns.
	Archived bool

	// CreatedAt is when the thread was opened.
	CreatedAt time.Time

	// UpdatedAt is when the thread last received a turn or was archived.
	UpdatedAt time.Time
}

// SongCandidate is a persisted song identification attached to an assistant
// turn. It mirrors the resolver's candidate shape without depending on it.
type SongCandidate struct {
	// Title is the song title.
	Title string `json:"title"`

	// Artist is the performing artist.
	Artist string `json:"artist"`

	// Confidence is the resolver's confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Sources cites where the candidate came from.
	Sources []string `json:"sources,omitempty"`
}

// TurnRecord is one persisted turn of a thread: either a finalised user
// utterance or the assistant's spoken reply.
type TurnRecord struct {
	// ThreadID is the owning thread.
	ThreadID string

	// Role says whether the user or the assistant produced the turn.
	Role Role

	// Text is the transcript (user) or spoken response text (assistant).
	Text string

	// Intent is the resolver's classification for assistant turns
	// (conversation, song-identification, ask-crowd-fallback). Empty for
	// user turns.
	Intent string

	// Candidates are the song identifications attached to an assistant
	// turn, best first.
	Candidates []SongCandidate

	// Timestamp is when the turn completed.
	Timestamp time.Time

	// Duration is how long the turn took end to end (capture to playback
	// for assistant turns, speech length for user turns).
	Duration time.Duration
}
