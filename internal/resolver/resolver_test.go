package resolver

import (
	"errors"
	"strings"
	"testing"
)

func TestParseResponse_Valid(t *testing.T) {
	raw := []byte(`{
		"status": "done",
		"responseType": "both",
		"assistantMessage": {"role": "assistant", "text": "Found it!"},
		"candidates": [
			{"title": "Karma Police", "artist": "Radiohead", "confidence": 0.92, "sources": ["setlist"]}
		]
	}`)

	resp, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != StatusDone {
		t.Errorf("Status = %q, want done", resp.Status)
	}
	if resp.AssistantMessage.Text != "Found it!" {
		t.Errorf("AssistantMessage.Text = %q", resp.AssistantMessage.Text)
	}
	if len(resp.Candidates) != 1 || resp.Candidates[0].Title != "Karma Police" {
		t.Errorf("Candidates = %+v", resp.Candidates)
	}
}

func TestParseResponse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `the song is karma police`},
		{"unknown field", `{"status":"done","surprise":true}`},
		{"unknown status", `{"status":"thinking"}`},
		{"unknown response type", `{"status":"done","responseType":"telepathy"}`},
		{"confidence above one", `{"status":"done","candidates":[{"title":"X","artist":"Y","confidence":1.5}]}`},
		{"negative confidence", `{"status":"done","candidates":[{"title":"X","artist":"Y","confidence":-0.1}]}`},
		{"empty candidate title", `{"status":"done","candidates":[{"title":"","artist":"Y","confidence":0.5}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse([]byte(tt.raw))
			if err == nil {
				t.Fatal("expected error")
			}
			var malformed *MalformedError
			if !errors.As(err, &malformed) {
				t.Fatalf("err = %T, want *MalformedError", err)
			}
			if string(malformed.Raw) != tt.raw {
				t.Error("MalformedError.Raw should carry the original payload")
			}
		})
	}
}

func TestResponse_Intent(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want Intent
	}{
		{
			name: "failed maps to ask-crowd",
			resp: Response{Status: StatusFailed},
			want: IntentAskCrowd,
		},
		{
			name: "candidates map to song identification",
			resp: Response{Status: StatusDone, Candidates: []Candidate{{Title: "X"}}},
			want: IntentSongIdentification,
		},
		{
			name: "plain answer is conversation",
			resp: Response{Status: StatusDone, AssistantMessage: AssistantMessage{Text: "hi"}},
			want: IntentConversation,
		},
		{
			name: "refining without candidates is conversation",
			resp: Response{Status: StatusRefining, FollowUpQuestion: "which stage?"},
			want: IntentConversation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.resp.Intent(); got != tt.want {
				t.Errorf("Intent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResponse_SpokenText(t *testing.T) {
	t.Run("assistant message wins", func(t *testing.T) {
		r := Response{
			AssistantMessage: AssistantMessage{Text: "That's Karma Police."},
			Candidates:       []Candidate{{Title: "Karma Police", Artist: "Radiohead"}},
		}
		if got := r.SpokenText(); got != "That's Karma Police." {
			t.Errorf("SpokenText() = %q", got)
		}
	})

	t.Run("top candidate summary", func(t *testing.T) {
		r := Response{Candidates: []Candidate{{Title: "Karma Police", Artist: "Radiohead", Confidence: 0.9}}}
		got := r.SpokenText()
		if !strings.Contains(got, "Karma Police") || !strings.Contains(got, "Radiohead") {
			t.Errorf("SpokenText() = %q, want title and artist mentioned", got)
		}
	})

	t.Run("follow-up question", func(t *testing.T) {
		r := Response{Status: StatusRefining, FollowUpQuestion: "Which stage are you at?"}
		if got := r.SpokenText(); got != "Which stage are you at?" {
			t.Errorf("SpokenText() = %q", got)
		}
	})

	t.Run("empty response has a fallback line", func(t *testing.T) {
		r := Response{Status: StatusFailed}
		if got := r.SpokenText(); got == "" {
			t.Error("SpokenText() should never be empty")
		}
	})
}
