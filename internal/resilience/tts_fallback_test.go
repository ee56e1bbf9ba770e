package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/recall/pkg/provider/tts"
	ttsmock "github.com/MrWong99/recall/pkg/provider/tts/mock"
)

func TestTTSFallback_PrimarySuccess(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeChunks: [][]byte{[]byte("a1")}}
	secondary := &ttsmock.Provider{SynthesizeChunks: [][]byte{[]byte("b1")}}

	f := NewTTSFallback(primary, "eleven", FallbackConfig{
		CircuitBreaker: BreakerConfig{MaxFailures: 3},
	})
	f.AddFallback("openai", secondary)

	text := make(chan string)
	close(text)
	ch, err := f.SynthesizeStream(context.Background(), text, tts.Voice{ID: "v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []byte
	for chunk := range ch {
		got = append(got, chunk...)
	}
	if string(got) != "a1" {
		t.Fatalf("audio = %q, want a1 (from primary)", got)
	}
	if len(secondary.SynthesizeStreamCalls) != 0 {
		t.Fatal("secondary should not have been called")
	}
}

func TestTTSFallback_FailoverToSecondary(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("handshake failed")}
	secondary := &ttsmock.Provider{SynthesizeChunks: [][]byte{[]byte("b1")}}

	f := NewTTSFallback(primary, "eleven", FallbackConfig{
		CircuitBreaker: BreakerConfig{MaxFailures: 3},
	})
	f.AddFallback("openai", secondary)

	text := make(chan string)
	close(text)
	ch, err := f.SynthesizeStream(context.Background(), text, tts.Voice{ID: "v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []byte
	for chunk := range ch {
		got = append(got, chunk...)
	}
	if string(got) != "b1" {
		t.Fatalf("audio = %q, want b1 (from fallback)", got)
	}
	if len(primary.SynthesizeStreamCalls) != 1 {
		t.Fatalf("primary calls = %d, want 1", len(primary.SynthesizeStreamCalls))
	}
}

func TestTTSFallback_AllFail(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("down")}
	secondary := &ttsmock.Provider{SynthesizeErr: errors.New("also down")}

	f := NewTTSFallback(primary, "eleven", FallbackConfig{
		CircuitBreaker: BreakerConfig{MaxFailures: 3},
	})
	f.AddFallback("openai", secondary)

	text := make(chan string)
	close(text)
	_, err := f.SynthesizeStream(context.Background(), text, tts.Voice{ID: "v1"})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTTSFallback_Voices(t *testing.T) {
	primary := &ttsmock.Provider{VoicesErr: errors.New("down")}
	secondary := &ttsmock.Provider{VoicesResult: []tts.Voice{{ID: "v2", Name: "Nova"}}}

	f := NewTTSFallback(primary, "eleven", FallbackConfig{
		CircuitBreaker: BreakerConfig{MaxFailures: 3},
	})
	f.AddFallback("openai", secondary)

	voices, err := f.Voices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "v2" {
		t.Fatalf("voices = %+v, want single v2", voices)
	}
}
