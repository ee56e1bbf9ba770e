// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio chunks to consumers and to verify
// that the correct Voice and text fragments are passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeChunks: [][]byte{[]byte("audio1"), []byte("audio2")},
//	    VoicesResult:     []tts.Voice{{ID: "v1", Name: "Alice"}},
//	}
//	ch, _ := p.SynthesizeStream(ctx, textCh, voice)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/recall/pkg/provider/tts"
)

// SynthesizeStreamCall records a single invocation of SynthesizeStream.
type SynthesizeStreamCall struct {
	// Ctx is the context passed to SynthesizeStream.
	Ctx context.Context
	// Text is the text input channel passed to SynthesizeStream.
	Text <-chan string
	// Voice is the Voice passed to SynthesizeStream.
	Voice tts.Voice
}

// VoicesCall records a single invocation of Voices.
type VoicesCall struct {
	// Ctx is the context passed to Voices.
	Ctx context.Context
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeChunks is the sequence of audio byte slices emitted on the
	// channel returned by SynthesizeStream.
	SynthesizeChunks [][]byte

	// ChunkDelay, if non-zero, is waited between emitted chunks. Useful for
	// tests that cancel a playback mid-stream.
	ChunkDelay time.Duration

	// SynthesizeErr, if non-nil, is returned as the error from
	// SynthesizeStream instead of starting a channel.
	SynthesizeErr error

	// VoicesResult is returned by Voices.
	VoicesResult []tts.Voice

	// VoicesErr, if non-nil, is returned as the error from Voices.
	VoicesErr error

	// --- Call records ---

	// SynthesizeStreamCalls records every call to SynthesizeStream in order.
	SynthesizeStreamCalls []SynthesizeStreamCall

	// VoicesCalls records every call to Voices in order.
	VoicesCalls []VoicesCall
}

// SynthesizeStream records the call and, if SynthesizeErr is nil, returns a
// channel that emits SynthesizeChunks then closes.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.Voice) (<-chan []byte, error) {
	p.mu.Lock()
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls, SynthesizeStreamCall{Ctx: ctx, Text: text, Voice: voice})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([][]byte, len(p.SynthesizeChunks))
	copy(chunks, p.SynthesizeChunks)
	delay := p.ChunkDelay
	p.mu.Unlock()

	ch := make(chan []byte, len(chunks))
	go func() {
		defer close(ch)
		// Drain the incoming text channel to simulate real behaviour and
		// avoid leaving the caller's goroutine blocked writing to it.
		go func() {
			for range text {
			}
		}()
		for _, audio := range chunks {
			if delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}
			select {
			case <-ctx.Done():
				return
			case ch <- audio:
			}
		}
	}()
	return ch, nil
}

// Voices records the call and returns VoicesResult, VoicesErr.
func (p *Provider) Voices(ctx context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.VoicesCalls = append(p.VoicesCalls, VoicesCall{Ctx: ctx})
	return p.VoicesResult, p.VoicesErr
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeStreamCalls = nil
	p.VoicesCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
