package resilience

import (
	"context"

	"github.com/MrWong99/recall/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across
// multiple speech backends. Each backend has its own circuit breaker, so a
// streaming primary that starts timing out is bypassed in favour of the
// buffered fallback voice.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional speech provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// SynthesizeStream opens a synthesis stream on the first healthy provider.
// Only the initial stream setup is covered by failover; mid-stream errors are
// the caller's responsibility.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.Voice) (<-chan []byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}

// Voices returns available voices from the first healthy provider.
func (f *TTSFallback) Voices(ctx context.Context) ([]tts.Voice, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.Voice, error) {
		return p.Voices(ctx)
	})
}
