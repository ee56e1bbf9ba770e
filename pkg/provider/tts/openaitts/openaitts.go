// Package openaitts provides an OpenAI-backed TTS provider using the
// /v1/audio/speech endpoint. It implements the tts.Provider interface.
//
// Unlike the ElevenLabs WebSocket provider, the OpenAI speech API is
// request/response: each text fragment is synthesised with one HTTP call and
// the resulting PCM body is chunked onto the audio channel. Latency is higher
// than the streaming path, which is why this provider is used as the
// fallback voice rather than the primary.
package openaitts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/recall/pkg/provider/tts"
)

const (
	defaultModel = "gpt-4o-mini-tts"
	defaultVoice = "alloy"

	// chunkSize is the PCM slice size pushed onto the audio channel; 8 KiB of
	// 24 kHz mono 16-bit PCM is ~170 ms of audio.
	chunkSize = 8192
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the speech model (e.g., "gpt-4o-mini-tts", "tts-1").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// Provider implements tts.Provider backed by the OpenAI speech API.
type Provider struct {
	client openai.Client
	model  string
}

// New creates a new OpenAI TTS Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openaitts: apiKey must not be empty")
	}
	p := &Provider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

var _ tts.Provider = (*Provider)(nil)

// SynthesizeStream synthesises each text fragment with one speech request and
// forwards the PCM response in chunks. The audio channel is closed when the
// text channel closes and the last response is drained, or when ctx is
// cancelled.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.Voice) (<-chan []byte, error) {
	voiceID := voice.ID
	if voiceID == "" {
		voiceID = defaultVoice
	}

	audioCh := make(chan []byte, 64)

	go func() {
		defer close(audioCh)
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					return
				}
				if fragment == "" {
					continue
				}
				if err := p.synthesize(ctx, fragment, voiceID, voice.SpeedFactor, audioCh); err != nil {
					// Mid-stream failure closes the channel early; the caller
					// distinguishes cancellation via ctx.Err().
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, nil
}

// synthesize issues a single speech request and pumps the PCM body onto out.
func (p *Provider) synthesize(ctx context.Context, text, voiceID string, speed float64, out chan<- []byte) error {
	params := openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(p.model),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(voiceID),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if speed > 0 {
		params.Speed = openai.Float(speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return fmt.Errorf("openaitts: speech request: %w", err)
	}
	defer resp.Body.Close()

	for {
		buf := make([]byte, chunkSize)
		n, err := io.ReadFull(resp.Body, buf)
		if n > 0 {
			select {
			case out <- buf[:n]:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("openaitts: read audio: %w", err)
		}
	}
}

// Voices returns the fixed set of voices the OpenAI speech API supports.
// The API has no voice-listing endpoint; the catalogue is documented.
func (p *Provider) Voices(_ context.Context) ([]tts.Voice, error) {
	names := []string{"alloy", "ash", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer"}
	voices := make([]tts.Voice, 0, len(names))
	for _, n := range names {
		voices = append(voices, tts.Voice{ID: n, Name: n, Provider: "openai"})
	}
	return voices, nil
}
