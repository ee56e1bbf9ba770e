// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/recall/pkg/provider/stt"
)

const (
	endpoint          = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithEndpointing sets the Deepgram endpointing window in milliseconds; it
// controls how quickly the service finalises a segment after silence.
func WithEndpointing(ms int) Option {
	return func(p *Provider) { p.endpointingMs = ms }
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey        string
	model         string
	language      string
	endpointingMs int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	return newSession(ctx, conn), nil
}

// newSession wraps an established connection and starts the IO loops.
func newSession(ctx context.Context, conn *websocket.Conn) *session {
	sess := &session{
		conn:     conn,
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 16),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
		failed:   make(chan struct{}),
	}
	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)
	return sess
}

// buildURL constructs the Deepgram streaming endpoint URL for the config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	if p.endpointingMs > 0 {
		q.Set("endpointing", strconv.Itoa(p.endpointingMs))
	}
	for _, hint := range cfg.Hints {
		q.Add("keywords", hint)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// response is the JSON structure Deepgram sends for a Results event.
type response struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram streaming session implementing stt.SessionHandle.
type session struct {
	conn     *websocket.Conn
	partials chan stt.Transcript
	finals   chan stt.Transcript
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	// failed is closed by whichever IO loop hits a transport error first;
	// failErr is written before the close and read only after it.
	failed   chan struct{}
	failOnce sync.Once
	failErr  error
}

// fail records the first transport error and unblocks SendAudio callers so
// the capture pump sees the session is dead instead of filling the queue.
func (s *session) fail(err error) {
	s.failOnce.Do(func() {
		s.failErr = err
		close(s.failed)
	})
}

// SendAudio queues a PCM audio chunk for delivery to Deepgram. Once the
// underlying socket has failed every call returns the transport error.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("deepgram: session is closed")
	case <-s.failed:
		return s.failErr
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("deepgram: session is closed")
	case <-s.failed:
		return s.failErr
	}
}

// Partials returns the channel of interim transcripts.
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the channel of final transcripts.
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Close terminates the session cleanly, asking Deepgram to flush any
// buffered audio into a last final first.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop forwards queued audio chunks to Deepgram as binary messages.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				s.fail(fmt.Errorf("deepgram: write audio: %w", err))
				return
			}
		case <-s.done:
			// Flush whatever is still queued before exiting.
			for {
				select {
				case chunk := <-s.audio:
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON messages from Deepgram and dispatches transcripts.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Close and context cancellation are expected exits; anything
			// else means the service dropped us mid-stream.
			select {
			case <-s.done:
			default:
				if ctx.Err() == nil {
					s.fail(fmt.Errorf("deepgram: read: %w", err))
				}
			}
			return
		}

		t, ok := parseResponse(msg)
		if !ok {
			continue
		}
		out := s.partials
		if t.IsFinal {
			out = s.finals
		}
		select {
		case out <- t:
		case <-s.done:
		}
	}
}

// parseResponse parses a raw Deepgram WebSocket message into a Transcript.
// Returns (zero, false) for messages that should be ignored.
func parseResponse(data []byte) (stt.Transcript, bool) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}

	alt := resp.Channel.Alternatives[0]
	return stt.Transcript{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
		Timestamp:  time.Duration(resp.Start * float64(time.Second)),
		Duration:   time.Duration(resp.Duration * float64(time.Second)),
	}, true
}
