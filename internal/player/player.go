// Package player implements assistant speech playback.
//
// Player drives one assistant turn at a time: it feeds the turn's text to a
// TTS provider, pushes the synthesised PCM to a [Sink], and emits exactly one
// terminal [Event] per turn. Cancellation is idempotent so barge-in detection
// and natural completion can race without double-reporting.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/recall/pkg/audio"
	"github.com/MrWong99/recall/pkg/provider/tts"
)

// ErrClosed is returned by Speak after Close.
var ErrClosed = errors.New("player is closed")

// Outcome is the terminal result of a playback turn.
type Outcome int

const (
	// OutcomeFinished means the turn's audio played to natural completion.
	OutcomeFinished Outcome = iota

	// OutcomeCancelled means the turn was cut short by Cancel (barge-in,
	// stop, exit or mode change).
	OutcomeCancelled

	// OutcomeFailed means synthesis or delivery failed before completion.
	OutcomeFailed
)

// String returns the human-readable name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeFinished:
		return "finished"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is the single terminal notification emitted for a playback turn.
type Event struct {
	// TurnID identifies the assistant turn this event belongs to.
	TurnID string
	// Outcome is the terminal result.
	Outcome Outcome
	// Err carries the failure cause when Outcome is OutcomeFailed.
	Err error
}

// Sink receives synthesised PCM for delivery to the client.
type Sink interface {
	// WriteAudio delivers one PCM chunk of the given turn. It must not block
	// longer than ctx allows.
	WriteAudio(ctx context.Context, turnID string, pcm []byte) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, turnID string, pcm []byte) error

// WriteAudio calls f.
func (f SinkFunc) WriteAudio(ctx context.Context, turnID string, pcm []byte) error {
	return f(ctx, turnID, pcm)
}

// Option is a functional option for configuring a Player.
type Option func(*Player)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(p *Player) { p.log = log }
}

// WithEventBuffer sets the buffer depth of the Events channel. Default 16.
func WithEventBuffer(n int) Option {
	return func(p *Player) { p.eventBuf = n }
}

// Player synthesises and plays assistant turns, at most one at a time.
//
// Speak starts a turn and returns immediately. Cancel stops the active turn
// if any; calling it with no active turn, or after the turn already finished,
// is a no-op. Every started turn produces exactly one Event.
type Player struct {
	ttsP     tts.Provider
	voice    tts.Voice
	sessions *audio.SessionManager
	sink     Sink
	log      *slog.Logger
	eventBuf int

	events chan Event

	mu      sync.Mutex
	current *playback
	closed  bool

	// wg tracks playback goroutines so Close can drain them.
	wg sync.WaitGroup
}

// playback is the state of one in-flight turn.
type playback struct {
	turnID    string
	cancel    context.CancelFunc
	finishOne sync.Once
	done      chan struct{}
}

// New constructs a Player. sessions may be nil when playback does not contend
// with capture for the audio session (tests, text-only clients).
func New(ttsP tts.Provider, voice tts.Voice, sessions *audio.SessionManager, sink Sink, opts ...Option) *Player {
	p := &Player{
		ttsP:     ttsP,
		voice:    voice,
		sessions: sessions,
		sink:     sink,
		log:      slog.Default(),
		eventBuf: 16,
	}
	for _, o := range opts {
		o(p)
	}
	p.events = make(chan Event, p.eventBuf)
	return p
}

// Events returns the channel of terminal playback events. Each turn started
// by Speak emits exactly one event here.
func (p *Player) Events() <-chan Event {
	return p.events
}

// SetVoice changes the voice used for subsequent turns. The active turn, if
// any, keeps the voice it started with.
func (p *Player) SetVoice(v tts.Voice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voice = v
}

// Speak begins synthesis and playback of one assistant turn and returns
// immediately. An already-active turn is cancelled first; its cancelled event
// is emitted before the new turn's terminal event.
func (p *Player) Speak(ctx context.Context, turnID, text string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	prev := p.current
	if prev != nil {
		prev.cancel()
	}

	playCtx, cancel := context.WithCancel(ctx)
	pb := &playback{
		turnID: turnID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.current = pb
	voice := p.voice
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if prev != nil {
			// Wait for the superseded turn to emit its cancelled event so
			// terminal events stay in turn order.
			<-prev.done
		}
		p.run(playCtx, pb, voice, text)
	}()
	return nil
}

// Cancel stops the active turn, if any. It is idempotent: calling it with no
// active turn, repeatedly, or after natural completion is a harmless no-op.
func (p *Player) Cancel() {
	p.mu.Lock()
	pb := p.current
	p.mu.Unlock()

	if pb != nil {
		pb.cancel()
	}
}

// Speaking reports whether a turn is currently being played.
func (p *Player) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

// Close cancels any active turn, waits for its terminal event to be emitted
// and closes the Events channel. Speak after Close returns ErrClosed.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	pb := p.current
	p.mu.Unlock()

	if pb != nil {
		pb.cancel()
	}
	p.wg.Wait()
	close(p.events)
	return nil
}

// run executes one playback turn and guarantees exactly one terminal event.
func (p *Player) run(ctx context.Context, pb *playback, voice tts.Voice, text string) {
	defer pb.cancel()

	if p.sessions != nil {
		if err := p.sessions.Configure(ctx, audio.ModePlayback); err != nil {
			p.finish(pb, OutcomeFailed, fmt.Errorf("configure playback session: %w", err))
			return
		}
		defer p.sessions.Release()
	}

	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	audioCh, err := p.ttsP.SynthesizeStream(ctx, textCh, voice)
	if err != nil {
		p.finish(pb, OutcomeFailed, fmt.Errorf("start synthesis: %w", err))
		return
	}

	for chunk := range audioCh {
		if err := p.sink.WriteAudio(ctx, pb.turnID, chunk); err != nil {
			if ctx.Err() != nil {
				p.finish(pb, OutcomeCancelled, nil)
				return
			}
			p.finish(pb, OutcomeFailed, fmt.Errorf("deliver audio: %w", err))
			return
		}
	}

	// The provider closes the audio channel both on natural completion and
	// when ctx is cancelled mid-stream. Distinguish via the context.
	if ctx.Err() != nil {
		p.finish(pb, OutcomeCancelled, nil)
		return
	}
	p.finish(pb, OutcomeFinished, nil)
}

// finish emits the turn's single terminal event and clears the active slot.
func (p *Player) finish(pb *playback, outcome Outcome, err error) {
	pb.finishOne.Do(func() {
		p.mu.Lock()
		if p.current == pb {
			p.current = nil
		}
		p.mu.Unlock()
		close(pb.done)

		if outcome == OutcomeFailed {
			p.log.Error("playback failed", "turn_id", pb.turnID, "error", err)
		} else {
			p.log.Debug("playback "+outcome.String(), "turn_id", pb.turnID)
		}

		select {
		case p.events <- Event{TurnID: pb.turnID, Outcome: outcome, Err: err}:
		default:
			// Listener fell behind; dropping is preferable to wedging the
			// playback goroutine.
			p.log.Warn("playback event dropped", "turn_id", pb.turnID, "outcome", outcome.String())
		}
	})
}
