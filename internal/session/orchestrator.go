// Package session implements the voice session orchestrator.
//
// An Orchestrator runs one client's voice session as a single-threaded state
// machine: every input (UI taps, detector events, transcripts, resolver
// results, playback events, audio session interruptions) is converted into an
// event and handled by one loop goroutine, so transitions never interleave.
// Collaborators communicate exclusively through emitted events, which keeps
// the transition logic a pure function of state and event.
//
// Stale asynchronous results are dropped by generation checks: exiting the
// session wins over a resolver response still in flight, and capture events
// from a torn-down pipeline are ignored.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/recall/internal/observe"
	"github.com/MrWong99/recall/internal/player"
	"github.com/MrWong99/recall/internal/resolver"
	"github.com/MrWong99/recall/pkg/audio"
	"github.com/MrWong99/recall/pkg/memory"
	"github.com/MrWong99/recall/pkg/provider/stt"
	"github.com/MrWong99/recall/pkg/provider/vad"
)

const (
	// defaultFinalWait bounds how long the loop waits for the transcriber's
	// final after the detector declared speech end.
	defaultFinalWait = 3 * time.Second

	// storeTimeout bounds background persistence calls.
	storeTimeout = 5 * time.Second

	eventBufSize        = 64
	notificationBufSize = 32
)

// Deps are the orchestrator's collaborators. VAD, STT, Resolver, Player and
// Capture are required; Sessions, Store and Metrics may be nil.
type Deps struct {
	// VAD creates voice activity detection sessions.
	VAD vad.Engine

	// STT creates streaming transcription sessions.
	STT stt.Provider

	// Resolver turns finalised transcripts into assistant responses.
	Resolver resolver.Resolver

	// Player speaks assistant turns.
	Player *player.Player

	// Capture is the fan-out of live audio frames from the client.
	Capture *audio.Fanout

	// Sessions arbitrates the exclusive audio hardware session. Nil disables
	// arbitration (tests, text-only clients).
	Sessions *audio.SessionManager

	// Store persists conversation threads. Nil disables persistence.
	Store memory.ThreadStore

	// Metrics records per-stage instrumentation. Nil disables it.
	Metrics *observe.Metrics
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithGate sets the gate state supplier. The default grants all permissions.
func WithGate(gate GateFunc) Option {
	return func(o *Orchestrator) { o.gate = gate }
}

// WithVADConfig overrides the detector tuning.
func WithVADConfig(cfg vad.Config) Option {
	return func(o *Orchestrator) { o.vadCfg = cfg }
}

// WithSTTConfig overrides the transcription stream configuration.
func WithSTTConfig(cfg stt.StreamConfig) Option {
	return func(o *Orchestrator) { o.sttCfg = cfg }
}

// WithFinalWait sets how long to wait for a final transcript after speech
// end before discarding the turn.
func WithFinalWait(d time.Duration) Option {
	return func(o *Orchestrator) { o.finalWait = d }
}

// Orchestrator coordinates one client's voice session.
//
// Construct with New, drive with Run, feed UI input through TapStart, TapStop,
// TapExit, SetMuted and PermissionRevoked, and observe progress through
// Notifications. Run may be called once.
type Orchestrator struct {
	clientID string

	vadEngine vad.Engine
	vadCfg    vad.Config
	sttP      stt.Provider
	sttCfg    stt.StreamConfig
	res       resolver.Resolver
	player    *player.Player
	sessions  *audio.SessionManager
	capture   *audio.Fanout
	store     memory.ThreadStore
	metrics   *observe.Metrics
	gate      GateFunc
	log       *slog.Logger

	finalWait time.Duration

	events        chan event
	notifications chan Notification
	done          chan struct{}

	// mu guards the fields read by the public accessors; everything below
	// them is owned by the loop goroutine.
	mu       sync.Mutex
	state    State
	threadID string
	muted    bool

	gen        uint64
	resolveSeq uint64

	utterance     *Utterance
	speechEnded   bool
	pendingFinal  string
	finalTimer    *time.Timer
	speechStartAt time.Time
	speechEndAt   time.Time

	processingCancel context.CancelFunc
	activeTurnID     string
	turnStartAt      time.Time
	respondingAt     time.Time

	capCancel context.CancelFunc
	capSub    <-chan audio.Frame
	vadSess   vad.SessionHandle
	sttSess   stt.SessionHandle
}

// New constructs an Orchestrator for clientID. Returns an error when a
// required collaborator is missing.
func New(clientID string, deps Deps, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.VAD == nil:
		return nil, errors.New("session: VAD engine is required")
	case deps.STT == nil:
		return nil, errors.New("session: STT provider is required")
	case deps.Resolver == nil:
		return nil, errors.New("session: resolver is required")
	case deps.Player == nil:
		return nil, errors.New("session: player is required")
	case deps.Capture == nil:
		return nil, errors.New("session: capture fanout is required")
	}

	o := &Orchestrator{
		clientID:  clientID,
		vadEngine: deps.VAD,
		vadCfg: vad.Config{
			SampleRate:       16000,
			FrameSizeMs:      20,
			SpeechThreshold:  0.015,
			SilenceThreshold: 0.008,
			StartDebounceMs:  100,
			HangoverMs:       800,
			PreRollMs:        400,
		},
		sttP:          deps.STT,
		sttCfg:        stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en-US"},
		res:           deps.Resolver,
		player:        deps.Player,
		sessions:      deps.Sessions,
		capture:       deps.Capture,
		store:         deps.Store,
		metrics:       deps.Metrics,
		log:           slog.Default(),
		finalWait:     defaultFinalWait,
		events:        make(chan event, eventBufSize),
		notifications: make(chan Notification, notificationBufSize),
		done:          make(chan struct{}),
		state:         StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.gate == nil {
		o.gate = func() GateState {
			return GateState{MicrophoneGranted: true, SpeechRecognitionGranted: true}
		}
	}
	o.log = o.log.With("client_id", clientID)
	return o, nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Muted reports whether listening is currently suspended.
func (o *Orchestrator) Muted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

// ThreadID returns the active conversation thread, or "" outside a session.
func (o *Orchestrator) ThreadID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.threadID
}

// Notifications returns the channel of asynchronous updates. It is closed
// when Run returns.
func (o *Orchestrator) Notifications() <-chan Notification {
	return o.notifications
}

// TapStart requests a session start (or a retry from the error state).
func (o *Orchestrator) TapStart() { o.send(event{kind: evTapStart}) }

// TapStop ends the active session, keeping the conversation thread for a
// later resume.
func (o *Orchestrator) TapStop() { o.send(event{kind: evTapStop}) }

// TapExit ends the active session and archives its conversation thread.
func (o *Orchestrator) TapExit() { o.send(event{kind: evTapExit}) }

// SetMuted suspends or resumes listening. While muted the capture connection
// and the audio session stay alive but no audio reaches the detector or the
// transcriber.
func (o *Orchestrator) SetMuted(muted bool) {
	if muted {
		o.send(event{kind: evMute})
	} else {
		o.send(event{kind: evUnmute})
	}
}

// PermissionRevoked informs the orchestrator that the platform revoked a
// permission mid-session. The session fails immediately and any open
// utterance is discarded.
func (o *Orchestrator) PermissionRevoked(reason GateReason) {
	o.send(event{kind: evPermissionRevoked, gateReason: reason})
}

// Run executes the event loop until ctx is cancelled. It always returns
// ctx's error; on return the session is torn down and Notifications is
// closed.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.metrics != nil {
		o.metrics.ActiveSessions.Add(ctx, 1)
		defer o.metrics.ActiveSessions.Add(context.Background(), -1)
	}

	go o.forwardPlaybackEvents(ctx)
	if o.sessions != nil {
		go o.forwardInterruptions(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			o.stopSession()
			o.setStateLocked(StateIdle)
			close(o.done)
			close(o.notifications)
			return ctx.Err()
		case ev := <-o.events:
			o.handle(ctx, ev)
		}
	}
}

// send enqueues an event without blocking. The loop drains faster than any
// producer; a full buffer means the session is already wedged, and dropping
// beats deadlocking a capture goroutine.
func (o *Orchestrator) send(ev event) {
	select {
	case <-o.done:
	case o.events <- ev:
	default:
		o.log.Warn("session event dropped", "event", ev.kind.String())
	}
}

// notify publishes a notification without blocking.
func (o *Orchestrator) notify(n Notification) {
	select {
	case o.notifications <- n:
	default:
		o.log.Warn("session notification dropped", "kind", n.Kind.String())
	}
}

// setState records and publishes a state transition.
func (o *Orchestrator) setState(st State, n Notification) {
	o.setStateLocked(st)
	n.Kind = NotifyState
	n.State = st
	o.notify(n)
	o.log.Debug("session state changed", "state", st.String())
}

func (o *Orchestrator) setStateLocked(st State) {
	o.mu.Lock()
	o.state = st
	o.mu.Unlock()
}

// handle dispatches one event. Runs only on the loop goroutine.
func (o *Orchestrator) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evTapStart:
		o.handleTapStart(ctx)
	case evTapStop:
		o.handleStop(false)
	case evTapExit:
		o.handleStop(true)
	case evMute:
		o.handleMute()
	case evUnmute:
		o.handleUnmute()
	case evPermissionRevoked:
		o.stopSession()
		o.setState(StateError, Notification{Reason: string(ev.gateReason), Retryable: false})
	case evSpeechStart:
		o.handleSpeechStart(ev)
	case evSpeechEnd:
		o.handleSpeechEnd(ctx, ev)
	case evPartial:
		o.handlePartial(ev)
	case evFinal:
		o.handleFinal(ctx, ev)
	case evFinalTimeout:
		o.handleFinalTimeout(ev)
	case evResolved:
		o.handleResolved(ctx, ev)
	case evResolveFailed:
		o.handleResolveFailed(ctx, ev)
	case evPlayback:
		o.handlePlayback(ctx, ev)
	case evCaptureFailed:
		if ev.gen == o.gen {
			o.enterError(fmt.Errorf("%w: %w", ErrTranscriptionUnavailable, ev.err))
		}
	case evInterruption:
		o.handleInterruption(ev)
	}
}

func (o *Orchestrator) handleTapStart(ctx context.Context) {
	st := o.State()
	if st != StateIdle && st != StateError {
		// Starting over an active session fails the not-already-active gate.
		o.enterError(&GateError{Reason: GateAlreadyActive})
		return
	}
	if gateErr := o.gate().check(); gateErr != nil {
		o.log.Info("session start gated", "reason", string(gateErr.Reason))
		o.setState(StateError, Notification{
			Reason:    string(gateErr.Reason),
			Retryable: Retryable(gateErr),
		})
		return
	}

	o.gen++
	o.ensureThread(ctx)
	o.setState(StateArmed, Notification{})

	if o.sessions != nil {
		if err := o.sessions.Configure(ctx, audio.ModeRecord); err != nil {
			o.enterError(fmt.Errorf("%w: %w", ErrAudioSessionConflict, err))
			return
		}
	}
	if err := o.startCapture(ctx); err != nil {
		if o.sessions != nil {
			o.sessions.Release()
		}
		o.enterError(err)
		return
	}
	o.setState(StateListening, Notification{})
}

// ensureThread lazily opens the conversation thread. Persistence failures
// degrade to an unpersisted session rather than blocking the start.
func (o *Orchestrator) ensureThread(ctx context.Context) {
	o.mu.Lock()
	existing := o.threadID
	o.mu.Unlock()
	if existing != "" {
		return
	}

	id := uuid.NewString()
	if o.store != nil {
		cctx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		thread, err := o.store.CreateThread(cctx, o.clientID)
		if err != nil {
			o.log.Warn("thread creation failed, session will not be persisted", "error", err)
		} else {
			id = thread.ID
		}
	}

	o.mu.Lock()
	o.threadID = id
	o.mu.Unlock()
}

// startCapture opens the detector and transcriber sessions and starts the
// frame pump feeding both from the capture fan-out.
func (o *Orchestrator) startCapture(ctx context.Context) error {
	vadSess, err := o.vadEngine.NewSession(o.vadCfg)
	if err != nil {
		return fmt.Errorf("%w: start detector: %w", ErrTranscriptionUnavailable, err)
	}
	sttSess, err := o.sttP.StartStream(ctx, o.sttCfg)
	if err != nil {
		vadSess.Close()
		return fmt.Errorf("%w: start transcriber: %w", ErrTranscriptionUnavailable, err)
	}

	capCtx, cancel := context.WithCancel(ctx)
	o.capCancel = cancel
	o.vadSess = vadSess
	o.sttSess = sttSess
	o.capSub = o.capture.Subscribe()

	go o.pumpFrames(capCtx, o.gen, o.capSub, vadSess, sttSess)
	go o.pumpTranscripts(capCtx, o.gen, sttSess)
	return nil
}

// pumpFrames feeds live audio to the detector and the transcriber and
// forwards detector transitions into the event loop. The detector sees every
// frame even while the assistant is speaking, so barge-in capture is never
// dropped.
func (o *Orchestrator) pumpFrames(ctx context.Context, gen uint64, sub <-chan audio.Frame, vadSess vad.SessionHandle, sttSess stt.SessionHandle) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-sub:
			if !ok {
				return
			}
			detected, err := vadSess.ProcessFrame(frame.PCM)
			if err != nil {
				if ctx.Err() == nil {
					o.send(event{kind: evCaptureFailed, gen: gen, err: fmt.Errorf("detect: %w", err)})
				}
				return
			}
			switch detected.Type {
			case vad.SpeechStart:
				o.send(event{kind: evSpeechStart, gen: gen, preRoll: detected.PreRoll})
			case vad.SpeechEnd:
				o.send(event{kind: evSpeechEnd, gen: gen})
			}
			if err := sttSess.SendAudio(frame.PCM); err != nil && ctx.Err() == nil {
				o.send(event{kind: evCaptureFailed, gen: gen, err: fmt.Errorf("transcribe: %w", err)})
				return
			}
		}
	}
}

// pumpTranscripts forwards partial and final transcripts into the event loop
// until both channels close or the capture context ends.
func (o *Orchestrator) pumpTranscripts(ctx context.Context, gen uint64, sttSess stt.SessionHandle) {
	partials, finals := sttSess.Partials(), sttSess.Finals()
	for partials != nil || finals != nil {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			o.send(event{kind: evPartial, gen: gen, transcript: t})
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			o.send(event{kind: evFinal, gen: gen, transcript: t})
		}
	}
}

func (o *Orchestrator) handleSpeechStart(ev event) {
	if ev.gen != o.gen {
		return
	}
	switch o.State() {
	case StateListening:
		if o.utterance != nil {
			return
		}
		o.openUtterance(ev.preRoll)
	case StateResponding:
		// Barge-in. Cancel playback and await its confirmation before
		// listening resumes; capture keeps running meanwhile so the
		// interrupting speech is not lost.
		if o.metrics != nil {
			o.metrics.BargeIns.Add(context.Background(), 1)
		}
		o.openUtterance(ev.preRoll)
		o.player.Cancel()
		o.setState(StateInterrupted, Notification{})
	default:
		o.log.Debug("speech start ignored", "state", o.State().String())
	}
}

func (o *Orchestrator) openUtterance(preRoll []byte) {
	now := time.Now()
	o.utterance = &Utterance{
		ID:        uuid.NewString(),
		ThreadID:  o.ThreadID(),
		PreRoll:   preRoll,
		StartedAt: now,
	}
	o.speechStartAt = now
	o.speechEnded = false
	o.pendingFinal = ""
	o.log.Debug("utterance opened", "utterance_id", o.utterance.ID)
}

func (o *Orchestrator) handleSpeechEnd(ctx context.Context, ev event) {
	if ev.gen != o.gen || o.utterance == nil || o.speechEnded {
		return
	}
	st := o.State()
	if st != StateListening && st != StateInterrupted {
		return
	}

	o.speechEnded = true
	o.speechEndAt = time.Now()
	if o.metrics != nil {
		o.metrics.VADDuration.Record(ctx, o.speechEndAt.Sub(o.speechStartAt).Seconds())
	}
	if o.pendingFinal == "" {
		gen := o.gen
		o.finalTimer = time.AfterFunc(o.finalWait, func() {
			o.send(event{kind: evFinalTimeout, gen: gen})
		})
	}
	o.tryFinalize(ctx)
}

func (o *Orchestrator) handlePartial(ev event) {
	if ev.gen != o.gen || o.utterance == nil {
		return
	}
	o.notify(Notification{
		Kind:       NotifyPartialTranscript,
		State:      o.State(),
		Transcript: ev.transcript.Text,
	})
}

func (o *Orchestrator) handleFinal(ctx context.Context, ev event) {
	if ev.gen != o.gen || o.utterance == nil {
		return
	}
	text := strings.TrimSpace(ev.transcript.Text)
	if text == "" {
		return
	}
	// The transcriber may commit an utterance in several segments; join them.
	if o.pendingFinal != "" {
		o.pendingFinal += " " + text
	} else {
		o.pendingFinal = text
	}
	o.tryFinalize(ctx)
}

func (o *Orchestrator) handleFinalTimeout(ev event) {
	if ev.gen != o.gen || o.utterance == nil || !o.speechEnded || o.pendingFinal != "" {
		return
	}
	// No final arrived; treat as an empty transcript and discard the turn
	// without calling the resolver. The session keeps listening.
	o.log.Warn("no final transcript after speech end, discarding turn",
		"utterance_id", o.utterance.ID)
	o.discardUtterance()
}

// discardUtterance drops the open utterance without a resolver call. The
// session keeps listening.
func (o *Orchestrator) discardUtterance() {
	o.stopFinalTimer()
	o.utterance = nil
	o.speechEnded = false
	o.pendingFinal = ""
	if o.metrics != nil {
		o.metrics.DiscardedTurns.Add(context.Background(), 1)
	}
}

// tryFinalize closes the open utterance once the detector declared speech
// end, a final transcript arrived and the state machine is back in listening
// (barge-in waits for playback cancellation first).
func (o *Orchestrator) tryFinalize(ctx context.Context) {
	if o.State() != StateListening || o.utterance == nil || !o.speechEnded || o.pendingFinal == "" {
		return
	}
	o.stopFinalTimer()

	u := o.utterance
	u.Transcript = o.pendingFinal
	u.FinalizedAt = time.Now()
	o.utterance = nil
	o.speechEnded = false
	o.pendingFinal = ""
	o.turnStartAt = u.StartedAt

	if o.metrics != nil {
		o.metrics.STTDuration.Record(ctx, u.FinalizedAt.Sub(o.speechEndAt).Seconds())
	}
	o.notify(Notification{Kind: NotifyFinalTranscript, State: o.State(), Transcript: u.Transcript})
	o.setState(StateProcessing, Notification{})
	o.resolve(ctx, u)
}

// resolve launches the single resolver attempt for the finalised utterance.
// The user turn is persisted first so the thread never shows a reply without
// its question.
func (o *Orchestrator) resolve(ctx context.Context, u *Utterance) {
	rctx, cancel := context.WithCancel(ctx)
	o.processingCancel = cancel
	o.resolveSeq++
	seq := o.resolveSeq
	gen := o.gen

	userTurn := memory.TurnRecord{
		ThreadID:  u.ThreadID,
		Role:      memory.RoleUser,
		Text:      u.Transcript,
		Timestamp: u.FinalizedAt,
		Duration:  o.speechEndAt.Sub(u.StartedAt),
	}
	req := resolver.Request{Transcript: u.Transcript, ThreadID: u.ThreadID}

	go func() {
		defer cancel()
		if o.store != nil {
			sctx, scancel := context.WithTimeout(rctx, storeTimeout)
			if err := o.store.AppendTurn(sctx, userTurn); err != nil && rctx.Err() == nil {
				o.log.Warn("user turn not persisted", "error", err)
			}
			scancel()
		}

		start := time.Now()
		resp, err := o.res.Resolve(rctx, req)
		if o.metrics != nil {
			o.metrics.ResolverDuration.Record(context.Background(), time.Since(start).Seconds())
		}
		if err != nil {
			o.send(event{kind: evResolveFailed, gen: gen, seq: seq, err: err})
			return
		}
		o.send(event{kind: evResolved, gen: gen, seq: seq, resp: resp})
	}()
}

func (o *Orchestrator) handleResolved(ctx context.Context, ev event) {
	if ev.gen != o.gen || ev.seq != o.resolveSeq || o.State() != StateProcessing {
		// Exit wins: a response arriving after the session moved on is
		// dropped without a state change.
		o.log.Debug("stale resolver response discarded")
		return
	}
	o.processingCancel = nil

	turn := newAssistantTurn(o.ThreadID(), ev.resp)
	if o.metrics != nil {
		o.metrics.RecordUtterance(ctx, string(turn.Intent))
	}
	o.persistAssistantTurn(turn)

	// Playback needs the hardware session; hand it over before speaking.
	// Capture frames keep flowing to the detector for barge-in.
	if o.sessions != nil {
		o.sessions.Release()
	}
	o.activeTurnID = turn.ID
	o.respondingAt = time.Now()
	o.setState(StateResponding, Notification{})
	o.notify(Notification{Kind: NotifyAssistantTurn, State: StateResponding, Turn: turn})

	if err := o.player.Speak(ctx, turn.ID, turn.Text); err != nil {
		o.enterError(fmt.Errorf("speak: %w", err))
	}
}

func (o *Orchestrator) handleResolveFailed(ctx context.Context, ev event) {
	if ev.gen != o.gen || ev.seq != o.resolveSeq || o.State() != StateProcessing {
		return
	}
	o.processingCancel = nil

	var sessionErr error
	var reason string
	var malformed *resolver.MalformedError
	switch {
	case errors.Is(ev.err, context.DeadlineExceeded):
		sessionErr = fmt.Errorf("%w: %w", ErrResolverTimeout, ev.err)
		reason = "timeout"
	case errors.As(ev.err, &malformed):
		sessionErr = fmt.Errorf("%w: %w", ErrResolverFailure, ev.err)
		reason = "malformed"
	default:
		sessionErr = fmt.Errorf("%w: %w", ErrResolverFailure, ev.err)
		reason = "failure"
	}
	if o.metrics != nil {
		o.metrics.RecordResolverError(ctx, reason)
	}
	o.enterError(sessionErr)
}

func (o *Orchestrator) handlePlayback(ctx context.Context, ev event) {
	if ev.playback.TurnID != o.activeTurnID {
		return
	}
	o.activeTurnID = ""

	switch {
	case ev.playback.Outcome == player.OutcomeFinished && o.State() == StateResponding:
		now := time.Now()
		if o.metrics != nil {
			o.metrics.TTSDuration.Record(ctx, now.Sub(o.respondingAt).Seconds())
			o.metrics.TurnDuration.Record(ctx, now.Sub(o.turnStartAt).Seconds())
		}
		o.reclaimCapture(ctx)
	case ev.playback.Outcome != player.OutcomeFailed && o.State() == StateInterrupted:
		// Cancellation confirmed, or playback finished naturally just as the
		// barge-in landed and the cancel had nothing left to stop. Either way
		// speaking has fully stopped, capture may own the session again.
		o.reclaimCapture(ctx)
		o.tryFinalize(ctx)
	case ev.playback.Outcome == player.OutcomeFailed:
		o.enterError(fmt.Errorf("playback: %w", ev.playback.Err))
	}
}

// reclaimCapture re-acquires the audio session for recording and returns the
// machine to listening.
func (o *Orchestrator) reclaimCapture(ctx context.Context) {
	if o.sessions != nil {
		if err := o.sessions.Configure(ctx, audio.ModeRecord); err != nil {
			o.enterError(fmt.Errorf("%w: %w", ErrAudioSessionConflict, err))
			return
		}
	}
	o.setState(StateListening, Notification{})
}

func (o *Orchestrator) handleStop(exit bool) {
	st := o.State()
	if st == StateIdle && !exit {
		o.log.Error("invalid transition",
			"error", &InvalidTransitionError{From: st, Event: evTapStop.String()})
		return
	}
	o.stopSession()

	if exit {
		o.mu.Lock()
		threadID := o.threadID
		o.threadID = ""
		o.mu.Unlock()
		if o.store != nil && threadID != "" {
			go func() {
				cctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
				defer cancel()
				if err := o.store.ArchiveThread(cctx, threadID); err != nil {
					o.log.Warn("thread not archived", "thread_id", threadID, "error", err)
				}
			}()
		}
	}
	o.setState(StateIdle, Notification{})
}

func (o *Orchestrator) handleMute() {
	if o.Muted() {
		return
	}
	o.mu.Lock()
	o.muted = true
	o.mu.Unlock()
	o.capture.Pause()

	// A pending resolver call must not apply a stale response once the user
	// muted; cancel it and fall back to suspended listening.
	if o.State() == StateProcessing {
		if o.processingCancel != nil {
			o.processingCancel()
			o.processingCancel = nil
		}
		o.resolveSeq++
		o.setState(StateListening, Notification{Reason: "muted"})
		return
	}
	// No state change here: a state notification whose State is unchanged
	// and whose Reason is "muted" is how the flag toggle reaches the client.
	o.notify(Notification{Kind: NotifyState, State: o.State(), Reason: "muted"})
}

func (o *Orchestrator) handleUnmute() {
	if !o.Muted() {
		return
	}
	o.mu.Lock()
	o.muted = false
	o.mu.Unlock()
	o.capture.Resume()
	o.notify(Notification{Kind: NotifyState, State: o.State(), Reason: "unmuted"})
}

func (o *Orchestrator) handleInterruption(ev event) {
	switch ev.interruption.Kind {
	case audio.InterruptionBegan:
		if o.State() == StateIdle {
			return
		}
		o.log.Warn("audio session interrupted", "reason", ev.interruption.Reason)
		o.enterError(fmt.Errorf("%w: %s", ErrAudioSessionConflict, ev.interruption.Reason))
	case audio.RouteChanged:
		o.log.Info("audio route changed", "reason", ev.interruption.Reason)
	}
}

// enterError tears down the active session and enters the error state. The
// user may tap start again when the cause is retryable.
func (o *Orchestrator) enterError(err error) {
	o.stopSession()
	retryable := Retryable(err)
	o.log.Error("session failed", "error", err, "retryable", retryable)
	o.setState(StateError, Notification{Reason: errorReason(err), Retryable: retryable})
}

// stopSession discards the open utterance, cancels any pending resolver call
// and playback, and tears down the capture pipeline. The state is set by the
// caller.
func (o *Orchestrator) stopSession() {
	o.stopFinalTimer()
	o.utterance = nil
	o.speechEnded = false
	o.pendingFinal = ""
	o.activeTurnID = ""

	if o.processingCancel != nil {
		o.processingCancel()
		o.processingCancel = nil
	}
	o.resolveSeq++
	o.gen++

	o.player.Cancel()

	if o.capCancel != nil {
		o.capCancel()
		o.capCancel = nil
	}
	if o.capSub != nil {
		o.capture.Unsubscribe(o.capSub)
		o.capSub = nil
	}
	if o.vadSess != nil {
		o.vadSess.Close()
		o.vadSess = nil
	}
	if o.sttSess != nil {
		o.sttSess.Close()
		o.sttSess = nil
	}
	if o.Muted() {
		o.capture.Resume()
		o.mu.Lock()
		o.muted = false
		o.mu.Unlock()
	}
	if o.sessions != nil {
		o.sessions.Release()
	}
}

func (o *Orchestrator) stopFinalTimer() {
	if o.finalTimer != nil {
		o.finalTimer.Stop()
		o.finalTimer = nil
	}
}

func (o *Orchestrator) persistAssistantTurn(turn *AssistantTurn) {
	if o.store == nil {
		return
	}
	rec := turn.record(turn.CreatedAt.Sub(o.turnStartAt))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := o.store.AppendTurn(ctx, rec); err != nil {
			o.log.Warn("assistant turn not persisted", "error", err)
		}
	}()
}

// forwardPlaybackEvents bridges the player's terminal events into the loop.
func (o *Orchestrator) forwardPlaybackEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.player.Events():
			if !ok {
				return
			}
			o.send(event{kind: evPlayback, playback: ev})
		}
	}
}

// forwardInterruptions bridges audio session disruptions into the loop.
func (o *Orchestrator) forwardInterruptions(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.sessions.Interruptions():
			if !ok {
				return
			}
			o.send(event{kind: evInterruption, interruption: ev})
		}
	}
}
