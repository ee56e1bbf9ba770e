// Package gateway exposes voice sessions over WebSocket.
//
// Each connection carries one client's session. Binary frames are PCM audio:
// capture upstream (client microphone to the session's fan-out) and playback
// downstream (synthesized speech to the client). Text frames are JSON: UI
// control events upstream, state and transcript notifications downstream.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/recall/internal/observe"
	"github.com/MrWong99/recall/internal/player"
	"github.com/MrWong99/recall/internal/resolver"
	"github.com/MrWong99/recall/internal/session"
	"github.com/MrWong99/recall/pkg/audio"
	"github.com/MrWong99/recall/pkg/memory"
	"github.com/MrWong99/recall/pkg/provider/stt"
	"github.com/MrWong99/recall/pkg/provider/tts"
	"github.com/MrWong99/recall/pkg/provider/vad"
)

const (
	defaultSampleRate = 16000

	// defaultFrameBuffer is the per-subscriber frame buffer of a connection's
	// fan-out, roughly 1.3 s of 20 ms frames.
	defaultFrameBuffer = 64
)

// Deps are the shared collaborators every connection's session is built
// from. Store and Metrics may be nil.
type Deps struct {
	// VAD creates voice activity detection sessions.
	VAD vad.Engine

	// STT creates streaming transcription sessions.
	STT stt.Provider

	// Resolver answers finalised transcripts.
	Resolver resolver.Resolver

	// TTS synthesises assistant speech.
	TTS tts.Provider

	// Voice is the voice assistant turns are spoken with.
	Voice tts.Voice

	// Sessions tracks the live session per client.
	Sessions *session.Manager

	// Store persists conversation threads. Nil disables persistence.
	Store memory.ThreadStore

	// Metrics records per-stage instrumentation. Nil disables it.
	Metrics *observe.Metrics
}

// Option is a functional option for configuring a Handler.
type Option func(*Handler)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithSampleRate sets the PCM sample rate expected on capture frames.
func WithSampleRate(rate int) Option {
	return func(h *Handler) { h.sampleRate = rate }
}

// WithFrameBuffer sets the per-subscriber buffer of each connection's
// capture fan-out.
func WithFrameBuffer(n int) Option {
	return func(h *Handler) { h.frameBuf = n }
}

// WithSessionOptions forwards options to every session the handler builds
// (detector tuning, transcription config, final-transcript wait).
func WithSessionOptions(opts ...session.Option) Option {
	return func(h *Handler) { h.sessionOpts = opts }
}

// Handler upgrades HTTP requests to voice session WebSocket connections.
type Handler struct {
	deps        Deps
	log         *slog.Logger
	sampleRate  int
	frameBuf    int
	sessionOpts []session.Option
}

// New constructs a Handler. Returns an error when a required collaborator is
// missing.
func New(deps Deps, opts ...Option) (*Handler, error) {
	switch {
	case deps.VAD == nil:
		return nil, errors.New("gateway: VAD engine is required")
	case deps.STT == nil:
		return nil, errors.New("gateway: STT provider is required")
	case deps.Resolver == nil:
		return nil, errors.New("gateway: resolver is required")
	case deps.TTS == nil:
		return nil, errors.New("gateway: TTS provider is required")
	case deps.Sessions == nil:
		return nil, errors.New("gateway: session manager is required")
	}
	h := &Handler{
		deps:       deps,
		log:        slog.Default(),
		sampleRate: defaultSampleRate,
		frameBuf:   defaultFrameBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP implements http.Handler. The client identifies itself with the
// "client" query parameter; without one a fresh identity is assigned.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	log := h.log.With("client_id", clientID)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("websocket accept failed", "error", err)
		return
	}

	err = h.serve(r.Context(), conn, clientID, log)
	switch {
	case err == nil || errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusNormalClosure, "")
	case websocket.CloseStatus(err) != -1:
		// Client already closed; nothing to send.
	default:
		log.Warn("connection ended", "error", err)
		conn.Close(websocket.StatusInternalError, "session failed")
	}
}

// serve runs one connection: it builds the connection-scoped audio plumbing,
// opens the session, and pumps frames until the client disconnects.
func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, clientID string, log *slog.Logger) error {
	capture := audio.NewFanout(h.frameBuf)
	defer capture.Close()

	audioSess := audio.NewSessionManager()
	defer audioSess.Close()

	sink := player.SinkFunc(func(ctx context.Context, _ string, pcm []byte) error {
		return conn.Write(ctx, websocket.MessageBinary, pcm)
	})
	play := player.New(h.deps.TTS, h.deps.Voice, audioSess, sink, player.WithLogger(log))
	defer play.Close()

	gate := newGateHolder()
	orch, err := h.deps.Sessions.Open(ctx, clientID, func(id string) (*session.Orchestrator, error) {
		opts := append([]session.Option{
			session.WithLogger(log),
			session.WithGate(gate.snapshot),
		}, h.sessionOpts...)
		return session.New(id, session.Deps{
			VAD:      h.deps.VAD,
			STT:      h.deps.STT,
			Resolver: h.deps.Resolver,
			Player:   play,
			Capture:  capture,
			Sessions: audioSess,
			Store:    h.deps.Store,
			Metrics:  h.deps.Metrics,
		}, opts...)
	})
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return fmt.Errorf("open session: %w", err)
	}
	defer h.deps.Sessions.Release(clientID)

	go h.writeNotifications(ctx, conn, orch, log)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		switch typ {
		case websocket.MessageBinary:
			capture.Publish(audio.Frame{
				PCM:        data,
				SampleRate: h.sampleRate,
				Channels:   1,
			})
		case websocket.MessageText:
			h.handleControl(orch, gate, data, log)
		}
	}
}

// handleControl dispatches one JSON control frame. Unknown or malformed
// frames are logged and dropped; they never take the connection down.
func (h *Handler) handleControl(orch *session.Orchestrator, gate *gateHolder, data []byte, log *slog.Logger) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn("malformed control frame", "error", err)
		return
	}
	switch msg.Type {
	case msgTapStart:
		if msg.Gate != nil {
			gate.set(msg.Gate.state())
		}
		orch.TapStart()
	case msgTapStop:
		orch.TapStop()
	case msgTapExit:
		orch.TapExit()
	case msgMute:
		orch.SetMuted(true)
	case msgUnmute:
		orch.SetMuted(false)
	case msgGateState:
		if msg.Gate != nil {
			gate.set(msg.Gate.state())
		}
	case msgPermissionRevoked:
		orch.PermissionRevoked(session.GateReason(msg.Reason))
	default:
		log.Warn("unknown control frame", "type", msg.Type)
	}
}

// writeNotifications forwards session notifications to the client until the
// session ends or the connection breaks.
func (h *Handler) writeNotifications(ctx context.Context, conn *websocket.Conn, orch *session.Orchestrator, log *slog.Logger) {
	for n := range orch.Notifications() {
		msg, ok := encodeNotification(n)
		if !ok {
			continue
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			log.Error("notification encoding failed", "error", err)
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			return
		}
	}
}

// gateHolder is the connection's latest gate snapshot. It starts permissive;
// the client is expected to report its real permission state before the
// first start tap.
type gateHolder struct {
	mu    sync.Mutex
	state session.GateState
}

func newGateHolder() *gateHolder {
	return &gateHolder{
		state: session.GateState{
			MicrophoneGranted:        true,
			SpeechRecognitionGranted: true,
		},
	}
}

func (g *gateHolder) snapshot() session.GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *gateHolder) set(state session.GateState) {
	g.mu.Lock()
	g.state = state
	g.mu.Unlock()
}
