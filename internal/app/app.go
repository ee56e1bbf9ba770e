// Package app wires all Recall subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithThreadStore, WithMetrics, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/recall/internal/config"
	"github.com/MrWong99/recall/internal/gateway"
	"github.com/MrWong99/recall/internal/health"
	"github.com/MrWong99/recall/internal/observe"
	"github.com/MrWong99/recall/internal/resilience"
	"github.com/MrWong99/recall/internal/resolver"
	"github.com/MrWong99/recall/internal/session"
	"github.com/MrWong99/recall/pkg/memory"
	"github.com/MrWong99/recall/pkg/memory/postgres"
	"github.com/MrWong99/recall/pkg/provider/stt"
	"github.com/MrWong99/recall/pkg/provider/tts"
	"github.com/MrWong99/recall/pkg/provider/vad"
)

// shutdownGrace bounds the HTTP server drain during Run teardown.
const shutdownGrace = 10 * time.Second

// Providers holds one interface value per pipeline stage. Populated by
// main.go via the config registry.
type Providers struct {
	STT      stt.Provider
	TTS      tts.Provider
	VAD      vad.Engine
	Resolver resolver.Resolver
}

// App owns all subsystem lifetimes and serves the Recall voice gateway.
type App struct {
	cfg       *config.Config
	providers *Providers

	store    memory.ThreadStore
	metrics  *observe.Metrics
	sessions *session.Manager
	gateway  *gateway.Handler
	handler  http.Handler

	// addr holds the bound listen address once Run has opened its listener.
	mu   sync.Mutex
	addr net.Addr

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithThreadStore injects a thread store instead of connecting to Postgres.
func WithThreadStore(s memory.ThreadStore) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics instance instead of using the global meter
// provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry); STT, TTS, VAD, and
// Resolver are all required.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		return nil, errors.New("app: providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	a.sessions = session.NewManager(
		session.WithMaxSessions(cfg.Session.MaxSessions),
	)

	if err := a.initGateway(); err != nil {
		return nil, fmt.Errorf("app: init gateway: %w", err)
	}

	a.handler = a.buildMux()
	return a, nil
}

// initStore connects the Postgres thread store unless one was injected or
// persistence is disabled by config.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.Memory.PostgresDSN
	if dsn == "" {
		slog.Warn("running without persistence; threads and turns are not stored")
		return nil
	}
	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	return nil
}

// initGateway assembles the WebSocket gateway around the session manager.
func (a *App) initGateway() error {
	gw, err := gateway.New(gateway.Deps{
		VAD:      a.providers.VAD,
		STT:      a.providers.STT,
		Resolver: a.providers.Resolver,
		TTS:      a.providers.TTS,
		Voice:    a.cfg.AssistantVoice(),
		Sessions: a.sessions,
		Store:    a.store,
		Metrics:  a.metrics,
	}, gateway.WithSessionOptions(
		session.WithVADConfig(a.cfg.VAD.Detector()),
		session.WithSTTConfig(a.cfg.STTStream()),
		session.WithFinalWait(a.cfg.Session.FinalWait()),
	))
	if err != nil {
		return err
	}
	a.gateway = gw
	return nil
}

// buildMux assembles the HTTP surface: the voice session gateway, Prometheus
// metrics, and health probes, all behind the request metrics middleware.
func (a *App) buildMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /v1/session", a.gateway)
	mux.Handle("GET /metrics", promhttp.Handler())
	a.healthHandler().Register(mux)
	return observe.Middleware(a.metrics)(mux)
}

// healthHandler builds readiness checkers for the subsystems that can
// actually degrade at runtime.
func (a *App) healthHandler() *health.Handler {
	var checkers []health.Checker
	if pinger, ok := a.store.(interface {
		Ping(ctx context.Context) error
	}); ok {
		checkers = append(checkers, health.Checker{
			Name:  "store",
			Check: pinger.Ping,
		})
	}
	if hr, ok := a.providers.Resolver.(*resolver.HTTPResolver); ok {
		checkers = append(checkers, health.Checker{
			Name: "resolver",
			Check: func(context.Context) error {
				if state := hr.BreakerState(); state == resilience.StateOpen {
					return errors.New("circuit breaker open")
				}
				return nil
			},
		})
	}
	return health.New(checkers...)
}

// Handler exposes the assembled HTTP handler. Used by tests that serve the
// app through httptest instead of a real listener.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Addr returns the bound listen address, or nil before Run has opened its
// listener.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Run opens the configured listener and serves HTTP until ctx is cancelled,
// then drains in-flight requests and stops all live sessions. It returns
// ctx's error after a clean drain.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	srv := &http.Server{
		Handler:     a.handler,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()

		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(drainCtx); err != nil {
			slog.Warn("http drain incomplete", "err", err)
		}
		if err := a.sessions.Shutdown(drainCtx); err != nil {
			slog.Warn("session drain incomplete", "err", err)
		}
		return nil
	})

	slog.Info("app running", "addr", ln.Addr().String())
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Shutdown tears down all remaining subsystems in order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.sessions.Shutdown(ctx); err != nil {
			slog.Warn("session shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
