// Command recall is the main entry point for the Recall voice assistant
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/recall/internal/app"
	"github.com/MrWong99/recall/internal/config"
	"github.com/MrWong99/recall/internal/observe"
	"github.com/MrWong99/recall/internal/resilience"
	"github.com/MrWong99/recall/internal/resolver"
	"github.com/MrWong99/recall/pkg/provider/stt"
	"github.com/MrWong99/recall/pkg/provider/stt/deepgram"
	"github.com/MrWong99/recall/pkg/provider/tts"
	"github.com/MrWong99/recall/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/recall/pkg/provider/tts/openaitts"
	"github.com/MrWong99/recall/pkg/provider/vad"
	"github.com/MrWong99/recall/pkg/provider/vad/energy"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "recall: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "recall: %v\n", err)
		}
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.Level(),
	}))
	slog.SetDefault(logger)

	slog.Info("recall starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "recall",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config entry and constructs the provider from the
// real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Language))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if format := optString(entry.Options, "output_format"); format != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(format))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []openaitts.Option
		if entry.Model != "" {
			opts = append(opts, openaitts.WithModel(entry.Model))
		}
		return openaitts.New(entry.APIKey, opts...)
	})

	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})

	reg.RegisterResolver(config.ResolverHTTP, func(entry config.ResolverEntry) (resolver.Resolver, error) {
		return resolver.NewHTTP(entry.Endpoint,
			resolver.WithTimeout(entry.Timeout()),
			resolver.WithBreaker(breakerConfig("resolver", entry.Breaker)),
		)
	})

	reg.RegisterResolver(config.ResolverLLM, func(entry config.ResolverEntry) (resolver.Resolver, error) {
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		return resolver.NewLLM(entry.Provider, entry.Model, opts...)
	})
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct. Every pipeline stage is
// required; the VAD defaults to the built-in energy detector and the
// resolver to the LLM path when unset.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if cfg.Providers.STT.Name == "" {
		return nil, errors.New("providers.stt is not configured")
	}
	sttP, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	ps.STT = sttP
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	if cfg.Providers.TTS.Name == "" {
		return nil, errors.New("providers.tts is not configured")
	}
	ttsP, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	if fb := cfg.Providers.TTSFallback; fb != nil {
		fbP, err := reg.CreateTTS(*fb)
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
		}
		group := resilience.NewTTSFallback(ttsP, cfg.Providers.TTS.Name, resilience.FallbackConfig{})
		group.AddFallback(fb.Name, fbP)
		ps.TTS = group
		slog.Info("provider created", "kind", "tts-fallback", "name", fb.Name)
	} else {
		ps.TTS = ttsP
	}

	vadEntry := cfg.Providers.VAD
	if vadEntry.Name == "" {
		vadEntry.Name = "energy"
	}
	vadEng, err := reg.CreateVAD(vadEntry)
	if err != nil {
		return nil, fmt.Errorf("create vad engine %q: %w", vadEntry.Name, err)
	}
	ps.VAD = vadEng
	slog.Info("provider created", "kind", "vad", "name", vadEntry.Name)

	resEntry := cfg.Providers.Resolver
	if resEntry.Mode == "" {
		resEntry.Mode = config.ResolverLLM
	}
	res, err := reg.CreateResolver(resEntry)
	if err != nil {
		return nil, fmt.Errorf("create %s resolver: %w", resEntry.Mode, err)
	}
	ps.Resolver = res
	slog.Info("provider created", "kind", "resolver", "mode", resEntry.Mode)

	return ps, nil
}

// breakerConfig maps the YAML breaker block onto a resilience.BreakerConfig,
// leaving zero values for the breaker defaults.
func breakerConfig(name string, cfg config.BreakerConfig) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		Name:        name,
		MaxFailures: cfg.MaxFailures,
		Cooldown:    time.Duration(cfg.CooldownSeconds) * time.Second,
		ProbeBudget: cfg.ProbeBudget,
	}
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Recall — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	if fb := cfg.Providers.TTSFallback; fb != nil {
		printProvider("TTS fallback", fb.Name, fb.Model)
	}
	printProvider("Resolver", string(cfg.Providers.Resolver.Mode), cfg.Providers.Resolver.Model)
	if cfg.Memory.PostgresDSN != "" {
		fmt.Printf("║  Persistence     : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Persistence     : %-19s ║\n", "(disabled)")
	}
	if cfg.Session.MaxSessions > 0 {
		fmt.Printf("║  Session cap     : %-19d ║\n", cfg.Session.MaxSessions)
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
