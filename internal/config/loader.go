package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram"},
	"tts": {"elevenlabs", "openai"},
	"vad": {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	if cfg.Providers.TTSFallback != nil {
		validateProviderName("tts", cfg.Providers.TTSFallback.Name)
	}
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// Resolver
	res := cfg.Providers.Resolver
	if res.Mode != "" && !res.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("providers.resolver.mode %q is invalid; valid values: http, llm", res.Mode))
	}
	if res.Mode == ResolverHTTP && res.Endpoint == "" {
		errs = append(errs, errors.New("providers.resolver.endpoint is required when mode is http"))
	}
	if res.Mode == ResolverLLM {
		if res.Provider == "" {
			errs = append(errs, errors.New("providers.resolver.provider is required when mode is llm"))
		}
		if res.Model == "" {
			errs = append(errs, errors.New("providers.resolver.model is required when mode is llm"))
		}
	}
	if res.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("providers.resolver.timeout_seconds %d must not be negative", res.TimeoutSeconds))
	}

	// Voice
	if cfg.Voice.SpeedFactor != 0 {
		if cfg.Voice.SpeedFactor < 0.5 || cfg.Voice.SpeedFactor > 2.0 {
			errs = append(errs, fmt.Errorf("voice.speed_factor %.2f is out of range [0.5, 2.0]", cfg.Voice.SpeedFactor))
		}
	}

	// VAD tuning
	vadCfg := cfg.VAD
	if vadCfg.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("vad.sample_rate %d must not be negative", vadCfg.SampleRate))
	}
	if vadCfg.FrameSizeMs < 0 {
		errs = append(errs, fmt.Errorf("vad.frame_size_ms %d must not be negative", vadCfg.FrameSizeMs))
	}
	if vadCfg.SpeechThreshold != 0 && vadCfg.SilenceThreshold > vadCfg.SpeechThreshold {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %.4f must not exceed vad.speech_threshold %.4f", vadCfg.SilenceThreshold, vadCfg.SpeechThreshold))
	}
	if vadCfg.HangoverMs != 0 {
		if vadCfg.HangoverMs < 700 || vadCfg.HangoverMs > 900 {
			errs = append(errs, fmt.Errorf("vad.hangover_ms %d is out of range [700, 900]", vadCfg.HangoverMs))
		}
	}
	if vadCfg.PreRollMs != 0 {
		if vadCfg.PreRollMs < 300 || vadCfg.PreRollMs > 500 {
			errs = append(errs, fmt.Errorf("vad.pre_roll_ms %d is out of range [300, 500]", vadCfg.PreRollMs))
		}
	}
	if vadCfg.StartDebounceMs < 0 {
		errs = append(errs, fmt.Errorf("vad.start_debounce_ms %d must not be negative", vadCfg.StartDebounceMs))
	}

	// Session
	if cfg.Session.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("session.max_sessions %d must not be negative", cfg.Session.MaxSessions))
	}
	if cfg.Session.FinalWaitMs < 0 {
		errs = append(errs, fmt.Errorf("session.final_wait_ms %d must not be negative", cfg.Session.FinalWaitMs))
	}

	// Persistence availability
	if cfg.Memory.PostgresDSN == "" {
		slog.Warn("memory.postgres_dsn is empty; threads and turns will not be persisted")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
