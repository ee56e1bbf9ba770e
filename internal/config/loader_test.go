package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/recall/internal/config"
)

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  log_level: debug
providers:
  stt:
    name: deepgram
    api_key: dg-key
    model: nova-3
    language: en-GB
  tts:
    name: elevenlabs
    api_key: el-key
  tts_fallback:
    name: openai
    api_key: oa-key
  vad:
    name: energy
  resolver:
    mode: http
    endpoint: https://resolver.example.com/v1/resolve
    timeout_seconds: 10
voice:
  provider: elevenlabs
  voice_id: v-123
  speed_factor: 1.1
vad:
  hangover_ms: 750
  pre_roll_ms: 350
session:
  max_sessions: 64
  final_wait_ms: 2500
memory:
  postgres_dsn: "postgres://localhost/recall"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if got := cfg.Providers.Resolver.Timeout(); got != 10*time.Second {
		t.Errorf("resolver timeout = %v, want 10s", got)
	}
	if got := cfg.Session.FinalWait(); got != 2500*time.Millisecond {
		t.Errorf("final wait = %v, want 2.5s", got)
	}
	det := cfg.VAD.Detector()
	if det.HangoverMs != 750 || det.PreRollMs != 350 {
		t.Errorf("detector tuning = %+v, want hangover 750 pre-roll 350", det)
	}
	if det.SampleRate != 16000 || det.StartDebounceMs != 100 {
		t.Errorf("detector defaults = %+v, want sample rate 16000 debounce 100", det)
	}
	if got := cfg.STTStream().Language; got != "en-GB" {
		t.Errorf("stt language = %q, want en-GB", got)
	}
	if v := cfg.AssistantVoice(); v.ID != "v-123" || v.SpeedFactor != 1.1 {
		t.Errorf("assistant voice = %+v, want v-123 at 1.1x", v)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_address: ":8080"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_HTTPResolverRequiresEndpoint(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  resolver:
    mode: http
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for http resolver without endpoint, got nil")
	}
	if !strings.Contains(err.Error(), "endpoint") {
		t.Errorf("error should mention endpoint, got: %v", err)
	}
}

func TestValidate_LLMResolverRequiresProviderAndModel(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  resolver:
    mode: llm
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for llm resolver without provider/model, got nil")
	}
	if !strings.Contains(err.Error(), "provider") {
		t.Errorf("error should mention provider, got: %v", err)
	}
	if !strings.Contains(err.Error(), "model") {
		t.Errorf("error should mention model, got: %v", err)
	}
}

func TestValidate_VADRanges(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "hangover too short",
			yaml: "vad:\n  hangover_ms: 500\n",
			want: "hangover_ms",
		},
		{
			name: "hangover too long",
			yaml: "vad:\n  hangover_ms: 1200\n",
			want: "hangover_ms",
		},
		{
			name: "pre-roll out of range",
			yaml: "vad:\n  pre_roll_ms: 600\n",
			want: "pre_roll_ms",
		},
		{
			name: "silence above speech threshold",
			yaml: "vad:\n  speech_threshold: 0.01\n  silence_threshold: 0.02\n",
			want: "silence_threshold",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error should mention %s, got: %v", tc.want, err)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
providers:
  resolver:
    mode: http
vad:
  hangover_ms: 100
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"log_level", "endpoint", "hangover_ms"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestLogLevel_Level(t *testing.T) {
	t.Parallel()
	if config.LogDebug.Level() >= config.LogError.Level() {
		t.Error("debug should map below error")
	}
	if !config.LogWarn.IsValid() {
		t.Error("warn should be a valid level")
	}
	if config.LogLevel("loud").IsValid() {
		t.Error("unknown level should be invalid")
	}
}
