package app_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/recall/internal/app"
	"github.com/MrWong99/recall/internal/config"
	resolvermock "github.com/MrWong99/recall/internal/resolver/mock"
	memorymock "github.com/MrWong99/recall/pkg/memory/mock"
	sttmock "github.com/MrWong99/recall/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/recall/pkg/provider/tts/mock"
	vadmock "github.com/MrWong99/recall/pkg/provider/vad/mock"
)

// testConfig returns a minimal config bound to an ephemeral port.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   config.LogInfo,
		},
		Voice: config.VoiceConfig{
			Provider: "test",
			VoiceID:  "voice-1",
		},
		Session: config.SessionConfig{
			MaxSessions: 4,
		},
	}
}

// testProviders returns a full mock provider set.
func testProviders() *app.Providers {
	return &app.Providers{
		STT:      &sttmock.Provider{},
		TTS:      &ttsmock.Provider{},
		VAD:      &vadmock.Engine{},
		Resolver: &resolvermock.Resolver{},
	}
}

func TestNew_ServesHealthAndMetrics(t *testing.T) {
	t.Parallel()

	application, err := app.New(
		context.Background(),
		testConfig(),
		testProviders(),
		app.WithThreadStore(memorymock.NewStore()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	srv := httptest.NewServer(application.Handler())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	if _, err := app.New(context.Background(), testConfig(), nil); err == nil {
		t.Fatal("New() accepted nil providers")
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	application, err := app.New(
		context.Background(),
		testConfig(),
		testProviders(),
		app.WithThreadStore(memorymock.NewStore()),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run(ctx)
	}()

	// Wait for the listener to come up.
	deadline := time.Now().Add(5 * time.Second)
	for application.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("Run() never bound a listener")
		}
		time.Sleep(10 * time.Millisecond)
	}

	url := fmt.Sprintf("http://%s/healthz", application.Addr())
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}
