package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/recall/internal/resilience"
)

func TestHTTPResolver_Success(t *testing.T) {
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"status": "done",
			"responseType": "search",
			"candidates": [
				{"title": "Creep", "artist": "Radiohead", "confidence": 0.4},
				{"title": "Karma Police", "artist": "Radiohead", "confidence": 0.9}
			]
		}`))
	}))
	defer srv.Close()

	r, err := NewHTTP(srv.URL)
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	resp, err := r.Resolve(context.Background(), Request{Transcript: "what song is this", ThreadID: "t1"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if gotReq.Transcript != "what song is this" || gotReq.ThreadID != "t1" {
		t.Errorf("server saw request %+v", gotReq)
	}
	if resp.Status != StatusDone {
		t.Errorf("Status = %q", resp.Status)
	}
	// Candidates come back normalized: best first.
	if len(resp.Candidates) != 2 || resp.Candidates[0].Title != "Karma Police" {
		t.Errorf("Candidates = %+v, want Karma Police first", resp.Candidates)
	}
}

func TestHTTPResolver_MalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"done","bogus":1}`))
	}))
	defer srv.Close()

	r, err := NewHTTP(srv.URL)
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	_, err = r.Resolve(context.Background(), Request{Transcript: "hi", ThreadID: "t1"})
	var malformed *MalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("err = %v, want *MalformedError", err)
	}
}

func TestHTTPResolver_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	r, err := NewHTTP(srv.URL)
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	if _, err := r.Resolve(context.Background(), Request{Transcript: "hi", ThreadID: "t1"}); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestHTTPResolver_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	r, err := NewHTTP(srv.URL, WithTimeout(30*time.Millisecond))
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	_, err = r.Resolve(context.Background(), Request{Transcript: "hi", ThreadID: "t1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestHTTPResolver_BreakerOpensAfterFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, err := NewHTTP(srv.URL, WithBreaker(resilience.BreakerConfig{
		MaxFailures: 2,
		Cooldown:    time.Hour,
	}))
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := r.Resolve(context.Background(), Request{Transcript: "hi", ThreadID: "t1"}); err == nil {
			t.Fatal("expected error")
		}
	}
	if r.BreakerState() != resilience.StateOpen {
		t.Fatalf("breaker state = %v, want open", r.BreakerState())
	}

	// Next call is rejected without hitting the server.
	before := calls
	_, err = r.Resolve(context.Background(), Request{Transcript: "hi", ThreadID: "t1"})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if calls != before {
		t.Errorf("server was called while circuit open")
	}
}

func TestNewHTTP_EmptyEndpoint(t *testing.T) {
	if _, err := NewHTTP(""); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}
