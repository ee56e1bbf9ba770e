// Package mock provides a test double for the resolver.Resolver interface.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/recall/internal/resolver"
)

// ResolveCall records a single invocation of Resolve.
type ResolveCall struct {
	// Ctx is the context passed to Resolve.
	Ctx context.Context
	// Req is the request passed to Resolve.
	Req resolver.Request
}

// Resolver is a mock implementation of resolver.Resolver.
type Resolver struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Response is returned by Resolve when Err is nil.
	Response *resolver.Response

	// Err, if non-nil, is returned as the error from Resolve.
	Err error

	// Delay, if non-zero, is waited before returning (still honouring ctx
	// cancellation). Useful for tests that exit or barge in mid-call.
	Delay time.Duration

	// --- Call records ---

	// ResolveCalls records every call to Resolve in order.
	ResolveCalls []ResolveCall
}

// Resolve records the call and returns the configured Response or Err after
// the optional Delay. Context cancellation during the delay wins.
func (r *Resolver) Resolve(ctx context.Context, req resolver.Request) (*resolver.Response, error) {
	r.mu.Lock()
	r.ResolveCalls = append(r.ResolveCalls, ResolveCall{Ctx: ctx, Req: req})
	resp := r.Response
	err := r.Err
	delay := r.Delay
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = &resolver.Response{
			Status:           resolver.StatusDone,
			ResponseType:     resolver.TypeAnswer,
			AssistantMessage: resolver.AssistantMessage{Role: "assistant", Text: "ok"},
		}
	}
	return resp, nil
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (r *Resolver) Calls() []ResolveCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ResolveCall, len(r.ResolveCalls))
	copy(out, r.ResolveCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResolveCalls = nil
}

// Ensure Resolver implements resolver.Resolver at compile time.
var _ resolver.Resolver = (*Resolver)(nil)
