// Package resilience provides circuit breaker and provider failover
// primitives used around the external resolver and the speech backends.
//
// [CircuitBreaker] is a classic three-state breaker (closed → open →
// half-open). [FallbackGroup] composes multiple instances of any provider
// type with per-entry breakers so a failing primary is bypassed in favour of
// healthy fallbacks.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the cooldown has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state, all calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped. Calls are rejected with
	// [ErrCircuitOpen] until the cooldown elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the cooldown. A limited
	// number of calls are let through; success closes the breaker, failure
	// re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [CircuitBreaker].
type BreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open before transitioning to
	// half-open. Default: 30s.
	Cooldown time.Duration

	// ProbeBudget is the maximum number of calls allowed in the half-open
	// state before the breaker decides whether to close or re-open.
	// Default: 3.
	ProbeBudget int
}

// CircuitBreaker implements the three-state circuit breaker pattern.
// It is safe for concurrent use from multiple goroutines.
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probeBudget int

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probes      int
	probeFails  int
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied
// configuration. Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 3
	}
	return &CircuitBreaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		probeBudget: cfg.ProbeBudget,
		state:       StateClosed,
	}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn. In the half-open state only the probe
// budget worth of calls is permitted.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.cooldown {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeFails = 0
		slog.Info("circuit breaker transitioning to half-open", "name", cb.name)

	case StateHalfOpen:
		if cb.probes >= cb.probeBudget {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}

	probing := cb.state == StateHalfOpen
	if probing {
		cb.probes++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.onFailure(probing)
	} else {
		cb.onSuccess(probing)
	}
	return err
}

// onFailure handles failure accounting. Must be called with cb.mu held.
func (cb *CircuitBreaker) onFailure(probing bool) {
	cb.lastFailure = time.Now()

	if probing {
		cb.probeFails++
		// Any failure in half-open immediately re-opens.
		cb.state = StateOpen
		cb.failures = cb.maxFailures
		slog.Warn("circuit breaker re-opened from half-open", "name", cb.name)
		return
	}

	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		slog.Warn("circuit breaker opened",
			"name", cb.name,
			"consecutive_failures", cb.failures)
	}
}

// onSuccess handles success accounting. Must be called with cb.mu held.
func (cb *CircuitBreaker) onSuccess(probing bool) {
	if probing {
		if cb.probes-cb.probeFails >= cb.probeBudget {
			cb.state = StateClosed
			cb.failures = 0
			cb.probes = 0
			cb.probeFails = 0
			slog.Info("circuit breaker closed after successful probes", "name", cb.name)
		}
		return
	}
	cb.failures = 0
}

// State returns the current [State] of the breaker. If the breaker is open
// and the cooldown has elapsed, the returned state is [StateHalfOpen]; the
// actual transition happens on the next [Execute] call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed], clearing all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.probeFails = 0
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
