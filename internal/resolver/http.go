package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/recall/internal/resilience"
)

const (
	// defaultTimeout bounds the single long-latency call of a turn. The
	// upstream combines web search with LLM inference, so this is generous.
	defaultTimeout = 20 * time.Second

	// maxResponseBytes caps how much of a resolver reply is read.
	maxResponseBytes = 4 << 20
)

// HTTPOption is a functional option for configuring an HTTPResolver.
type HTTPOption func(*HTTPResolver)

// WithHTTPClient sets the underlying HTTP client. Defaults to a dedicated
// client with no client-level timeout; per-call deadlines come from
// [HTTPResolver.Resolve].
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPResolver) { r.client = c }
}

// WithTimeout sets the per-call deadline. Default 20s.
func WithTimeout(d time.Duration) HTTPOption {
	return func(r *HTTPResolver) { r.timeout = d }
}

// WithBreaker configures the circuit breaker guarding the upstream.
func WithBreaker(cfg resilience.BreakerConfig) HTTPOption {
	return func(r *HTTPResolver) {
		cfg.Name = "resolver"
		r.breaker = resilience.NewCircuitBreaker(cfg)
	}
}

// WithResolverLogger sets the structured logger. Defaults to slog.Default().
func WithResolverLogger(log *slog.Logger) HTTPOption {
	return func(r *HTTPResolver) { r.log = log }
}

// HTTPResolver calls the external resolver service over HTTP. Each Resolve
// is a single attempt guarded by a circuit breaker; the state machine never
// retries on its own.
type HTTPResolver struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	breaker  *resilience.CircuitBreaker
	log      *slog.Logger
}

// Compile-time interface assertion.
var _ Resolver = (*HTTPResolver)(nil)

// NewHTTP creates an HTTPResolver posting to the given endpoint URL.
func NewHTTP(endpoint string, opts ...HTTPOption) (*HTTPResolver, error) {
	if endpoint == "" {
		return nil, errors.New("resolver: endpoint must not be empty")
	}
	r := &HTTPResolver{
		endpoint: endpoint,
		client:   &http.Client{},
		timeout:  defaultTimeout,
		breaker:  resilience.NewCircuitBreaker(resilience.BreakerConfig{Name: "resolver"}),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Resolve posts the request and decodes the reply strictly. The call is
// bounded by the configured timeout on top of any deadline already in ctx.
func (r *HTTPResolver) Resolve(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("resolver: encode request: %w", err)
	}

	var resp *Response
	start := time.Now()
	err = r.breaker.Execute(func() error {
		var innerErr error
		resp, innerErr = r.post(ctx, body)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	resp.Candidates = NormalizeCandidates(resp.Candidates)
	r.log.Debug("resolver call finished",
		"thread_id", req.ThreadID,
		"status", string(resp.Status),
		"candidates", len(resp.Candidates),
		"duration", time.Since(start))
	return resp, nil
}

// post performs one HTTP round trip.
func (r *HTTPResolver) post(ctx context.Context, body []byte) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("resolver: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("resolver: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resolver: unexpected status %d", httpResp.StatusCode)
	}
	return ParseResponse(raw)
}

// BreakerState exposes the circuit breaker state for health reporting.
func (r *HTTPResolver) BreakerState() resilience.State {
	return r.breaker.State()
}
