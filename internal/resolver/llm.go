package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// llmSystemPrompt constrains the model to the resolver wire schema so the
// reply can be decoded with the same strict parser as the HTTP path.
const llmSystemPrompt = `You are the resolver for a live-music voice assistant. ` +
	`The user transcript is a question asked at a concert or listening session, ` +
	`often asking to identify the song currently playing. Reply with ONLY a JSON ` +
	`object, no prose and no code fences, matching exactly this schema: ` +
	`{"status":"done|refining|failed","responseType":"answer|search|both",` +
	`"assistantMessage":{"role":"assistant","text":"..."},` +
	`"candidates":[{"title":"...","artist":"...","confidence":0.0,"sources":["..."]}],` +
	`"followUpQuestion":"..."}. ` +
	`Use "refining" with a followUpQuestion when the transcript is too vague, ` +
	`and "failed" when you cannot help at all. Confidence must be within [0,1]. ` +
	`Omit candidates entirely for plain conversation.`

// LLMResolver resolves transcripts directly against an LLM instead of the
// dedicated resolver service. It is used for local development and as a
// stand-in when no resolver endpoint is configured.
type LLMResolver struct {
	backend anyllmlib.Provider
	model   string
	log     *slog.Logger
}

// Compile-time interface assertion.
var _ Resolver = (*LLMResolver)(nil)

// NewLLM creates an LLMResolver backed by the named provider.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama".
// opts are any-llm-go configuration options (e.g. anyllmlib.WithAPIKey).
// Without an API key option the provider falls back to its environment
// variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...).
func NewLLM(providerName, model string, opts ...anyllmlib.Option) (*LLMResolver, error) {
	if providerName == "" {
		return nil, fmt.Errorf("resolver: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("resolver: model must not be empty")
	}
	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("resolver: create %q backend: %w", providerName, err)
	}
	return &LLMResolver{backend: backend, model: model, log: slog.Default()}, nil
}

// createBackend creates the underlying any-llm-go provider.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama", providerName)
	}
}

// Resolve sends the transcript to the model and decodes its JSON reply with
// the strict schema parser.
func (r *LLMResolver) Resolve(ctx context.Context, req Request) (*Response, error) {
	user := fmt.Sprintf("Thread %s. Transcript: %q", req.ThreadID, req.Transcript)
	if n := len(req.Attachments); n > 0 {
		user += fmt.Sprintf(" (%d image attachment(s) omitted)", n)
	}

	params := anyllmlib.CompletionParams{
		Model: r.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: llmSystemPrompt},
			{Role: anyllmlib.RoleUser, Content: user},
		},
	}

	resp, err := r.backend.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("resolver: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("resolver: empty choices in completion")
	}

	raw := stripFences(resp.Choices[0].Message.ContentString())
	parsed, err := ParseResponse([]byte(raw))
	if err != nil {
		return nil, err
	}
	parsed.Candidates = NormalizeCandidates(parsed.Candidates)
	return parsed, nil
}

// stripFences removes a surrounding markdown code fence, which some models
// emit despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
