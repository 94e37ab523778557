package llm

import (
	"context"
	"encoding/json"
	"time"
)

// BackendID names a text-generation backend. It keys fallback chains and
// per-backend rate limiters.
type BackendID string

const (
	Ollama    BackendID = "ollama"
	Anthropic BackendID = "anthropic"
	Grok      BackendID = "grok"
)

// Request is a single generation request. Zero values mean "backend default".
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  *float64
	MaxTokens    int
}

// Result is a successful generation. Text is never empty.
type Result struct {
	Backend      BackendID
	Model        string
	Text         string
	Latency      time.Duration
	InputTokens  int
	OutputTokens int
	Raw          json.RawMessage
}

// TextGenerator is the uniform contract every backend client satisfies.
// The router depends only on this interface.
type TextGenerator interface {
	ID() BackendID
	Generate(ctx context.Context, req Request) (Result, error)
}

// Transport performs one backend-specific call with no retries or limiting.
// Errors should be *RoutingError values; anything else is treated as
// retryable.
type Transport interface {
	ID() BackendID
	Do(ctx context.Context, req Request) (Result, error)
}

// Temperature returns a pointer to t, for building a Request literal.
func Temperature(t float64) *float64 {
	return &t
}
