package llm

import (
	"context"
	"errors"

	"github.com/kalambet/bolla/internal/ollama"
)

// OllamaTransport calls a local Ollama server's generate endpoint.
type OllamaTransport struct {
	client    *ollama.Client
	model     string
	maxTokens int
}

// NewOllamaTransport targets model on the given Ollama client. maxTokens
// is used when the request does not set one; zero leaves Ollama's default.
func NewOllamaTransport(client *ollama.Client, model string, maxTokens int) *OllamaTransport {
	return &OllamaTransport{client: client, model: model, maxTokens: maxTokens}
}

func (t *OllamaTransport) ID() BackendID { return Ollama }

// Model returns the configured model name.
func (t *OllamaTransport) Model() string { return t.model }

func (t *OllamaTransport) Do(ctx context.Context, req Request) (Result, error) {
	gr := ollama.GenerateRequest{
		Model:  t.model,
		Prompt: req.Prompt,
		System: req.SystemPrompt,
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = t.maxTokens
	}
	if req.Temperature != nil || maxTokens > 0 {
		gr.Options = &ollama.Options{Temperature: req.Temperature, NumPredict: maxTokens}
	}

	resp, err := t.client.Generate(ctx, gr)
	if err != nil {
		var se *ollama.StatusError
		if errors.As(err, &se) {
			return Result{}, StatusError(Ollama, se.StatusCode, se.Body)
		}
		if errors.Is(err, ollama.ErrMalformedResponse) {
			return Result{}, MalformedError(Ollama, err)
		}
		return Result{}, TransportError(Ollama, err)
	}

	model := resp.Model
	if model == "" {
		model = t.model
	}
	return Result{
		Backend:      Ollama,
		Model:        model,
		Text:         resp.Response,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
		Raw:          resp.Raw,
	}, nil
}
