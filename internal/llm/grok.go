package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const (
	DefaultGrokBaseURL = "https://api.x.ai/v1"
	DefaultGrokModel   = "grok-2"
)

// GrokTransport calls xAI's OpenAI-compatible chat completions endpoint.
type GrokTransport struct {
	completions *openai.ChatCompletionService
	model       string
	maxTokens   int
}

// GrokConfig configures the Grok transport.
type GrokConfig struct {
	APIKey     string
	Model      string
	MaxTokens  int
	BaseURL    string
	HTTPClient *http.Client
}

// NewGrokTransport builds a transport with SDK retries disabled.
func NewGrokTransport(cfg GrokConfig) *GrokTransport {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGrokBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGrokModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)
	return &GrokTransport{completions: &client.Chat.Completions, model: cfg.Model, maxTokens: cfg.MaxTokens}
}

func (t *GrokTransport) ID() BackendID { return Grok }

func (t *GrokTransport) Do(ctx context.Context, req Request) (Result, error) {
	var msgs []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	msgs = append(msgs, openai.UserMessage(req.Prompt))

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = t.maxTokens
	}
	params := openai.ChatCompletionNewParams{
		Model:     shared.ChatModel(t.model),
		Messages:  msgs,
		MaxTokens: openai.Int(int64(maxTokens)),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	resp, err := t.completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Result{}, StatusError(Grok, apiErr.StatusCode, apiErrorBody(apiErr.RawJSON()))
		}
		return Result{}, SDKError(Grok, err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, &RoutingError{Backend: Grok, Message: "empty response"}
	}

	return Result{
		Backend:      Grok,
		Model:        resp.Model,
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		Raw:          json.RawMessage(resp.RawJSON()),
	}, nil
}
