package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

const (
	DefaultAnthropicModel = "claude-3-5-sonnet-latest"
	DefaultMaxTokens      = 1024
)

// AnthropicTransport calls the Messages API.
type AnthropicTransport struct {
	messages  *anthropic.MessageService
	model     string
	maxTokens int
}

// AnthropicConfig configures the Anthropic transport. BaseURL and
// HTTPClient are optional.
type AnthropicConfig struct {
	APIKey     string
	Model      string
	MaxTokens  int
	BaseURL    string
	HTTPClient *http.Client
}

// NewAnthropicTransport builds a transport with SDK retries disabled so the
// caller's retry policy is the only one in effect.
func NewAnthropicTransport(cfg AnthropicConfig) *AnthropicTransport {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicTransport{messages: &client.Messages, model: cfg.Model, maxTokens: cfg.MaxTokens}
}

func (t *AnthropicTransport) ID() BackendID { return Anthropic }

func (t *AnthropicTransport) Do(ctx context.Context, req Request) (Result, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = t.maxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(t.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Prompt)},
		}},
	}
	if req.SystemPrompt != "" {
		// The personality block is stable across turns; mark it cacheable.
		params.System = []anthropic.TextBlockParam{{
			Text:         req.SystemPrompt,
			CacheControl: anthropic.NewCacheControlEphemeralParam(),
		}}
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}

	msg, err := t.messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return Result{}, StatusError(Anthropic, apiErr.StatusCode, apiErrorBody(apiErr.RawJSON()))
		}
		return Result{}, SDKError(Anthropic, err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return Result{
		Backend:      Anthropic,
		Model:        string(msg.Model),
		Text:         text.String(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		Raw:          json.RawMessage(msg.RawJSON()),
	}, nil
}

// apiErrorBody pulls the human message out of an error payload shaped like
// {"error":{"message":"..."}} and falls back to the raw text.
func apiErrorBody(raw string) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(raw), &body) == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return strings.TrimSpace(raw)
}
