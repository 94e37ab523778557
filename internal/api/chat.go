package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/bolla/internal/llm"
	"github.com/kalambet/bolla/internal/rag"
	"github.com/kalambet/bolla/internal/router"
	"github.com/kalambet/bolla/internal/training"
)

// defaultConversation is used when a caller does not name one.
const defaultConversation = "default"

type RespondRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	Source         string `json:"source"`
	Channel        string `json:"channel"`
	UserRole       string `json:"user_role"`
	Topic          string `json:"topic"`
	Tier           string `json:"tier"`
	// Debug adds the composed prompt to the response.
	Debug bool `json:"debug"`
}

type RouteRequest struct {
	Prompt       string   `json:"prompt"`
	SystemPrompt string   `json:"system_prompt"`
	Temperature  *float64 `json:"temperature"`
	MaxTokens    int      `json:"max_tokens"`
	Tier         string   `json:"tier"`
	// Classify asks the local backend for the tier instead of the
	// heuristic when Tier is empty.
	Classify bool `json:"classify"`
}

// OutcomeJSON describes how a request was served.
type OutcomeJSON struct {
	Text         string          `json:"text"`
	Backend      llm.BackendID   `json:"backend"`
	Model        string          `json:"model"`
	Tier         router.Tier     `json:"tier"`
	FallbackUsed bool            `json:"fallback_used"`
	Attempted    []llm.BackendID `json:"attempted"`
	Errors       []string        `json:"errors,omitempty"`
	LatencyMs    int64           `json:"latency_ms"`
	InputTokens  int             `json:"input_tokens,omitempty"`
	OutputTokens int             `json:"output_tokens,omitempty"`
}

type RespondResponse struct {
	OutcomeJSON
	Keywords       []string     `json:"keywords"`
	Memories       []MemoryJSON `json:"memories"`
	ComposedPrompt string       `json:"composed_prompt,omitempty"`
}

func outcomeJSON(o router.Outcome) OutcomeJSON {
	return OutcomeJSON{
		Text:         o.Text,
		Backend:      o.Backend,
		Model:        o.Model,
		Tier:         o.Tier,
		FallbackUsed: o.FallbackUsed,
		Attempted:    o.Attempted,
		Errors:       o.Errors,
		LatencyMs:    o.Latency.Milliseconds(),
		InputTokens:  o.InputTokens,
		OutputTokens: o.OutputTokens,
	}
}

func parseTierParam(s string) (router.Tier, error) {
	if s == "" {
		return "", nil
	}
	return router.ParseTier(s)
}

func handleBackends(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chains := make(map[router.Tier][]llm.BackendID, len(router.Tiers))
		for _, t := range router.Tiers {
			chains[t] = deps.Router.Chain(t)
		}
		configured := deps.Router.Configured()
		if configured == nil {
			configured = []llm.BackendID{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"configured":  configured,
			"force_local": deps.ForceLocal,
			"chains":      chains,
		})
	}
}

func handleRespond(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RespondRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}
		tier, err := parseTierParam(req.Tier)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if req.ConversationID == "" {
			req.ConversationID = defaultConversation
		}
		if req.Source == "" {
			req.Source = training.SourceAPI
		}

		resp, err := deps.Responder.Respond(r.Context(), req.Message, rag.RequestContext{
			ConversationID: req.ConversationID,
			Source:         req.Source,
			Channel:        req.Channel,
			UserRole:       req.UserRole,
			Topic:          req.Topic,
			Tier:           tier,
		})
		if err != nil {
			dispatchError(w, err)
			return
		}

		out := RespondResponse{
			OutcomeJSON: outcomeJSON(resp.Outcome),
			Keywords:    resp.Keywords,
			Memories:    memoriesJSON(resp.UsedMemories),
		}
		if out.Keywords == nil {
			out.Keywords = []string{}
		}
		if req.Debug {
			out.ComposedPrompt = resp.ComposedPrompt
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleRoute(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RouteRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt is required")
			return
		}
		tier, err := parseTierParam(req.Tier)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if tier == "" && req.Classify {
			tier = deps.Router.Classify(r.Context(), req.Prompt)
		}

		out, err := deps.Router.Route(r.Context(), llm.Request{
			Prompt:       req.Prompt,
			SystemPrompt: req.SystemPrompt,
			Temperature:  req.Temperature,
			MaxTokens:    req.MaxTokens,
		}, tier)
		if err != nil {
			dispatchError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, outcomeJSON(out))
	}
}

func handleClearConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		n := deps.Conversations.Count(id)
		deps.Conversations.Clear(id)
		writeJSON(w, http.StatusOK, map[string]any{"status": "cleared", "turns": n})
	}
}
