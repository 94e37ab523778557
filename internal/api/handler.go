package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/bolla/internal/ingest"
	"github.com/kalambet/bolla/internal/llm"
	"github.com/kalambet/bolla/internal/maintenance"
	"github.com/kalambet/bolla/internal/memory"
	"github.com/kalambet/bolla/internal/rag"
	"github.com/kalambet/bolla/internal/router"
	"github.com/kalambet/bolla/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Responder answers chat messages with memory and personality.
type Responder interface {
	Respond(ctx context.Context, message string, rc rag.RequestContext) (rag.Response, error)
}

// Dispatcher routes raw prompts to backends.
type Dispatcher interface {
	Route(ctx context.Context, req llm.Request, tier router.Tier) (router.Outcome, error)
	Classify(ctx context.Context, prompt string) router.Tier
	Configured() []llm.BackendID
	Chain(tier router.Tier) []llm.BackendID
}

// Memories is the long-term memory surface exposed over HTTP and MCP.
type Memories interface {
	Remember(ctx context.Context, text, source string, category memory.Category) ([]storage.Memory, error)
	SaveRaw(ctx context.Context, content, source string, category memory.Category) (storage.Memory, error)
	Search(ctx context.Context, query string, limit int) ([]storage.Memory, error)
	TopAccessed(ctx context.Context, limit int) ([]storage.Memory, error)
	ByCategory(ctx context.Context, category memory.Category, limit int) ([]storage.Memory, error)
	Count(ctx context.Context) (int, error)
}

// Personality reads and edits the agent's traits.
type Personality interface {
	Traits(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, trait, value string) error
	SystemPrompt(ctx context.Context) (string, error)
}

// Conversations is the short-term memory the API can reset.
type Conversations interface {
	Clear(conversationID string)
	Count(conversationID string) int
}

// HealthReporter exposes the last result of the background health checks.
type HealthReporter interface {
	Status() []maintenance.CheckStatus
}

// Deps holds everything the HTTP API and MCP server serve.
type Deps struct {
	Responder     Responder
	Router        Dispatcher
	Memories      Memories
	Personality   Personality
	Conversations Conversations
	// Jobs receives async remember requests. Nil makes async requests run
	// inline.
	Jobs       ingest.JobEnqueuer
	// Health is optional; without it /health only reports liveness.
	Health     HealthReporter
	ForceLocal bool
	Token      string
	// HTTPClient fetches URLs for remember requests.
	HTTPClient *http.Client
}

// NewHandler returns the bolla HTTP API. Everything except /health needs
// the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/backends", handleBackends(deps))
		r.Post("/v1/respond", handleRespond(deps))
		r.Post("/v1/route", handleRoute(deps))

		r.Post("/memories", handleSaveMemory(deps))
		r.Post("/memories/remember", handleRemember(deps))
		r.Get("/memories", handleListMemories(deps))
		r.Get("/memories/search", handleSearchMemories(deps))
		r.Get("/memories/top", handleTopMemories(deps))
		r.Get("/memories/count", handleCountMemories(deps))

		r.Get("/personality", handleGetPersonality(deps))
		r.Patch("/personality", handlePatchPersonality(deps))

		r.Delete("/conversations/{id}", handleClearConversation(deps))
	})

	return r
}

// HealthResponse is the /health body. Status is "degraded" when any
// dependency failed its last check.
type HealthResponse struct {
	Status string                    `json:"status"`
	Checks []maintenance.CheckStatus `json:"checks,omitempty"`
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if deps.Health != nil {
			resp.Checks = deps.Health.Status()
			for _, c := range resp.Checks {
				if !c.OK {
					resp.Status = "degraded"
				}
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// dispatchError maps a failed dispatch to a response. Exhausting every
// backend is an upstream failure.
func dispatchError(w http.ResponseWriter, err error) {
	var ee *router.ExhaustedError
	if errors.As(err, &ee) {
		httpError(w, http.StatusBadGateway, "backend_error", "%v", err)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		httpError(w, http.StatusGatewayTimeout, "timeout_error", "%v", err)
		return
	}
	httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
