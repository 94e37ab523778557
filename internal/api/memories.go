package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/bolla/internal/ingest"
	"github.com/kalambet/bolla/internal/memory"
	"github.com/kalambet/bolla/internal/storage"
	"github.com/kalambet/bolla/internal/training"
)

const (
	defaultMemoryLimit = 10
	maxMemoryLimit     = 100
)

// MemoryJSON is a stored fact as served over the API.
type MemoryJSON struct {
	ID          int64  `json:"id"`
	Content     string `json:"content"`
	Category    string `json:"category"`
	Source      string `json:"source,omitempty"`
	AccessCount int    `json:"access_count"`
	CreatedAt   string `json:"created_at"`
}

func memoriesJSON(ms []storage.Memory) []MemoryJSON {
	out := make([]MemoryJSON, len(ms))
	for i, m := range ms {
		out[i] = MemoryJSON{
			ID:          m.ID,
			Content:     m.Content,
			Category:    m.Category,
			Source:      m.Source,
			AccessCount: m.AccessCount,
			CreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return out
}

type SaveMemoryRequest struct {
	Content  string `json:"content"`
	Category string `json:"category"`
	Source   string `json:"source"`
}

type RememberRequest struct {
	Text     string `json:"text"`
	URL      string `json:"url"`
	Source   string `json:"source"`
	Category string `json:"category"`
	Async    bool   `json:"async"`
}

// RememberResult is either the stored facts or the queued job.
type RememberResult struct {
	Status   string       `json:"status"`
	JobID    string       `json:"job_id,omitempty"`
	Memories []MemoryJSON `json:"memories,omitempty"`
}

// parseCategory accepts "" as "let the extractor decide".
func parseCategory(s string) (memory.Category, error) {
	if s == "" {
		return "", nil
	}
	c, ok := memory.ParseCategory(s)
	if !ok {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// remember stores the facts in text now or, with async and a queue, hands
// them to the ingest worker.
func remember(ctx context.Context, deps Deps, text, source string, cat memory.Category, async bool) (RememberResult, error) {
	if async && deps.Jobs != nil {
		id, err := ingest.Enqueue(ctx, deps.Jobs, ingest.RememberPayload{Text: text, Source: source, Category: string(cat)})
		if err != nil {
			return RememberResult{}, err
		}
		return RememberResult{Status: "queued", JobID: id}, nil
	}
	saved, err := deps.Memories.Remember(ctx, text, source, cat)
	if err != nil {
		return RememberResult{}, err
	}
	return RememberResult{Status: "stored", Memories: memoriesJSON(saved)}, nil
}

func handleSaveMemory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SaveMemoryRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}
		cat, err := parseCategory(req.Category)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if req.Source == "" {
			req.Source = training.SourceAPI
		}

		m, err := deps.Memories.SaveRaw(r.Context(), req.Content, req.Source, cat)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save memory: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, memoriesJSON([]storage.Memory{m})[0])
	}
}

func handleRemember(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RememberRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Text) == "" && req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "one of text or url is required")
			return
		}
		cat, err := parseCategory(req.Category)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if req.Source == "" {
			req.Source = training.SourceAPI
		}

		text := req.Text
		if text == "" {
			text, err = fetchText(r.Context(), deps.HTTPClient, req.URL)
			if err != nil {
				httpError(w, http.StatusBadGateway, "api_error", "%v", err)
				return
			}
			if text == "" {
				httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "url has no readable text")
				return
			}
		}

		res, err := remember(r.Context(), deps, text, req.Source, cat, req.Async)
		if errors.Is(err, memory.ErrNoExtractor) {
			httpError(w, http.StatusServiceUnavailable, "unavailable", "fact extraction needs the local backend")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "remember failed: %v", err)
			return
		}
		code := http.StatusOK
		if res.Status == "queued" {
			code = http.StatusAccepted
		}
		writeJSON(w, code, res)
	}
}

func handleSearchMemories(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		limit := parseIntParam(r, "limit", defaultMemoryLimit, maxMemoryLimit)

		ms, err := deps.Memories.Search(r.Context(), q, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, memoriesJSON(ms))
	}
}

func handleTopMemories(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", defaultMemoryLimit, maxMemoryLimit)
		ms, err := deps.Memories.TopAccessed(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list memories: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, memoriesJSON(ms))
	}
}

func handleListMemories(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cat, err := parseCategory(r.URL.Query().Get("category"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if cat == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "category is required")
			return
		}
		limit := parseIntParam(r, "limit", defaultMemoryLimit, maxMemoryLimit)

		ms, err := deps.Memories.ByCategory(r.Context(), cat, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list memories: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, memoriesJSON(ms))
	}
}

func handleCountMemories(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Memories.Count(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count memories: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"count": n})
	}
}
