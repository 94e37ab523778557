package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/kalambet/bolla/internal/personality"
)

func handleGetPersonality(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traits, err := deps.Personality.Traits(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get personality: %v", err)
			return
		}
		prompt, err := deps.Personality.SystemPrompt(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to render personality: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"traits":        traits,
			"system_prompt": prompt,
		})
	}
}

func handlePatchPersonality(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fields map[string]string
		if !decodeBody(w, r, &fields) {
			return
		}
		if len(fields) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no traits given")
			return
		}

		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if err := deps.Personality.Set(r.Context(), k, fields[k]); err != nil {
				if errors.Is(err, personality.ErrInvalidTrait) {
					httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
					return
				}
				httpError(w, http.StatusInternalServerError, "api_error", "failed to set trait %q: %v", k, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "updated", "traits": keys})
	}
}
