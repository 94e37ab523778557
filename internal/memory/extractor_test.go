package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kalambet/bolla/internal/llm"
)

// mockGen answers by matching a substring of the prompt.
type mockGen struct {
	mu      sync.Mutex
	answers map[string]string
	err     error
	reqs    []llm.Request
}

func (m *mockGen) ID() llm.BackendID { return llm.Ollama }

func (m *mockGen) Generate(_ context.Context, req llm.Request) (llm.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return llm.Result{}, m.err
	}
	for k, v := range m.answers {
		if strings.Contains(req.Prompt, k) {
			return llm.Result{Backend: llm.Ollama, Text: v}, nil
		}
	}
	return llm.Result{Backend: llm.Ollama, Text: "?"}, nil
}

func TestExtractFacts(t *testing.T) {
	gen := &mockGen{answers: map[string]string{
		"Extract the most important": "```json\n[\"Lucas prefere café\"]\n```",
	}}
	e := NewExtractor(gen)

	facts := e.ExtractFacts(context.Background(), "eu amo café")
	if len(facts) != 1 || facts[0] != "Lucas prefere café" {
		t.Errorf("facts = %q", facts)
	}
	req := gen.reqs[0]
	if req.SystemPrompt != extractSystemPrompt {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if req.Temperature == nil || *req.Temperature != 0 {
		t.Error("extraction must run at temperature 0")
	}
}

func TestExtractFacts_Degrades(t *testing.T) {
	failing := NewExtractor(&mockGen{err: errors.New("down")})
	if got := failing.ExtractFacts(context.Background(), "texto"); len(got) != 0 {
		t.Errorf("facts on backend error = %q", got)
	}

	garbled := NewExtractor(&mockGen{answers: map[string]string{"Extract": "no idea"}})
	if got := garbled.ExtractFacts(context.Background(), "texto"); len(got) != 0 {
		t.Errorf("facts on unparsable output = %q", got)
	}

	gen := &mockGen{}
	if got := NewExtractor(gen).ExtractFacts(context.Background(), "  "); got != nil || len(gen.reqs) != 0 {
		t.Error("blank text should not call the backend")
	}
}

func TestClassifyFact(t *testing.T) {
	e := NewExtractor(&mockGen{answers: map[string]string{"gosta": "Preference."}})
	if got := e.ClassifyFact(context.Background(), "Lucas gosta de chá"); got != Preference {
		t.Errorf("category = %q, want preference", got)
	}

	e = NewExtractor(&mockGen{answers: map[string]string{"Fact:": "banana"}})
	if got := e.ClassifyFact(context.Background(), "x"); got != General {
		t.Errorf("category = %q, want general fallback", got)
	}

	e = NewExtractor(&mockGen{err: errors.New("down")})
	if got := e.ClassifyFact(context.Background(), "x"); got != General {
		t.Errorf("category = %q, want general on error", got)
	}
}
