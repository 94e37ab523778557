package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/bolla/internal/llm"
)

func TestClassifyMessage(t *testing.T) {
	seventy := strings.TrimSpace(strings.Repeat("palavra ", 70))
	cases := []struct {
		name string
		msg  string
		want Tier
	}{
		{"greeting", "oi", Simple},
		{"greeting with punctuation", "Bom dia!!", Simple},
		{"ack", "valeu", Simple},
		{"short question", "que horas são?", Simple},
		{"long message", seventy, Complex},
		{"debug keyword", "preciso debugar uma função recursiva", Complex},
		{"build request", "escreva um script em python que renomeia arquivos", Complex},
		{"code fence", "o que isso faz ```x := 1```", Complex},
		{"plain statement", "hoje eu fui ao mercado comprar frutas e legumes frescos", Medium},
		{"english algorithm", "can you explain this sorting algorithm to me please", Complex},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyMessage(tc.msg); got != tc.want {
				t.Errorf("ClassifyMessage(%q) = %s, want %s", tc.msg, got, tc.want)
			}
		})
	}
}

func TestParseTier(t *testing.T) {
	if tier, err := ParseTier(" Complex "); err != nil || tier != Complex {
		t.Errorf("ParseTier = %q, %v", tier, err)
	}
	if _, err := ParseTier("hard"); err == nil {
		t.Error("expected error for unknown tier")
	}
}

type fakeGen struct {
	id   llm.BackendID
	text string
	err  error
	req  llm.Request
}

func (f *fakeGen) ID() llm.BackendID { return f.id }

func (f *fakeGen) Generate(_ context.Context, req llm.Request) (llm.Result, error) {
	f.req = req
	if f.err != nil {
		return llm.Result{}, f.err
	}
	return llm.Result{Backend: f.id, Text: f.text}, nil
}

func TestClassifyPrompt(t *testing.T) {
	gen := &fakeGen{id: llm.Ollama, text: "Medium."}
	c := NewClassifier(gen, Simple)

	if got := c.ClassifyPrompt(context.Background(), "explain monads"); got != Medium {
		t.Errorf("tier = %s, want medium", got)
	}
	if gen.req.Temperature == nil || *gen.req.Temperature != 0 {
		t.Error("classification must run at temperature 0")
	}
	if !strings.Contains(gen.req.Prompt, `Task: "explain monads"`) {
		t.Errorf("prompt = %q", gen.req.Prompt)
	}
}

func TestClassifyPrompt_DegradesToFallback(t *testing.T) {
	cases := []*fakeGen{
		{id: llm.Ollama, text: "I think it is hard"},
		{id: llm.Ollama, err: errors.New("down")},
	}
	for _, gen := range cases {
		c := NewClassifier(gen, Medium)
		if got := c.ClassifyPrompt(context.Background(), "x"); got != Medium {
			t.Errorf("tier = %s, want fallback medium", got)
		}
	}
}

func TestClassifyPrompt_NoGenerator(t *testing.T) {
	if got := NewClassifier(nil, Complex).ClassifyPrompt(context.Background(), "x"); got != Complex {
		t.Errorf("tier = %s, want configured fallback complex", got)
	}
	var c *Classifier
	if got := c.ClassifyPrompt(context.Background(), "x"); got != Simple {
		t.Errorf("nil classifier tier = %s, want simple", got)
	}
}

func TestClassifyPrompt_TruncatesTask(t *testing.T) {
	gen := &fakeGen{id: llm.Ollama, text: "simple"}
	NewClassifier(gen, Simple).ClassifyPrompt(context.Background(), strings.Repeat("é", 800))
	if n := strings.Count(gen.req.Prompt, "é"); n != 500 {
		t.Errorf("task runes in prompt = %d, want 500", n)
	}
}
