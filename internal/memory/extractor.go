package memory

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kalambet/bolla/internal/llm"
)

// Extractor distills free text into atomic facts using a backend. Every
// failure degrades to an empty list or General; callers never see an error.
type Extractor struct {
	gen llm.TextGenerator
}

// NewExtractor uses gen for both extraction and classification.
func NewExtractor(gen llm.TextGenerator) *Extractor {
	return &Extractor{gen: gen}
}

// ExtractFacts returns up to five standalone facts found in text.
func (e *Extractor) ExtractFacts(ctx context.Context, text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	res, err := e.gen.Generate(ctx, llm.Request{
		Prompt:       extractionPrompt(text),
		SystemPrompt: extractSystemPrompt,
		Temperature:  llm.Temperature(0),
	})
	if err != nil {
		slog.Warn("fact extraction failed", "error", err)
		return nil
	}

	parsed := ParseFacts(res.Text)
	if parsed.Err != nil {
		slog.Warn("could not parse facts", "error", parsed.Err, "output", truncate(res.Text, 200))
		return nil
	}
	return parsed.Facts
}

// ClassifyFact assigns one category to fact.
func (e *Extractor) ClassifyFact(ctx context.Context, fact string) Category {
	res, err := e.gen.Generate(ctx, llm.Request{
		Prompt:      categoryPrompt(fact),
		Temperature: llm.Temperature(0),
		MaxTokens:   10,
	})
	if err != nil {
		slog.Warn("fact classification failed", "error", err)
		return General
	}

	fields := strings.Fields(res.Text)
	if len(fields) == 0 {
		return General
	}
	if c, ok := ParseCategory(strings.Trim(fields[0], ".,:;\"'`")); ok {
		return c
	}
	return General
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
