package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	maxFacts       = 5
	maxExtractText = 2000
)

const extractSystemPrompt = "You are a fact extractor. You extract reusable facts from text and return them as a JSON array of strings. No explanation, only JSON."

func extractionPrompt(text string) string {
	if r := []rune(text); len(r) > maxExtractText {
		text = string(r[:maxExtractText])
	}
	return fmt.Sprintf(`Extract the most important and reusable facts from the text below.

Rules:
- Include: user preferences, learned knowledge, opinions, important events
- Skip: greetings, one-time context, filler words, questions without answers
- Write each fact as a standalone sentence (e.g. "User Lucas prefers TypeScript over JavaScript")
- Return ONLY a valid JSON array of strings: ["fact 1", "fact 2"]
- Maximum %d facts. If no relevant facts exist, return []

Text:
"""
%s
"""`, maxFacts, text)
}

func categoryPrompt(fact string) string {
	return fmt.Sprintf(`Classify this fact into exactly one category.
Categories: preference | fact | opinion | event | general
Fact: "%s"
Respond with only the category name:`, fact)
}

// ErrNoFacts is reported when the model output holds no JSON string array.
var ErrNoFacts = errors.New("no JSON array of facts in output")

// ParseResult is the outcome of parsing untrusted model output. Err is set
// when the output could not be interpreted; Facts is then empty.
type ParseResult struct {
	Facts []string
	Err   error
}

var arrayRe = regexp.MustCompile(`\[[\s\S]*?\]`)

// ParseFacts reads a JSON array of strings from raw. It tries the whole
// trimmed output first, then the first bracketed span. Blank and non-string
// entries are dropped and at most five facts are kept.
func ParseFacts(raw string) ParseResult {
	if facts, ok := decodeFacts(strings.TrimSpace(raw)); ok {
		return ParseResult{Facts: facts}
	}
	if span := arrayRe.FindString(raw); span != "" {
		if facts, ok := decodeFacts(span); ok {
			return ParseResult{Facts: facts}
		}
	}
	return ParseResult{Err: ErrNoFacts}
}

func decodeFacts(s string) ([]string, bool) {
	var items []any
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, false
	}
	facts := make([]string, 0, len(items))
	for _, it := range items {
		f, ok := it.(string)
		if !ok || strings.TrimSpace(f) == "" {
			continue
		}
		facts = append(facts, strings.TrimSpace(f))
		if len(facts) == maxFacts {
			break
		}
	}
	return facts, true
}
