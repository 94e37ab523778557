package router

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kalambet/bolla/internal/llm"
)

var (
	codeBlockRe = regexp.MustCompile("```[\\s\\S]*```")

	technicalRe = regexp.MustCompile(`\b(debug|debugar|bug|implement[ae]r?|algoritmo|algorithm|arquitetura|architecture|refactor)\b`)
	buildRe     = regexp.MustCompile(`\b(cri[ae]\s+(um|uma)|desenvolv[ae]r?|escreva\s+(um|uma)|gera\s+(um|uma))\b.{0,40}\b(código|code|script|função|function|classe|class|sistema|api|módulo)`)

	greetingRe = regexp.MustCompile(`^(oi|olá|ola|hey|hi|hello|e\s*aí|e\s*ai|tudo\s*bem|tudo\s*bom|bom\s*dia|boa\s*tarde|boa\s*noite)[\s!?.,]*$`)
	ackRe      = regexp.MustCompile(`^(ok|certo|entendido|vlw|valeu|obrigad[oa]|tmj|blz|beleza|show|perfeito|ótimo|otimo|excelente|top|não|nao|sim|yes|no)[\s!?.,]*$`)
)

const (
	simpleMaxWords  = 4
	complexMinWords = 61
)

// ClassifyMessage assigns a tier to a raw user message with local
// heuristics only. Complex signals win over simple ones.
func ClassifyMessage(msg string) Tier {
	text := strings.ToLower(strings.TrimSpace(msg))
	words := len(strings.Fields(text))

	if words >= complexMinWords || codeBlockRe.MatchString(text) ||
		technicalRe.MatchString(text) || buildRe.MatchString(text) {
		return Complex
	}
	if words <= simpleMaxWords || greetingRe.MatchString(text) || ackRe.MatchString(text) {
		return Simple
	}
	return Medium
}

const classifySystemPrompt = "You are a task complexity classifier. Respond with exactly one word: simple, medium, or complex."

// Classifier asks a backend to label text that is not a plain user
// message, such as an already composed prompt.
type Classifier struct {
	gen      llm.TextGenerator
	fallback Tier
}

// NewClassifier uses gen (normally the local backend) and answers fallback
// whenever the backend fails or replies with something else.
func NewClassifier(gen llm.TextGenerator, fallback Tier) *Classifier {
	if !fallback.Valid() {
		fallback = Simple
	}
	return &Classifier{gen: gen, fallback: fallback}
}

// ClassifyPrompt never fails; problems are logged and resolve to the
// fallback tier.
func (c *Classifier) ClassifyPrompt(ctx context.Context, prompt string) Tier {
	if c == nil {
		return Simple
	}
	if c.gen == nil {
		return c.fallback
	}
	res, err := c.gen.Generate(ctx, llm.Request{
		Prompt:       classifyPrompt(prompt),
		SystemPrompt: classifySystemPrompt,
		Temperature:  llm.Temperature(0),
		MaxTokens:    10,
	})
	if err != nil {
		slog.Warn("tier classification failed", "error", err, "fallback", c.fallback)
		return c.fallback
	}

	fields := strings.Fields(strings.ToLower(res.Text))
	if len(fields) > 0 {
		if t, err := ParseTier(strings.Trim(fields[0], ".,!:;\"'")); err == nil {
			return t
		}
	}
	slog.Warn("unrecognized tier from classifier", "output", res.Text, "fallback", c.fallback)
	return c.fallback
}

func classifyPrompt(task string) string {
	if r := []rune(task); len(r) > 500 {
		task = string(r[:500])
	}
	return fmt.Sprintf(`Classify the complexity of this task:
- simple: greetings, yes/no questions, basic facts, translation, basic classification
- medium: conversations, opinions, summaries, explanations, casual creative text
- complex: code generation, debugging, deep analysis, planning, research, structured documents

Task: "%s"

Respond with only one word (simple, medium, or complex):`, task)
}
