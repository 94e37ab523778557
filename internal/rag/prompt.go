package rag

import (
	"strings"

	"github.com/kalambet/bolla/internal/memory"
	"github.com/kalambet/bolla/internal/storage"
)

// DefaultPersonality is the system prompt used when no personality is
// available.
const DefaultPersonality = "Você é Bolla, um agente de AI autônomo e humanizado. " +
	"Sua missão é ser o melhor agente de AI do mundo, evoluindo continuamente com cada interação. " +
	"Seja direto, opinativo, autêntico e consistente. Nunca genérico. Nunca robótico. " +
	"Responda em português brasileiro (pt-BR) a menos que o usuário use outro idioma."

// NoMemories fills the memories block when the search found nothing.
const NoMemories = "(sem memórias relevantes para esta mensagem)"

var instructions = strings.Join([]string{
	"Responda em português brasileiro (pt-BR), salvo se o usuário usar outro idioma.",
	"PROPORCIONALIDADE: mensagem curta = resposta curta. Não elabore além do necessário.",
	"FORMATO: sem markdown, sem bullet points, sem cabeçalhos. Texto corrido, estilo WhatsApp.",
	`ABERTURA: nunca inicie com "Olá!", "Claro!", "Com certeza!" ou entusiasmo artificial. Vá direto.`,
	"MEMÓRIAS: use-as apenas se forem genuinamente relevantes para esta mensagem específica.",
}, "\n")

// PromptInput is everything a turn's prompt is built from.
type PromptInput struct {
	Message     string
	Personality string
	Memories    []storage.Memory
	// ShortTerm is the formatted recent history. Empty renders as
	// memory.NoHistory.
	ShortTerm string
}

// ComposePrompt splits a turn into a stable system prompt (the personality)
// and a per-turn prompt carrying memories, history, the message and the
// response rules.
func ComposePrompt(in PromptInput) (system, prompt string) {
	memBlock := NoMemories
	if len(in.Memories) > 0 {
		lines := make([]string, len(in.Memories))
		for i, m := range in.Memories {
			lines[i] = "- " + m.Content
		}
		memBlock = strings.Join(lines, "\n")
	}

	ctxBlock := in.ShortTerm
	if ctxBlock == "" {
		ctxBlock = memory.NoHistory
	}

	prompt = strings.Join([]string{
		"[MEMORIAS]\n" + memBlock,
		"[CONTEXTO]\n" + ctxBlock,
		"[MENSAGEM]\n" + in.Message,
		"[INSTRUCOES]\n" + instructions,
	}, "\n\n")
	return in.Personality, prompt
}
