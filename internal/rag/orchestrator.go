package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/bolla/internal/besteffort"
	"github.com/kalambet/bolla/internal/ingest"
	"github.com/kalambet/bolla/internal/llm"
	"github.com/kalambet/bolla/internal/memory"
	"github.com/kalambet/bolla/internal/router"
	"github.com/kalambet/bolla/internal/storage"
	"github.com/kalambet/bolla/internal/training"
)

// DefaultTopMemories is how many long-term memories a turn may surface.
const DefaultTopMemories = 7

// MemorySearcher is the long-term memory surface a turn reads.
type MemorySearcher interface {
	Search(ctx context.Context, query string, limit int) ([]storage.Memory, error)
	MarkAccessed(ctx context.Context, ids []int64) error
}

// Dispatcher sends a composed prompt to a backend.
type Dispatcher interface {
	Route(ctx context.Context, req llm.Request, tier router.Tier) (router.Outcome, error)
}

// Collector receives every answered exchange.
type Collector interface {
	FromOutcome(ctx context.Context, input string, out router.Outcome, source string, ec training.ExchangeContext) error
}

// PersonalityFunc returns the current system prompt.
type PersonalityFunc func(ctx context.Context) (string, error)

// Options are the optional collaborators of an Orchestrator.
type Options struct {
	// TopMemories <= 0 means DefaultTopMemories.
	TopMemories int
	// Personality nil, failing or empty means DefaultPersonality.
	Personality PersonalityFunc
	Collector   Collector
	// AutoRemember, when set, queues every user message for fact
	// extraction after a successful answer.
	AutoRemember ingest.JobEnqueuer
	// Background runs the collector and auto-remember hand-offs. Nil means
	// a private group.
	Background *besteffort.Group
}

// RequestContext describes where a message came from.
type RequestContext struct {
	ConversationID string
	Source         string
	Channel        string
	UserRole       string
	Topic          string
	// Tier overrides the local classification when set.
	Tier router.Tier
}

// Response is an answered turn.
type Response struct {
	Text           string
	Outcome        router.Outcome
	UsedMemories   []storage.Memory
	Keywords       []string
	ComposedPrompt string
}

// Orchestrator answers chat messages with long-term memories, recent
// history and personality folded into the prompt.
type Orchestrator struct {
	memories   MemorySearcher
	dispatcher Dispatcher
	shortTerm  *memory.ShortTerm
	opts       Options
	bg         *besteffort.Group
}

// New builds an Orchestrator. shortTerm must be the process-wide instance.
func New(memories MemorySearcher, dispatcher Dispatcher, shortTerm *memory.ShortTerm, opts Options) *Orchestrator {
	if opts.TopMemories <= 0 {
		opts.TopMemories = DefaultTopMemories
	}
	bg := opts.Background
	if bg == nil {
		bg = &besteffort.Group{}
	}
	return &Orchestrator{
		memories:   memories,
		dispatcher: dispatcher,
		shortTerm:  shortTerm,
		opts:       opts,
		bg:         bg,
	}
}

// Respond answers message within its conversation. Enrichment failures
// degrade to defaults; only a dispatch failure is returned, in which case
// the conversation history is left untouched.
func (o *Orchestrator) Respond(ctx context.Context, message string, rc RequestContext) (Response, error) {
	if strings.TrimSpace(message) == "" {
		return Response{}, errors.New("message is empty")
	}
	if rc.ConversationID == "" {
		return Response{}, errors.New("conversation id is required")
	}
	if rc.Source == "" {
		rc.Source = training.SourceInternal
	}

	keywords := ExtractKeywords(message)
	query := message
	if len(keywords) > 0 {
		query = strings.Join(keywords, " ")
	}

	tier := rc.Tier
	if tier == "" {
		tier = router.ClassifyMessage(message)
	}

	var (
		used []storage.Memory
		soul string
	)
	var g errgroup.Group
	g.Go(func() error {
		used = o.searchMemories(ctx, query)
		return nil
	})
	g.Go(func() error {
		soul = o.personality(ctx)
		return nil
	})
	g.Wait()

	unlock := o.shortTerm.Lock(rc.ConversationID)
	defer unlock()

	system, prompt := ComposePrompt(PromptInput{
		Message:     message,
		Personality: soul,
		Memories:    used,
		ShortTerm:   o.shortTerm.FormatContext(rc.ConversationID),
	})

	out, err := o.dispatcher.Route(ctx, llm.Request{Prompt: prompt, SystemPrompt: system}, tier)
	if err != nil {
		return Response{}, fmt.Errorf("dispatching message: %w", err)
	}

	o.shortTerm.Add(rc.ConversationID, memory.RoleUser, message)
	o.shortTerm.Add(rc.ConversationID, memory.RoleAssistant, out.Text)
	convLen := o.shortTerm.Count(rc.ConversationID)
	unlock()

	if len(used) > 0 {
		ids := make([]int64, len(used))
		for i, m := range used {
			ids[i] = m.ID
		}
		if err := o.memories.MarkAccessed(ctx, ids); err != nil {
			slog.Warn("marking memories accessed failed", "error", err)
		}
	}

	o.handOff(ctx, message, out, rc, used, convLen)

	return Response{
		Text:           out.Text,
		Outcome:        out,
		UsedMemories:   used,
		Keywords:       keywords,
		ComposedPrompt: "[SYSTEM]\n" + system + "\n\n[PROMPT]\n" + prompt,
	}, nil
}

// Wait blocks until background hand-offs finished.
func (o *Orchestrator) Wait() {
	o.bg.Wait()
}

func (o *Orchestrator) searchMemories(ctx context.Context, query string) []storage.Memory {
	ms, err := o.memories.Search(ctx, query, o.opts.TopMemories)
	if err != nil {
		slog.Warn("memory search failed, answering without memories", "error", err)
		return nil
	}
	return ms
}

func (o *Orchestrator) personality(ctx context.Context) string {
	if o.opts.Personality == nil {
		return DefaultPersonality
	}
	p, err := o.opts.Personality(ctx)
	if err != nil {
		slog.Warn("personality unavailable, using default", "error", err)
		return DefaultPersonality
	}
	if p = strings.TrimSpace(p); p == "" {
		return DefaultPersonality
	}
	return p
}

func (o *Orchestrator) handOff(ctx context.Context, message string, out router.Outcome, rc RequestContext, used []storage.Memory, convLen int) {
	if c := o.opts.Collector; c != nil {
		contents := make([]string, len(used))
		for i, m := range used {
			contents[i] = m.Content
		}
		ec := training.ExchangeContext{
			Channel:            rc.Channel,
			UserRole:           rc.UserRole,
			Topic:              rc.Topic,
			MemoriesUsed:       contents,
			ConversationLength: convLen,
		}
		o.bg.Go(ctx, "training collection", func(ctx context.Context) error {
			return c.FromOutcome(ctx, message, out, rc.Source, ec)
		})
	}
	if q := o.opts.AutoRemember; q != nil {
		o.bg.Go(ctx, "auto remember", func(ctx context.Context) error {
			_, err := ingest.Enqueue(ctx, q, ingest.RememberPayload{Text: message, Source: rc.Source})
			return err
		})
	}
}
