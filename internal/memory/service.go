package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/bolla/internal/storage"
)

// Store is the long-term memory persistence the service needs.
type Store interface {
	SaveMemory(ctx context.Context, m storage.Memory) (storage.Memory, error)
	SearchMemories(ctx context.Context, query string, limit int) ([]storage.Memory, error)
	IncrementAccess(ctx context.Context, ids []int64) error
	CountMemories(ctx context.Context) (int, error)
	TopAccessedMemories(ctx context.Context, limit int) ([]storage.Memory, error)
	MemoriesByCategory(ctx context.Context, category string, limit int) ([]storage.Memory, error)
}

// FactExtractor turns text into categorized facts.
type FactExtractor interface {
	ExtractFacts(ctx context.Context, text string) []string
	ClassifyFact(ctx context.Context, fact string) Category
}

// ErrNoExtractor is returned by Remember when no local backend is
// available to pull facts out of text.
var ErrNoExtractor = errors.New("no fact extractor configured")

// classifyConcurrency bounds parallel category lookups per Remember call.
const classifyConcurrency = 2

// Service is the entry point for persisting and querying facts outside of
// a chat turn.
type Service struct {
	store     Store
	extractor FactExtractor
}

func NewService(store Store, extractor FactExtractor) *Service {
	return &Service{store: store, extractor: extractor}
}

// Remember extracts facts from text and stores each one. With an empty
// category every fact is classified individually. An empty result with a
// nil error means nothing worth keeping was found.
func (s *Service) Remember(ctx context.Context, text, source string, category Category) ([]storage.Memory, error) {
	if s.extractor == nil {
		return nil, ErrNoExtractor
	}
	facts := s.extractor.ExtractFacts(ctx, text)
	if len(facts) == 0 {
		return nil, nil
	}

	cats := make([]Category, len(facts))
	if category != "" {
		for i := range cats {
			cats[i] = category
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(classifyConcurrency)
		for i, f := range facts {
			g.Go(func() error {
				cats[i] = s.extractor.ClassifyFact(gctx, f)
				return nil
			})
		}
		g.Wait()
	}

	saved := make([]storage.Memory, 0, len(facts))
	for i, f := range facts {
		m, err := s.store.SaveMemory(ctx, storage.Memory{
			Content:        f,
			SearchableText: f,
			Category:       string(cats[i]),
			Source:         source,
		})
		if err != nil {
			return saved, fmt.Errorf("storing fact: %w", err)
		}
		slog.Info("stored fact", "id", m.ID, "category", m.Category, "fact", truncate(f, 80))
		saved = append(saved, m)
	}
	return saved, nil
}

// Search returns memories ranked against query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]storage.Memory, error) {
	return s.store.SearchMemories(ctx, query, limit)
}

// SaveRaw stores content as one memory without extraction. An empty
// category means General.
func (s *Service) SaveRaw(ctx context.Context, content, source string, category Category) (storage.Memory, error) {
	if category == "" {
		category = General
	}
	return s.store.SaveMemory(ctx, storage.Memory{
		Content:        content,
		SearchableText: content,
		Category:       string(category),
		Source:         source,
	})
}

// BuildContext renders memories relevant to query as a prompt block, or ""
// when there are none or the search fails.
func (s *Service) BuildContext(ctx context.Context, query string, limit int) string {
	ms, err := s.store.SearchMemories(ctx, query, limit)
	if err != nil {
		slog.Warn("memory search failed", "error", err)
		return ""
	}
	if len(ms) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Relevant memories:")
	for _, m := range ms {
		sb.WriteString("\n- ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}

// MarkAccessed records that the memories were surfaced to a prompt.
func (s *Service) MarkAccessed(ctx context.Context, ids []int64) error {
	return s.store.IncrementAccess(ctx, ids)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.CountMemories(ctx)
}

func (s *Service) TopAccessed(ctx context.Context, limit int) ([]storage.Memory, error) {
	return s.store.TopAccessedMemories(ctx, limit)
}

func (s *Service) ByCategory(ctx context.Context, category Category, limit int) ([]storage.Memory, error) {
	return s.store.MemoriesByCategory(ctx, string(category), limit)
}
