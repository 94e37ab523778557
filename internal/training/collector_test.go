package training

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/bolla/internal/llm"
	"github.com/kalambet/bolla/internal/router"
	"github.com/kalambet/bolla/internal/storage"
)

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFromOutcome_PersistsScoredEntry(t *testing.T) {
	store := openStore(t)
	c := NewCollector(store)
	ctx := context.Background()

	out := router.Outcome{
		Result: llm.Result{
			Backend:      llm.Anthropic,
			Model:        "claude-3-5-sonnet-latest",
			Text:         strings.Repeat("resposta ", 30),
			Latency:      1500 * time.Millisecond,
			InputTokens:  42,
			OutputTokens: 90,
		},
		Tier:         router.Complex,
		FallbackUsed: true,
	}
	ec := ExchangeContext{Channel: "general", ConversationLength: 4, MemoriesUsed: []string{"Lucas prefere Go"}}
	if err := c.FromOutcome(ctx, "explica o router", out, SourceTelegram, ec); err != nil {
		t.Fatalf("FromOutcome: %v", err)
	}

	entries, err := store.ListTrainingEntries(ctx, 10)
	if err != nil {
		t.Fatalf("ListTrainingEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.ID == "" || e.Type != string(Conversation) || e.Source != SourceTelegram {
		t.Errorf("entry = %+v", e)
	}
	// 270 runes -> 0.6, conversation of 4 -> 0.7
	if e.QualityScore != 0.7 {
		t.Errorf("QualityScore = %v, want 0.7", e.QualityScore)
	}

	var meta Metadata
	if err := json.Unmarshal([]byte(e.MetadataJSON), &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Provider != "anthropic" || meta.LatencyMs != 1500 || meta.Complexity != "complex" || !meta.FallbackUsed {
		t.Errorf("metadata = %+v", meta)
	}

	var gotCtx ExchangeContext
	if err := json.Unmarshal([]byte(e.ContextJSON), &gotCtx); err != nil {
		t.Fatalf("context: %v", err)
	}
	if gotCtx.Channel != "general" || len(gotCtx.MemoriesUsed) != 1 {
		t.Errorf("context = %+v", gotCtx)
	}
}

func TestCleanup_RemovesOldLowQualityOnly(t *testing.T) {
	store := openStore(t)
	c := NewCollector(store)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	c.Save(ctx, Entry{Type: Conversation, Output: "ok"})                        // old, 0.1
	c.Save(ctx, Entry{Type: Study, Output: strings.Repeat("long answer ", 50)}) // old, 0.8

	c.now = func() time.Time { return base.Add(40 * 24 * time.Hour) }
	c.Save(ctx, Entry{Type: Conversation, Output: "hm"}) // recent, 0.1

	n, err := c.Cleanup(ctx, 30*24*time.Hour, 0.45)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	left, _ := store.ListTrainingEntries(ctx, 10)
	if len(left) != 2 {
		t.Errorf("remaining = %d, want 2", len(left))
	}
}
