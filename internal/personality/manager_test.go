package personality

import (
	"context"
	"errors"
	"maps"
	"strings"
	"sync"
	"testing"
	"time"
)

// --- Mock store ---

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
	err  error

	getAllCalls int
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) SeedPersonality(_ context.Context, traits map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range traits {
		if _, ok := m.data[k]; !ok {
			m.data[k] = v
		}
	}
	return nil
}

func (m *mockStore) SetPersonalityTrait(_ context.Context, trait, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[trait] = value
	return nil
}

func (m *mockStore) GetAllPersonalityTraits(context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getAllCalls++
	if m.err != nil {
		return nil, m.err
	}
	return maps.Clone(m.data), nil
}

// --- Mock clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Tests ---

func TestSeed_KeepsExistingValues(t *testing.T) {
	store := newMockStore()
	store.data[TraitMood] = "sarcástico"
	mgr := NewManager(store)

	if err := mgr.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	traits, err := mgr.Traits(context.Background())
	if err != nil {
		t.Fatalf("Traits: %v", err)
	}
	if traits[TraitMood] != "sarcástico" {
		t.Errorf("humor_atual = %q, seed overwrote it", traits[TraitMood])
	}
	if traits[TraitName] != "Bolla" {
		t.Errorf("nome = %q, want Bolla", traits[TraitName])
	}
	if len(traits) != len(Defaults()) {
		t.Errorf("traits = %d, want %d", len(traits), len(Defaults()))
	}
}

func TestTraits_CacheHitAndExpiry(t *testing.T) {
	store := newMockStore()
	clock := &mockClock{now: time.Now()}
	mgr := NewManagerWithClock(store, clock, time.Minute)
	ctx := context.Background()

	mgr.Traits(ctx)
	mgr.Traits(ctx)
	if store.getAllCalls != 1 {
		t.Errorf("store reads = %d, want 1 (cached)", store.getAllCalls)
	}

	clock.Advance(2 * time.Minute)
	mgr.Traits(ctx)
	if store.getAllCalls != 2 {
		t.Errorf("store reads = %d, want 2 after TTL", store.getAllCalls)
	}
}

func TestSet_InvalidatesCache(t *testing.T) {
	store := newMockStore()
	mgr := NewManagerWithClock(store, &mockClock{now: time.Now()}, time.Hour)
	ctx := context.Background()

	mgr.Traits(ctx)
	if err := mgr.Set(ctx, TraitMood, "Animado"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	traits, _ := mgr.Traits(ctx)
	if traits[TraitMood] != "Animado" {
		t.Errorf("humor_atual = %q after Set", traits[TraitMood])
	}
}

func TestSet_Validation(t *testing.T) {
	mgr := NewManager(newMockStore())
	ctx := context.Background()

	for _, bad := range []string{"", "dois nomes", strings.Repeat("k", 65)} {
		if err := mgr.Set(ctx, bad, "x"); !errors.Is(err, ErrInvalidTrait) {
			t.Errorf("Set(%q) accepted", bad)
		}
	}
	if err := mgr.Set(ctx, "ok", strings.Repeat("v", 2001)); err == nil {
		t.Error("oversized value accepted")
	}
}

func TestTraits_ReturnsCopy(t *testing.T) {
	store := newMockStore()
	store.data[TraitName] = "Bolla"
	mgr := NewManager(store)

	traits, _ := mgr.Traits(context.Background())
	traits[TraitName] = "Outro"
	again, _ := mgr.Traits(context.Background())
	if again[TraitName] != "Bolla" {
		t.Error("Traits exposes the cached map")
	}
}

func TestSystemPrompt_StoreError(t *testing.T) {
	store := newMockStore()
	store.err = errors.New("disk gone")
	if _, err := NewManager(store).SystemPrompt(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestRender(t *testing.T) {
	got := Render(map[string]string{
		TraitName:  "Zé",
		TraitMood:  "cansado",
		"zodiaco":  "leão",
		"apelidos": "Zezinho",
	})

	lines := strings.Split(got, "\n")
	if lines[0] != "Você é Zé, um agente de AI autônomo com personalidade própria." {
		t.Errorf("header = %q", lines[0])
	}
	if lines[3] != "" {
		t.Errorf("line 4 = %q, want blank separator", lines[3])
	}
	if lines[4] != "Nome: Zé" {
		t.Errorf("first trait = %q", lines[4])
	}
	if !strings.Contains(got, "Humor atual: cansado") || !strings.Contains(got, "Gírias: —") {
		t.Errorf("prompt missing traits:\n%s", got)
	}
	n := len(lines)
	if lines[n-2] != "apelidos: Zezinho" || lines[n-1] != "zodiaco: leão" {
		t.Errorf("extra traits not sorted at the end: %q", lines[n-2:])
	}
}

func TestRender_DefaultName(t *testing.T) {
	if got := Render(nil); !strings.HasPrefix(got, "Você é Bolla,") {
		t.Errorf("header = %q", strings.SplitN(got, "\n", 2)[0])
	}
}
