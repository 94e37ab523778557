package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/bolla/internal/ingest"
	"github.com/kalambet/bolla/internal/llm"
	"github.com/kalambet/bolla/internal/memory"
	"github.com/kalambet/bolla/internal/router"
	"github.com/kalambet/bolla/internal/storage"
	"github.com/kalambet/bolla/internal/training"
)

type localGen struct {
	mu   sync.Mutex
	reqs []llm.Request
	text string
}

func (g *localGen) ID() llm.BackendID { return llm.Ollama }

func (g *localGen) Generate(_ context.Context, req llm.Request) (llm.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	return llm.Result{Backend: llm.Ollama, Model: "llama3.2", Text: g.text}, nil
}

type recordingDispatcher struct {
	mu    sync.Mutex
	tiers []router.Tier
	reqs  []llm.Request
	delay time.Duration
	err   error
}

func (d *recordingDispatcher) Route(_ context.Context, req llm.Request, tier router.Tier) (router.Outcome, error) {
	time.Sleep(d.delay)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tiers = append(d.tiers, tier)
	d.reqs = append(d.reqs, req)
	if d.err != nil {
		return router.Outcome{}, d.err
	}
	return router.Outcome{Result: llm.Result{Backend: llm.Ollama, Text: "resposta"}, Tier: tier}, nil
}

type failingSearcher struct{ marked bool }

func (f *failingSearcher) Search(context.Context, string, int) ([]storage.Memory, error) {
	return nil, errors.New("database is locked")
}

func (f *failingSearcher) MarkAccessed(context.Context, []int64) error {
	f.marked = true
	return nil
}

type recordingCollector struct {
	mu     sync.Mutex
	input  string
	source string
	ec     training.ExchangeContext
	calls  int
}

func (c *recordingCollector) FromOutcome(_ context.Context, input string, _ router.Outcome, source string, ec training.ExchangeContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input, c.source, c.ec = input, source, ec
	c.calls++
	return errors.New("collector down")
}

type noFacts struct{}

func (noFacts) ExtractFacts(context.Context, string) []string           { return nil }
func (noFacts) ClassifyFact(context.Context, string) memory.Category { return memory.General }

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRespond_LocalOnlyGreeting(t *testing.T) {
	store := openStore(t)
	gen := &localGen{text: "opa, tudo certo?"}
	r := router.New(router.Config{Clients: []llm.TextGenerator{gen}})
	st := memory.NewShortTerm(10)
	o := New(memory.NewService(store, noFacts{}), r, st, Options{})

	resp, err := o.Respond(context.Background(), "oi", RequestContext{ConversationID: "c1", Source: training.SourceTelegram})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.Text != "opa, tudo certo?" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Outcome.FallbackUsed {
		t.Error("FallbackUsed = true, want false")
	}
	if resp.Outcome.Tier != router.Simple {
		t.Errorf("Tier = %q, want simple", resp.Outcome.Tier)
	}
	if n := st.Count("c1"); n != 2 {
		t.Errorf("short-term turns = %d, want 2", n)
	}
	turns := st.Messages("c1")
	if turns[0].Role != memory.RoleUser || turns[0].Content != "oi" || turns[1].Role != memory.RoleAssistant {
		t.Errorf("turns = %+v", turns)
	}
	if gen.reqs[0].SystemPrompt != DefaultPersonality {
		t.Errorf("system prompt = %q, want default personality", gen.reqs[0].SystemPrompt)
	}
	if !strings.HasPrefix(resp.ComposedPrompt, "[SYSTEM]\n"+DefaultPersonality+"\n\n[PROMPT]\n[MEMORIAS]") {
		t.Errorf("ComposedPrompt = %q", resp.ComposedPrompt)
	}
}

func TestRespond_UsesAndMarksMemories(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	saved, err := store.SaveMemory(ctx, storage.Memory{Content: "Lucas prefere neovim", Category: "preference"})
	if err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}
	store.SaveMemory(ctx, storage.Memory{Content: "O céu é azul"})

	d := &recordingDispatcher{}
	o := New(memory.NewService(store, noFacts{}), d, memory.NewShortTerm(10), Options{})

	resp, err := o.Respond(ctx, "Qual editor o Lucas prefere?", RequestContext{ConversationID: "c1"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(resp.UsedMemories) != 1 || resp.UsedMemories[0].ID != saved.ID {
		t.Fatalf("UsedMemories = %+v", resp.UsedMemories)
	}
	if want := []string{"editor", "lucas", "prefere"}; strings.Join(resp.Keywords, " ") != strings.Join(want, " ") {
		t.Errorf("Keywords = %v, want %v", resp.Keywords, want)
	}
	if !strings.Contains(d.reqs[0].Prompt, "[MEMORIAS]\n- Lucas prefere neovim") {
		t.Errorf("prompt missing memory:\n%s", d.reqs[0].Prompt)
	}

	m, _ := store.GetMemory(ctx, saved.ID)
	if m.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1", m.AccessCount)
	}
}

func TestRespond_MemoryFailureDegrades(t *testing.T) {
	d := &recordingDispatcher{}
	searcher := &failingSearcher{}
	o := New(searcher, d, memory.NewShortTerm(10), Options{})

	resp, err := o.Respond(context.Background(), "o que você acha de Go?", RequestContext{ConversationID: "c1"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(resp.UsedMemories) != 0 {
		t.Errorf("UsedMemories = %v, want none", resp.UsedMemories)
	}
	if !strings.Contains(d.reqs[0].Prompt, NoMemories) {
		t.Errorf("prompt missing no-memories marker")
	}
	if searcher.marked {
		t.Error("MarkAccessed called with no memories")
	}
}

func TestRespond_Personality(t *testing.T) {
	cases := []struct {
		name string
		fn   PersonalityFunc
		want string
	}{
		{"provided", func(context.Context) (string, error) { return "  Sou Bolla, curioso.  ", nil }, "Sou Bolla, curioso."},
		{"empty", func(context.Context) (string, error) { return " ", nil }, DefaultPersonality},
		{"failing", func(context.Context) (string, error) { return "", errors.New("no db") }, DefaultPersonality},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := &recordingDispatcher{}
			o := New(&failingSearcher{}, d, memory.NewShortTerm(10), Options{Personality: tc.fn})
			if _, err := o.Respond(context.Background(), "oi", RequestContext{ConversationID: "c"}); err != nil {
				t.Fatalf("Respond: %v", err)
			}
			if got := d.reqs[0].SystemPrompt; got != tc.want {
				t.Errorf("system prompt = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRespond_TierFromRawMessage(t *testing.T) {
	d := &recordingDispatcher{}
	o := New(&failingSearcher{}, d, memory.NewShortTerm(10), Options{})
	ctx := context.Background()

	o.Respond(ctx, "preciso debugar uma função recursiva", RequestContext{ConversationID: "a"})
	// The composed prompt is long, but the raw greeting is what gets classified.
	o.Respond(ctx, "bom dia", RequestContext{ConversationID: "b"})
	o.Respond(ctx, "bom dia", RequestContext{ConversationID: "c", Tier: router.Medium})

	want := []router.Tier{router.Complex, router.Simple, router.Medium}
	for i, w := range want {
		if d.tiers[i] != w {
			t.Errorf("call %d tier = %q, want %q", i, d.tiers[i], w)
		}
	}
}

func TestRespond_ExhaustionPropagates(t *testing.T) {
	exhausted := &router.ExhaustedError{Tier: router.Simple, Errors: []string{"ollama: unexpected status 503"}}
	d := &recordingDispatcher{err: exhausted}
	st := memory.NewShortTerm(10)
	coll := &recordingCollector{}
	o := New(&failingSearcher{}, d, st, Options{Collector: coll})

	_, err := o.Respond(context.Background(), "oi", RequestContext{ConversationID: "c1"})
	var ee *router.ExhaustedError
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v, want ExhaustedError", err)
	}
	o.Wait()
	if st.Count("c1") != 0 {
		t.Errorf("turns appended after a failed dispatch")
	}
	if coll.calls != 0 {
		t.Error("collector called for a failed dispatch")
	}
}

func TestRespond_CollectorHandOff(t *testing.T) {
	coll := &recordingCollector{}
	o := New(&failingSearcher{}, &recordingDispatcher{}, memory.NewShortTerm(10), Options{Collector: coll})

	_, err := o.Respond(context.Background(), "oi", RequestContext{ConversationID: "c1", Channel: "dm", UserRole: "owner"})
	if err != nil {
		t.Fatalf("collector failure reached the caller: %v", err)
	}
	o.Wait()

	coll.mu.Lock()
	defer coll.mu.Unlock()
	if coll.calls != 1 || coll.input != "oi" || coll.source != training.SourceInternal {
		t.Errorf("collector got calls=%d input=%q source=%q", coll.calls, coll.input, coll.source)
	}
	if coll.ec.ConversationLength != 2 || coll.ec.Channel != "dm" || coll.ec.UserRole != "owner" {
		t.Errorf("exchange context = %+v", coll.ec)
	}
}

func TestRespond_AutoRemember(t *testing.T) {
	store := openStore(t)
	o := New(&failingSearcher{}, &recordingDispatcher{}, memory.NewShortTerm(10), Options{AutoRemember: store})
	ctx := context.Background()

	if _, err := o.Respond(ctx, "eu moro em Lisboa", RequestContext{ConversationID: "c1", Source: training.SourceWhatsApp}); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	o.Wait()

	job, err := store.ClaimNextJob(ctx, []string{ingest.JobRemember})
	if err != nil || job == nil {
		t.Fatalf("ClaimNextJob = %v, %v; want a remember job", job, err)
	}
	if !strings.Contains(job.PayloadJSON, "eu moro em Lisboa") || !strings.Contains(job.PayloadJSON, "whatsapp") {
		t.Errorf("payload = %s", job.PayloadJSON)
	}
}

func TestRespond_Validation(t *testing.T) {
	o := New(&failingSearcher{}, &recordingDispatcher{}, memory.NewShortTerm(10), Options{})
	if _, err := o.Respond(context.Background(), "  ", RequestContext{ConversationID: "c"}); err == nil {
		t.Error("expected error for empty message")
	}
	if _, err := o.Respond(context.Background(), "oi", RequestContext{}); err == nil {
		t.Error("expected error for missing conversation id")
	}
}

func TestRespond_SameConversationDoesNotInterleave(t *testing.T) {
	d := &recordingDispatcher{delay: 10 * time.Millisecond}
	st := memory.NewShortTerm(20)
	o := New(&failingSearcher{}, d, st, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.Respond(context.Background(), "oi", RequestContext{ConversationID: "shared"}); err != nil {
				t.Errorf("Respond: %v", err)
			}
		}()
	}
	wg.Wait()

	turns := st.Messages("shared")
	if len(turns) != 10 {
		t.Fatalf("turns = %d, want 10", len(turns))
	}
	for i, turn := range turns {
		want := memory.RoleUser
		if i%2 == 1 {
			want = memory.RoleAssistant
		}
		if turn.Role != want {
			t.Fatalf("turn %d role = %q, want %q (interleaved)", i, turn.Role, want)
		}
	}
	// Each request saw the history left by the one before it.
	for i, req := range d.reqs {
		if got := strings.Count(req.Prompt, "- User: oi"); got != i {
			t.Errorf("request %d saw %d earlier user turns, want %d", i, got, i)
		}
	}
}
