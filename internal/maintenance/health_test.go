package maintenance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/bolla/internal/llm"
	"github.com/kalambet/bolla/internal/storage"
)

// toggle is a probe whose result the test flips between cycles.
type toggle struct{ err error }

func (p *toggle) probe(context.Context) error { return p.err }

func TestHealthMonitor_RecordsTransitions(t *testing.T) {
	db := &toggle{}
	model := &toggle{err: errors.New("connection refused")}
	m := NewHealthMonitor(time.Second,
		HealthCheck{Name: "store", Probe: db.probe},
		HealthCheck{Name: "ollama", Probe: model.probe},
	)

	st := m.Run(context.Background())
	if len(st) != 2 || !st[0].OK || st[1].OK || st[1].Error != "connection refused" {
		t.Fatalf("first cycle = %+v", st)
	}

	db.err = errors.New("disk I/O error")
	model.err = nil
	st = m.Run(context.Background())
	if st[0].OK || st[0].Error != "disk I/O error" || !st[1].OK || st[1].Error != "" {
		t.Errorf("second cycle = %+v", st)
	}
	if st[0].CheckedAt.IsZero() {
		t.Error("CheckedAt not set")
	}
}

func TestHealthMonitor_StatusBeforeRun(t *testing.T) {
	m := NewHealthMonitor(0, HealthCheck{Name: "store", Probe: func(context.Context) error { return nil }})
	if st := m.Status(); len(st) != 0 {
		t.Errorf("Status() = %+v, want empty before the first cycle", st)
	}
	if m.timeout != DefaultHealthTimeout {
		t.Errorf("timeout = %v, want default", m.timeout)
	}
}

func TestHealthMonitor_PanicAndTimeout(t *testing.T) {
	m := NewHealthMonitor(20*time.Millisecond,
		HealthCheck{Name: "boom", Probe: func(context.Context) error { panic("nil map") }},
		HealthCheck{Name: "slow", Probe: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)
	st := m.Run(context.Background())
	if st[0].OK || !strings.Contains(st[0].Error, "nil map") {
		t.Errorf("panicking check = %+v", st[0])
	}
	if st[1].OK || !strings.Contains(st[1].Error, "deadline") {
		t.Errorf("slow check = %+v", st[1])
	}
}

func TestHealthMonitor_SkipsOverlappingRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	m := NewHealthMonitor(time.Second, HealthCheck{Name: "store", Probe: func(context.Context) error {
		calls++
		close(started)
		<-release
		return nil
	}})

	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()
	<-started
	if st := m.Run(context.Background()); len(st) != 0 {
		t.Errorf("overlapping run = %+v, want the previous (empty) status", st)
	}
	close(release)
	<-done
	if calls != 1 {
		t.Errorf("probe calls = %d, want 1", calls)
	}
}

type replyGen struct {
	text string
	err  error
	req  llm.Request
}

func (g *replyGen) ID() llm.BackendID { return llm.Ollama }

func (g *replyGen) Generate(_ context.Context, req llm.Request) (llm.Result, error) {
	g.req = req
	return llm.Result{Backend: llm.Ollama, Text: g.text}, g.err
}

func TestModelCheck(t *testing.T) {
	tests := []struct {
		name    string
		gen     *replyGen
		wantErr bool
	}{
		{"ok", &replyGen{text: "OK."}, false},
		{"ok in a sentence", &replyGen{text: "Tudo ok por aqui"}, false},
		{"wrong reply", &replyGen{text: "Não sei"}, true},
		{"backend error", &replyGen{err: errors.New("503")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ModelCheck(tt.gen)
			if c.Name != "ollama" {
				t.Errorf("Name = %q", c.Name)
			}
			err := c.Probe(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.gen.req.Temperature == nil || *tt.gen.req.Temperature != 0 {
				t.Errorf("temperature = %v, want 0", tt.gen.req.Temperature)
			}
		})
	}
}

func TestStoreCheck(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	c := StoreCheck(store)
	if err := c.Probe(context.Background()); err != nil {
		t.Errorf("open store: %v", err)
	}
	store.Close()
	if err := c.Probe(context.Background()); err == nil {
		t.Error("expected error from closed store")
	}
}
