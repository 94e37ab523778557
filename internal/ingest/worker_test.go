package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kalambet/bolla/internal/memory"
	"github.com/kalambet/bolla/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type call struct {
	text, source string
	category     memory.Category
}

type mockRememberer struct {
	mu    sync.Mutex
	calls []call
	fn    func(text string) error
}

func (m *mockRememberer) Remember(_ context.Context, text, source string, category memory.Category) ([]storage.Memory, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call{text, source, category})
	m.mu.Unlock()
	if m.fn != nil {
		if err := m.fn(text); err != nil {
			return nil, err
		}
	}
	return []storage.Memory{{ID: 1, Content: text}}, nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWorker_ProcessesJob(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	id, err := Enqueue(ctx, store, RememberPayload{Text: "Lucas prefere Go", Source: "api", Category: "preference"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	mem := &mockRememberer{}
	w := NewWorker(store, mem, 0)

	didWork, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	if len(mem.calls) != 1 {
		t.Fatalf("Remember called %d times, want 1", len(mem.calls))
	}
	got := mem.calls[0]
	if got.text != "Lucas prefere Go" || got.source != "api" || got.category != memory.Preference {
		t.Errorf("call = %+v", got)
	}

	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != "completed" {
		t.Errorf("status = %q, want completed", job.Status)
	}
}

func TestWorker_NoJobs(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockRememberer{}, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if didWork {
		t.Error("RunOnce reported work on an empty queue")
	}
}

func TestWorker_FailureSchedulesRetry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	id, _ := Enqueue(ctx, store, RememberPayload{Text: "falha"})

	w := NewWorker(store, &mockRememberer{fn: func(string) error { return fmt.Errorf("ollama down") }}, 0)
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	job, _ := store.GetJob(ctx, id)
	if job.Status != "pending" || job.Attempts != 1 {
		t.Errorf("status=%q attempts=%d, want pending/1", job.Status, job.Attempts)
	}
	if job.LastError == "" {
		t.Error("last error not recorded")
	}
	if !job.RunAfter.After(time.Now()) {
		t.Errorf("run_after = %v, want in the future", job.RunAfter)
	}

	// Backed off, so nothing is claimable yet.
	didWork, _ := w.RunOnce(ctx)
	if didWork {
		t.Error("job claimed before its backoff elapsed")
	}
}

func TestWorker_MaxAttemptsExceeded(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.EnqueueJob(ctx, storage.Job{ID: "job-m", Type: JobRemember, PayloadJSON: `{"text":"x"}`, MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	w := NewWorker(store, &mockRememberer{fn: func(string) error { return fmt.Errorf("permanent error") }}, 0)
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	job, _ := store.GetJob(ctx, "job-m")
	if job.Status != "failed" {
		t.Errorf("final status = %q, want %q", job.Status, "failed")
	}
}

func TestWorker_BadPayloadFails(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	store.EnqueueJob(ctx, storage.Job{ID: "job-bad", Type: JobRemember, PayloadJSON: `{"text":"x","category":"gossip"}`, MaxAttempts: 1})

	mem := &mockRememberer{}
	w := NewWorker(store, mem, 0)
	w.RunOnce(ctx)

	if len(mem.calls) != 0 {
		t.Error("Remember called for an invalid category")
	}
	job, _ := store.GetJob(ctx, "job-bad")
	if job.Status != "failed" {
		t.Errorf("status = %q, want failed", job.Status)
	}
}

func TestEnqueue_RejectsEmptyText(t *testing.T) {
	store := openTestStore(t)
	if _, err := Enqueue(context.Background(), store, RememberPayload{Text: "  "}); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestWorker_ConcurrentEnqueue(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	const goroutines = 5
	const jobsPerGoroutine = 10
	const total = goroutines * jobsPerGoroutine

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for j := 0; j < jobsPerGoroutine; j++ {
				if _, err := Enqueue(ctx, store, RememberPayload{Text: fmt.Sprintf("fact %d-%d", g, j)}); err != nil {
					t.Errorf("Enqueue %d-%d: %v", g, j, err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	mem := &mockRememberer{}
	w := NewWorker(store, mem, 0)

	deadline := time.After(5 * time.Second)
	processed := 0
	for processed < total {
		select {
		case <-deadline:
			t.Fatalf("timed out after processing %d/%d jobs", processed, total)
		default:
		}
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce error at job %d: %v", processed, err)
		}
		if !didWork {
			t.Fatalf("queue drained early at %d/%d", processed, total)
		}
		processed++
	}

	if len(mem.calls) != total {
		t.Errorf("Remember called %d times, want %d", len(mem.calls), total)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	var n atomic.Int32
	mem := &mockRememberer{fn: func(string) error { n.Add(1); return nil }}
	Enqueue(context.Background(), store, RememberPayload{Text: "one"})

	w := NewWorker(store, mem, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for n.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if n.Load() != 1 {
		t.Errorf("processed %d jobs, want 1", n.Load())
	}
}
