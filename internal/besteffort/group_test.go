package besteffort

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestGo_RunsAll(t *testing.T) {
	var g Group
	var n atomic.Int32
	for i := 0; i < 10; i++ {
		g.Go(context.Background(), "count", func(context.Context) error {
			n.Add(1)
			return nil
		})
	}
	g.Wait()
	if n.Load() != 10 {
		t.Errorf("ran %d, want 10", n.Load())
	}
}

func TestGo_DetachedFromCancellation(t *testing.T) {
	var g Group
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawErr error
	g.Go(ctx, "detached", func(ctx context.Context) error {
		sawErr = ctx.Err()
		return nil
	})
	g.Wait()
	if sawErr != nil {
		t.Errorf("op ctx.Err() = %v, want nil", sawErr)
	}
}

func TestGo_LogsErrorsAndPanics(t *testing.T) {
	var buf syncBuffer
	g := New(slog.New(slog.NewTextHandler(&buf, nil)))

	g.Go(context.Background(), "fails", func(context.Context) error { return errors.New("disk full") })
	g.Go(context.Background(), "panics", func(context.Context) error { panic("boom") })
	g.Wait()

	out := buf.String()
	if !strings.Contains(out, "op=fails") || !strings.Contains(out, "disk full") {
		t.Errorf("missing error log: %s", out)
	}
	if !strings.Contains(out, "op=panics") || !strings.Contains(out, "panic: boom") {
		t.Errorf("missing panic log: %s", out)
	}
}
