// Package besteffort runs side work whose failure must never reach the
// caller: training-data capture, access counters, follow-up enqueues.
package besteffort

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Group tracks fire-and-forget operations. The zero value is ready to use.
type Group struct {
	wg     sync.WaitGroup
	logger *slog.Logger
}

// New returns a Group that logs to logger. A nil logger means slog.Default().
func New(logger *slog.Logger) *Group {
	return &Group{logger: logger}
}

// Go runs fn in its own goroutine with a context detached from ctx's
// cancellation but keeping its values. Errors and panics are logged under
// name and otherwise dropped.
func (g *Group) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	detached := context.WithoutCancel(ctx)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := run(detached, fn); err != nil {
			g.log().Warn("best-effort operation failed", "op", name, "error", err)
		}
	}()
}

// Wait blocks until every started operation returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

func (g *Group) log() *slog.Logger {
	if g.logger != nil {
		return g.logger
	}
	return slog.Default()
}

func run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
