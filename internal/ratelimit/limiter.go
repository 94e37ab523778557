package ratelimit

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Limiter serializes calls against one backend and keeps a minimum gap
// between the end of one call and the start of the next.
//
// Waiters are admitted in FIFO order. A Limiter must be shared by every
// caller of the backend it protects; a private instance per caller defeats it.
type Limiter struct {
	sem         *semaphore.Weighted
	minInterval time.Duration

	// lastDone is only touched while holding sem.
	lastDone time.Time
	now      func() time.Time
}

// New creates a Limiter. A minInterval <= 0 still serializes calls but adds
// no spacing.
func New(minInterval time.Duration) *Limiter {
	if minInterval < 0 {
		minInterval = 0
	}
	return &Limiter{
		sem:         semaphore.NewWeighted(1),
		minInterval: minInterval,
		now:         time.Now,
	}
}

// MinInterval returns the configured spacing.
func (l *Limiter) MinInterval() time.Duration {
	return l.minInterval
}

// Run executes task exactly once after every previously queued task has
// finished and minInterval has elapsed since the last one completed.
// The task's error is returned unchanged. If ctx ends while waiting, task is
// not run and ctx.Err() is returned.
func (l *Limiter) Run(ctx context.Context, task func(ctx context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)

	if !l.lastDone.IsZero() {
		if wait := l.minInterval - l.now().Sub(l.lastDone); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}

	err := task(ctx)
	l.lastDone = l.now()
	return err
}
