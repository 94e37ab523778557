package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type flaggedError struct {
	retryable bool
}

func (e *flaggedError) Error() string     { return "flagged" }
func (e *flaggedError) IsRetryable() bool { return e.retryable }

func TestDo_ExponentialWaitsThenOriginalError(t *testing.T) {
	cfg := Config{Attempts: 3, BaseDelay: 300 * time.Millisecond, MaxDelay: 3 * time.Second}
	want := &flaggedError{retryable: true}

	var calls []time.Time
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls = append(calls, time.Now())
		return want
	}, nil)

	if err != want {
		t.Fatalf("err = %v, want the original error", err)
	}
	if len(calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(calls))
	}

	first := calls[1].Sub(calls[0])
	second := calls[2].Sub(calls[1])
	if first < 290*time.Millisecond || first > 450*time.Millisecond {
		t.Errorf("first wait = %v, want ~300ms", first)
	}
	if second < 590*time.Millisecond || second > 800*time.Millisecond {
		t.Errorf("second wait = %v, want ~600ms", second)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	cfg := Config{Attempts: 5, BaseDelay: time.Second, MaxDelay: time.Second}
	want := &flaggedError{retryable: false}

	calls := 0
	start := time.Now()
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return want
	}, nil)

	if err != want {
		t.Fatalf("err = %v, want original", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("elapsed = %v, want no delay", elapsed)
	}
}

func TestDo_SucceedsAfterTransientFailure(t *testing.T) {
	cfg := Config{Attempts: 3, BaseDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond}

	calls := 0
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDo_CustomPredicate(t *testing.T) {
	cfg := Config{Attempts: 4, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	stop := errors.New("stop")

	calls := 0
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return stop
	}, func(err error) bool { return !errors.Is(err, stop) })

	if !errors.Is(err, stop) {
		t.Fatalf("err = %v, want stop", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_CapsDelay(t *testing.T) {
	cfg := Config{Attempts: 4, BaseDelay: 20 * time.Millisecond, MaxDelay: 30 * time.Millisecond}

	var calls []time.Time
	Do(context.Background(), cfg, func(context.Context) error {
		calls = append(calls, time.Now())
		return errors.New("fail")
	}, nil)

	if len(calls) != 4 {
		t.Fatalf("calls = %d, want 4", len(calls))
	}
	// Third wait would be 80ms uncapped.
	if gap := calls[3].Sub(calls[2]); gap > 70*time.Millisecond {
		t.Errorf("third wait = %v, want capped near 30ms", gap)
	}
}

func TestDo_ContextCancelDuringWait(t *testing.T) {
	cfg := Config{Attempts: 3, BaseDelay: time.Second, MaxDelay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := Do(ctx, cfg, func(context.Context) error { return errors.New("fail") }, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestDefaultShouldRetry(t *testing.T) {
	if !DefaultShouldRetry(errors.New("unknown")) {
		t.Error("unknown errors should be retryable")
	}
	if DefaultShouldRetry(&flaggedError{retryable: false}) {
		t.Error("flagged non-retryable error reported retryable")
	}
	wrapped := &flaggedError{retryable: true}
	if !DefaultShouldRetry(errors.Join(errors.New("ctx"), wrapped)) {
		t.Error("wrapped retryable error not detected")
	}
}
