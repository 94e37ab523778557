package retry

import (
	"context"
	"errors"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Config bounds a retried operation.
type Config struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// JitterPercent spreads each wait by +/- that percentage. Zero keeps waits
	// exact.
	JitterPercent uint64
}

// DefaultConfig returns 3 attempts with 300ms base and 3s cap.
func DefaultConfig() Config {
	return Config{
		Attempts:  3,
		BaseDelay: 300 * time.Millisecond,
		MaxDelay:  3 * time.Second,
	}
}

// Retryable is implemented by errors that know whether they are transient.
type Retryable interface {
	IsRetryable() bool
}

// DefaultShouldRetry trusts errors implementing Retryable and treats every
// other error as transient.
func DefaultShouldRetry(err error) bool {
	var r Retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}

// Do runs op up to cfg.Attempts times. Between failures it waits
// min(MaxDelay, BaseDelay*2^(n-1)). A failure for which shouldRetry returns
// false, or the final failure, is returned as is without further delay.
// A nil shouldRetry means DefaultShouldRetry.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error, shouldRetry func(error) bool) error {
	if shouldRetry == nil {
		shouldRetry = DefaultShouldRetry
	}
	return goretry.Do(ctx, cfg.backoff(), func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && shouldRetry(err) {
			return goretry.RetryableError(err)
		}
		return err
	})
}

func (cfg Config) backoff() goretry.Backoff {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	base := cfg.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}

	b := goretry.NewExponential(base)
	if cfg.JitterPercent > 0 {
		b = goretry.WithJitterPercent(cfg.JitterPercent, b)
	}
	if cfg.MaxDelay > 0 {
		b = goretry.WithCappedDuration(cfg.MaxDelay, b)
	}
	return goretry.WithMaxRetries(uint64(attempts-1), b)
}
