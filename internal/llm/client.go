package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/bolla/internal/ratelimit"
	"github.com/kalambet/bolla/internal/retry"
)

// DefaultTimeout bounds a single transport attempt.
const DefaultTimeout = 30 * time.Second

// Options configure a Client.
type Options struct {
	// Limiter is shared by every caller of this backend. Nil disables limiting.
	Limiter *ratelimit.Limiter
	Retry   retry.Config
	// Timeout applies to each attempt, independent of the SDK's own timeout.
	Timeout time.Duration
	// Fallback receives the full request when every attempt fails.
	Fallback TextGenerator
}

// Client turns a Transport into a TextGenerator: the limiter admits the
// whole retried call, each attempt gets its own timeout, and an empty answer
// is reported as a non-retryable failure.
type Client struct {
	transport Transport
	opts      Options
}

// NewClient wraps t. Unset Retry fields take their retry.DefaultConfig value
// and a zero Timeout means DefaultTimeout.
func NewClient(t Transport, opts Options) *Client {
	def := retry.DefaultConfig()
	if opts.Retry.Attempts <= 0 {
		opts.Retry.Attempts = def.Attempts
	}
	if opts.Retry.BaseDelay <= 0 {
		opts.Retry.BaseDelay = def.BaseDelay
	}
	if opts.Retry.MaxDelay <= 0 {
		opts.Retry.MaxDelay = def.MaxDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Client{transport: t, opts: opts}
}

// WithoutFallback returns a copy of c that reports its own failures instead
// of delegating them. The limiter is shared with c.
func (c *Client) WithoutFallback() *Client {
	cp := *c
	cp.opts.Fallback = nil
	return &cp
}

// ID returns the transport's backend identity.
func (c *Client) ID() BackendID {
	return c.transport.ID()
}

// Generate runs the request through limiter, retry and timeout. If all
// attempts fail and a fallback is configured, the fallback's answer or
// error is returned instead.
func (c *Client) Generate(ctx context.Context, req Request) (Result, error) {
	var res Result
	call := func(ctx context.Context) error {
		return retry.Do(ctx, c.opts.Retry, func(ctx context.Context) error {
			r, err := c.attempt(ctx, req)
			if err != nil {
				return err
			}
			res = r
			return nil
		}, ShouldRetry)
	}

	var err error
	if c.opts.Limiter != nil {
		err = c.opts.Limiter.Run(ctx, call)
	} else {
		err = call(ctx)
	}
	if err == nil {
		return res, nil
	}

	if c.opts.Fallback != nil && ctx.Err() == nil {
		slog.Warn("backend failed, delegating to fallback",
			"backend", c.ID(), "fallback", c.opts.Fallback.ID(), "error", err)
		return c.opts.Fallback.Generate(ctx, req)
	}
	return Result{}, asRoutingError(c.ID(), err)
}

func (c *Client) attempt(ctx context.Context, req Request) (Result, error) {
	actx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	start := time.Now()
	res, err := c.transport.Do(actx, req)
	if err != nil {
		// Our own deadline fired while the caller is still waiting.
		if ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			return Result{}, &RoutingError{
				Backend:   c.ID(),
				Message:   fmt.Sprintf("request timed out after %s", c.opts.Timeout),
				Retryable: true,
				Cause:     err,
			}
		}
		return Result{}, asRoutingError(c.ID(), err)
	}

	if strings.TrimSpace(res.Text) == "" {
		return Result{}, &RoutingError{Backend: c.ID(), Message: "empty response"}
	}
	res.Backend = c.ID()
	if res.Latency == 0 {
		res.Latency = time.Since(start)
	}
	return res, nil
}

func asRoutingError(id BackendID, err error) error {
	var re *RoutingError
	if errors.As(err, &re) {
		return err
	}
	return TransportError(id, err)
}
