package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/kalambet/bolla/internal/retry"
)

// RoutingError is the uniform backend failure. Retryable is the only signal
// the retry executor and the router use to decide whether to continue.
type RoutingError struct {
	Backend    BackendID
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

func (e *RoutingError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Backend, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Backend, e.Message)
}

func (e *RoutingError) Unwrap() error { return e.Cause }

// IsRetryable implements retry.Retryable.
func (e *RoutingError) IsRetryable() bool { return e.Retryable }

// IsRetryableStatus reports whether an HTTP status is worth another attempt:
// 408, 429 and every 5xx.
func IsRetryableStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}

// ShouldRetry is the default retry predicate for backend calls.
func ShouldRetry(err error) bool {
	return retry.DefaultShouldRetry(err)
}

// StatusError builds the RoutingError for a non-success HTTP answer.
func StatusError(backend BackendID, code int, body string) *RoutingError {
	msg := fmt.Sprintf("unexpected status %d", code)
	if body != "" {
		msg += ": " + truncate(body, 200)
	}
	return &RoutingError{
		Backend:    backend,
		Message:    msg,
		StatusCode: code,
		Retryable:  IsRetryableStatus(code),
	}
}

// TransportError classifies a failure that happened before any status was
// read. Caller cancellation is final; deadlines and network errors are not.
func TransportError(backend BackendID, err error) *RoutingError {
	var re *RoutingError
	if errors.As(err, &re) {
		return re
	}
	switch {
	case errors.Is(err, context.Canceled):
		return &RoutingError{Backend: backend, Message: "request canceled", Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &RoutingError{Backend: backend, Message: "request timed out", Retryable: true, Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &RoutingError{Backend: backend, Message: "network error: " + err.Error(), Retryable: true, Cause: err}
	}
	return &RoutingError{Backend: backend, Message: err.Error(), Retryable: true, Cause: err}
}

// SDKError maps an error from a hosted-API SDK call that is not an API
// status error. Cancellation, timeouts and network failures keep their
// TransportError meaning. Anything else either happened while decoding a
// received response or while building the request, and repeating the
// request will not fix it.
func SDKError(backend BackendID, err error) *RoutingError {
	var re *RoutingError
	if errors.As(err, &re) {
		return re
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF), errors.As(err, &netErr):
		return TransportError(backend, err)
	}
	return MalformedError(backend, err)
}

// MalformedError marks an answer that could not be decoded. Repeating the
// request will not fix it.
func MalformedError(backend BackendID, err error) *RoutingError {
	return &RoutingError{Backend: backend, Message: "malformed response: " + err.Error(), Cause: err}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
