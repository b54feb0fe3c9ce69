package infra

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Backoff controls provider-call retries. These cover transient transport
// blips inside a single pipeline stage; the orchestrator itself never
// retries a failed stage.
type Backoff struct {
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func DefaultBackoff() Backoff {
	return Backoff{
		Attempts:   3,
		Initial:    100 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 2.0,
	}
}

// Permanent marks an error Retry should return without further attempts,
// e.g. a 4xx provider response.
func Permanent(err error) error {
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Retry runs fn with exponential backoff. Context cancellation, deadline
// expiry, and Permanent errors are returned immediately so a pipeline
// timeout is never stretched by waiting out further attempts.
func Retry(ctx context.Context, b Backoff, fn func() error) error {
	var lastErr error
	delay := b.Initial

	for attempt := 1; attempt <= b.Attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		var pe *permanentError
		if errors.As(err, &pe) {
			return pe.err
		}
		if attempt == b.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * b.Multiplier)
		if delay > b.Max {
			delay = b.Max
		}
	}

	return lastErr
}

// RetryableStatus reports whether an HTTP status from a speech provider is
// worth another attempt.
func RetryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode >= 500
}
