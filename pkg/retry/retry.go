// Package retry runs operations with exponential backoff and jitter,
// retrying only failures that are likely to resolve on their own.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"
)

// StatusError carries an unexpected HTTP status.
type StatusError struct {
	StatusCode int
	Status     string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("unexpected status %s", e.Status)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// NewStatusError builds a StatusError from a response, honouring Retry-After seconds.
func NewStatusError(resp *http.Response) *StatusError {
	se := &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 && secs <= 120 {
			se.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return se
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsRetryableStatus reports whether an HTTP status is transient.
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// IsTransient classifies timeouts, connection resets and 5xx/429 statuses as
// retryable. Malformed URLs, unsupported schemes, TLS and DNS failures are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var perm permanentError
	if errors.As(err, &perm) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return IsRetryableStatus(se.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	// *url.Error satisfies net.Error for every client failure; only timeouts count.
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Policy bounds the attempts and delays of a retried operation.
type Policy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration

	// Sleep is replaced in tests; nil waits on a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Backoff returns the delay before retry number attempt (0-based):
// base*2^attempt capped at Max, with the upper half randomised.
func (p Policy) Backoff(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	d := base << uint(attempt)
	if d <= 0 || (p.Max > 0 && d > p.Max) {
		d = p.Max
	}
	if d <= 0 {
		return base
	}
	half := d / 2
	return half + rand.N(half+1)
}

// Do runs fn until it succeeds, returns a non-transient error, or attempts run out.
// onRetry, when set, is called before each wait.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, onRetry func(attempt int, err error, wait time.Duration)) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) || attempt == attempts-1 {
			break
		}

		wait := p.Backoff(attempt)
		var se *StatusError
		if errors.As(lastErr, &se) && se.RetryAfter > 0 {
			wait = se.RetryAfter
		}
		if onRetry != nil {
			onRetry(attempt+1, lastErr, wait)
		}
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
	}

	var perm permanentError
	if errors.As(lastErr, &perm) {
		return perm.err
	}
	return lastErr
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoSleep skips waiting; handy for tests.
func NoSleep(context.Context, time.Duration) error { return nil }
