package engine

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

const (
	// DefaultRetryCount is the number of additional attempts after the
	// first failure when onError.retryCount is unset.
	DefaultRetryCount = 3
	// DefaultRetryDelay is the backoff base when onError.retryDelay is unset.
	DefaultRetryDelay = 1000 * time.Millisecond
)

// IsRetryableError classifies an error as transient (worth retrying) or
// terminal. Network errors, timeouts and context.DeadlineExceeded are
// transient; validation-class errors and cancellation are terminal.
// Typed BoticalErrors check their own code.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Context cancelled means the run is shutting down.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var berr *schema.BoticalError
	if errors.As(err, &berr) {
		return berr.IsRetryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// String heuristics for common transient patterns.
	msg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"eof",
		"temporary failure",
		"i/o timeout",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"internal server error",
		"too many requests",
	}
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	// Default: retryable (conservative, the policy limits attempts).
	return true
}

// ComputeBackoff returns the delay before retry attempt n (1-based):
// base * 2^(attempt-1) plus up to 10% random jitter. The jitter keeps
// concurrent step executions of the same action from retrying in
// lockstep.
func ComputeBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = DefaultRetryDelay
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}

// WaitForBackoff sleeps for the given delay or returns early if the
// context is cancelled.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
