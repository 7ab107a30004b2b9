package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rendis/pyconst/pkg/schema"
)

// RetryPolicy controls how transient store failures are retried.
type RetryPolicy struct {
	Attempts int           `json:"attempts" yaml:"attempts"`
	Delay    time.Duration `json:"delay" yaml:"delay"`
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`
	// Backoff is one of "constant", "linear" or "exponential".
	Backoff string `json:"backoff" yaml:"backoff"`
}

// DefaultRetryPolicy retries a locked database a few times quickly.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 4, Delay: 25 * time.Millisecond, MaxDelay: time.Second, Backoff: "exponential"}
}

// IsRetryableError reports whether err is a transient persistence failure.
// A concurrent writer holding the libSQL database lock is the common case;
// everything else (bad input, missing rows, cancellation) fails fast.
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pe *schema.PyconstError
	if errors.As(err, &pe) && pe.Code != schema.ErrCodeStore {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"database is locked",
		"database is busy",
		"sqlite_busy",
		"sqlite_locked",
		"database table is locked",
		"connection reset",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// ComputeBackoff returns the delay before retry number attempt (0-based).
func ComputeBackoff(policy RetryPolicy, attempt int) time.Duration {
	if policy.Delay <= 0 {
		return 0
	}

	delay := policy.Delay
	switch policy.Backoff {
	case "exponential":
		for i := 0; i < attempt && i < 32 && (policy.MaxDelay <= 0 || delay < policy.MaxDelay); i++ {
			delay *= 2
		}
	case "linear":
		delay = policy.Delay * time.Duration(attempt+1)
	}

	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	return delay
}

// WaitForBackoff sleeps for delay or returns early with the context error.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// policy's attempts are exhausted.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil || !IsRetryableError(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		if werr := WaitForBackoff(ctx, ComputeBackoff(policy, i)); werr != nil {
			return werr
		}
	}
	return err
}
