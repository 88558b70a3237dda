package mailer

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// RetryPolicy retries failed sends with exponential backoff and jitter.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRetryPolicy(maxAttempts int, baseDelay time.Duration) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    baseDelay * 16, // Maximum 16x base delay
		sleep:       sleepContext,
	}
}

// Do runs fn until it succeeds, returns a permanent error, runs out of
// attempts or ctx is done. It returns the last error and the number of
// attempts made.
func (r *RetryPolicy) Do(ctx context.Context, fn func() error) (int, error) {
	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return attempt, nil
		}
		if attempt == r.maxAttempts || !isRetryableError(err) {
			return attempt, err
		}
		if sleepErr := r.sleep(ctx, r.backoff(attempt)); sleepErr != nil {
			return attempt, err
		}
	}
	return r.maxAttempts, err
}

// isRetryableError determines if an error is worth another attempt
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	nonRetryableErrors := []string{
		"invalid",
		"not found",
		"permission denied",
		"authentication failed",
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range nonRetryableErrors {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}
	return true
}

// backoff calculates exponential backoff delay with jitter
func (r *RetryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 0 || r.baseDelay <= 0 {
		return r.baseDelay
	}

	// Exponential backoff: base * 2^(attempt-1)
	backoff := r.baseDelay * time.Duration(1<<(attempt-1))

	// Apply jitter (±25%)
	if quarter := int64(backoff / 4); quarter > 0 {
		jitter := time.Duration(rand.Int63n(quarter))
		if rand.Intn(2) == 0 {
			backoff += jitter
		} else {
			backoff -= jitter
		}
	}

	if backoff > r.maxDelay {
		backoff = r.maxDelay
	}
	return backoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
