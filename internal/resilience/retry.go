package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff returns the delay to wait after the given failed attempt (1-based).
type Backoff func(attempt int) time.Duration

// Fixed waits d between every attempt.
func Fixed(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// Exponential grows the delay by multiplier per attempt, capped at max, with
// ±jitter as a fraction of the computed delay.
func Exponential(initial, max time.Duration, multiplier, jitter float64) Backoff {
	return func(attempt int) time.Duration {
		d := float64(initial) * math.Pow(multiplier, float64(attempt-1))
		if d > float64(max) {
			d = float64(max)
		}
		if jitter > 0 {
			d += (rand.Float64()*2 - 1) * d * jitter
		}
		if d < 0 {
			d = 0
		}
		return time.Duration(d)
	}
}

// RetryConfig controls how an operation is retried.
type RetryConfig struct {
	// MaxAttempts is the total number of tries including the first. Default: 3.
	MaxAttempts int

	// Backoff computes the pause before the next attempt. Default: exponential
	// from 500ms capped at 30s with 25% jitter.
	Backoff Backoff

	// ShouldRetry decides whether an error is worth another attempt.
	// If nil, IsTransient is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each pause with the failed attempt number.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig is tuned for remote API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Backoff:     Exponential(500*time.Millisecond, 30*time.Second, 2.0, 0.25),
	}
}

// FixedRetryConfig retries every error up to attempts times with a constant delay.
func FixedRetryConfig(attempts int, delay time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		Backoff:     Fixed(delay),
		ShouldRetry: func(error) bool { return true },
	}
}

// Do runs fn until it succeeds, the error is not retryable, attempts run out,
// or ctx is done. It returns the number of attempts made.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) (int, error) {
	_, n, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return n, err
}

// DoVal is Do for operations that produce a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, int, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultRetryConfig().Backoff
	}
	retryable := cfg.ShouldRetry
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	var err error
	attempt := 0
	for attempt < cfg.MaxAttempts {
		attempt++

		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, attempt, nil
		}
		if ctx.Err() != nil || !retryable(err) || attempt == cfg.MaxAttempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if !sleep(ctx, cfg.Backoff(attempt)) {
			break
		}
	}
	return zero, attempt, err
}

// sleep waits d or until ctx is done. It reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// RetryLogger returns an OnRetry callback that logs each retry.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
