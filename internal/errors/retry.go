package errors

import (
	"context"
	"fmt"
	"time"

	retry "github.com/sethvargo/go-retry"
)

// RetryConfig configures backoff for retryable errors.
type RetryConfig struct {
	// MaxRetries is the maximum number of retries after the first attempt.
	MaxRetries int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps every wait. Zero means uncapped.
	MaxDelay time.Duration

	// Multiplier grows the wait after each retry. Values below 1 keep it flat.
	Multiplier float64

	// Jitter spreads each wait by up to 25% either way.
	Jitter bool

	// OnRetry is called before each wait with the retry number (1-based) and the error.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns the per-file retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}
}

// backoff builds the go-retry chain for cfg. onNext sees every decision,
// with stop set once the retry budget is spent.
func (cfg RetryConfig) backoff(onNext func(stop bool)) retry.Backoff {
	delay := cfg.InitialDelay
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}

	var b retry.Backoff = retry.BackoffFunc(func() (time.Duration, bool) {
		d := delay
		delay = time.Duration(float64(delay) * mult)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		return d, false
	})
	if cfg.Jitter {
		b = retry.WithJitterPercent(25, b)
	}
	if cfg.MaxDelay > 0 {
		b = retry.WithCappedDuration(cfg.MaxDelay, b)
	}
	b = retry.WithMaxRetries(uint64(max(cfg.MaxRetries, 0)), b)

	return retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := b.Next()
		onNext(stop)
		return d, stop
	})
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// retry budget is spent. Only errors IsRetryable accepts are retried; any
// other error is returned unchanged. A context cancelled while waiting
// returns the context error.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult is Retry for functions that produce a value.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var (
		result  T
		retries int
		lastErr error
		spent   bool
	)

	b := cfg.backoff(func(stop bool) {
		if stop {
			spent = true
			return
		}
		retries++
		if cfg.OnRetry != nil {
			cfg.OnRetry(retries, lastErr)
		}
	})

	err := retry.Do(ctx, b, func(context.Context) error {
		v, err := fn()
		if err == nil {
			result = v
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		return retry.RetryableError(err)
	})
	if err != nil {
		var zero T
		if spent {
			return zero, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, err)
		}
		return zero, err
	}
	return result, nil
}
