package errors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrRetriesExhausted is matched by errors.Is when every attempt failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Strategy selects how the delay grows between attempts.
type Strategy int

const (
	// StrategyExponential multiplies the delay by Multiplier after each attempt.
	StrategyExponential Strategy = iota
	// StrategyLinear waits InitialDelay * attempt before the next attempt.
	StrategyLinear
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int

	// InitialDelay is the delay before the first retry (the linear base delay).
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries. Zero means uncapped.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases (exponential only).
	Multiplier float64

	// Strategy selects linear or exponential growth.
	Strategy Strategy

	// Jitter adds randomness to delay to prevent thundering herd.
	Jitter bool

	// ShouldRetry classifies errors. Nil retries every error.
	ShouldRetry func(err error) bool

	// OnRetry is called before waiting for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)

	// SwallowCancel keeps retrying after ctx is cancelled instead of
	// returning ctx.Err(). Waits still run their full delay.
	SwallowCancel bool
}

// DefaultRetryConfig returns sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
		Strategy:     StrategyExponential,
	}
}

// LinearRetryConfig returns a config waiting base*attempt between attempts,
// the policy used for bulk-write backpressure.
func LinearRetryConfig(maxAttempts int, base time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts:  maxAttempts,
		InitialDelay: base,
		Strategy:     StrategyLinear,
	}
}

// Delay returns the wait after the given failed attempt (1-based), before jitter.
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var d time.Duration
	switch c.Strategy {
	case StrategyLinear:
		d = c.InitialDelay * time.Duration(attempt)
	default:
		mult := c.Multiplier
		if mult <= 0 {
			mult = 1
		}
		d = time.Duration(float64(c.InitialDelay) * math.Pow(mult, float64(attempt-1)))
	}

	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// ExhaustedError reports that every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Is makes errors.Is(err, ErrRetriesExhausted) true.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

// Do runs fn until it succeeds, returns a non-retryable error, or MaxAttempts
// is reached. It returns the number of attempts made. Attempts are made in a
// loop; fn receives the 1-based attempt number.
func Do(ctx context.Context, cfg RetryConfig, fn func(attempt int) error) (int, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	waitCtx := ctx
	if cfg.SwallowCancel {
		waitCtx = context.WithoutCancel(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !cfg.SwallowCancel {
			select {
			case <-ctx.Done():
				return attempt - 1, ctx.Err()
			default:
			}
		}

		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(err) {
			return attempt, err
		}

		// No wait after the final attempt
		if attempt >= maxAttempts {
			break
		}

		waitDelay := cfg.Delay(attempt)
		if cfg.Jitter {
			// delay * (0.5 + rand(0, 0.5))
			jitterFactor := 0.5 + rand.Float64()*0.5
			waitDelay = time.Duration(float64(waitDelay) * jitterFactor)
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, waitDelay, err)
		}

		if err := wait(waitCtx, waitDelay); err != nil {
			return attempt, err
		}
	}

	return maxAttempts, &ExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

// Retry executes fn with backoff retry logic.
// If the context is cancelled, it returns the context error immediately.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := Do(ctx, cfg, func(int) error { return fn() })
	return err
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
