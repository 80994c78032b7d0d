package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/Aman-CERP/fuzzysearch/internal/errors"
	"github.com/Aman-CERP/fuzzysearch/internal/store"
)

// Submission defaults.
const (
	DefaultMaxAttempts = 10
	DefaultBaseDelay   = 50 * time.Millisecond
)

// SubmitConfig configures how a batch is written.
type SubmitConfig struct {
	// Field is the array field receiving the codes.
	Field string

	// MaxAttempts bounds bulk write attempts per batch, including the first.
	MaxAttempts int

	// BaseDelay is multiplied by the attempt number to get the next wait.
	BaseDelay time.Duration

	// RateLimit caps submissions per second. Zero means unlimited.
	RateLimit float64
}

// SubmitResult describes one submitted batch.
type SubmitResult struct {
	Attempts int
	Matched  int64
	Modified int64
	Duration time.Duration
}

// Submitter writes batches with bounded linear backoff on backpressure.
type Submitter struct {
	store   store.Store
	field   string
	retry   apperrors.RetryConfig
	limiter *rate.Limiter
}

// NewSubmitter creates a Submitter writing to s.
func NewSubmitter(s store.Store, cfg SubmitConfig) *Submitter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}

	retry := apperrors.LinearRetryConfig(cfg.MaxAttempts, cfg.BaseDelay)
	retry.ShouldRetry = apperrors.IsRetryable
	retry.SwallowCancel = true

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Submitter{
		store:   s,
		field:   cfg.Field,
		retry:   retry,
		limiter: limiter,
	}
}

// Delay returns the wait after the given failed attempt.
func (s *Submitter) Delay(attempt int) time.Duration {
	return s.retry.Delay(attempt)
}

// MaxAttempts returns the attempt ceiling.
func (s *Submitter) MaxAttempts() int {
	return s.retry.MaxAttempts
}

// Submit writes reqs as one bulk set-union update.
//
// Backpressure, partial bulk failures and timeouts are retried after
// BaseDelay*attempt. Once the attempt ceiling is reached the error carries
// ERR_502_BACKFILL_INCOMPLETE. Any other failure is returned at once.
func (s *Submitter) Submit(ctx context.Context, reqs []store.UpdateRequest) (*SubmitResult, error) {
	start := time.Now()
	result := &SubmitResult{}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			slog.Debug("backfill_rate_wait_interrupted", slog.String("error", err.Error()))
		}
	}

	cfg := s.retry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		attrs := []any{
			slog.Int("attempt", attempt),
			slog.Int("batch_size", len(reqs)),
			slog.Int64("delay_ms", delay.Milliseconds()),
		}
		slog.Warn("backfill_retry", append(attrs, apperrors.LogAttrs(err)...)...)
	}

	// A batch already started is written to its ceiling even if ctx ends.
	writeCtx := context.WithoutCancel(ctx)
	attempts, err := apperrors.Do(ctx, cfg, func(int) error {
		res, err := s.store.BulkAddToSet(writeCtx, s.field, reqs)
		if err != nil {
			return err
		}
		result.Matched = res.Matched
		result.Modified = res.Modified
		return nil
	})
	result.Attempts = attempts
	result.Duration = time.Since(start)

	if err != nil {
		if errors.Is(err, apperrors.ErrRetriesExhausted) {
			return result, apperrors.New(apperrors.ErrCodeBackfillIncomplete,
				fmt.Sprintf("batch of %d updates gave up after %d attempts", len(reqs), attempts), err).
				WithDetail("attempts", fmt.Sprintf("%d", attempts))
		}
		return result, err
	}

	slog.Debug("backfill_batch_submitted",
		slog.Int("batch_size", len(reqs)),
		slog.Int("attempts", attempts),
		slog.Int64("matched", result.Matched),
		slog.Int64("modified", result.Modified),
		slog.Int64("duration_ms", result.Duration.Milliseconds()))
	return result, nil
}
