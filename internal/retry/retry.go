// Package retry provides a bounded exponential-backoff wrapper for flaky
// operations: whole scrape runs, browser session opens, enrichment fetches.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Policy controls how Do spaces its attempts.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration // 0 means uncapped
}

// DefaultPolicy matches the scraper's usual posture: three attempts,
// 2s then 4s between them.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: 2 * time.Second, BackoffFactor: 2.0, MaxDelay: 30 * time.Second}
}

// Do invokes fn up to p.MaxAttempts times, sleeping
// InitialDelay * BackoffFactor^(attempt-1) between failures. It stops early
// when ctx is done and returns the last error wrapped with the attempt count.
func Do(ctx context.Context, p Policy, logger *zap.Logger, op string, fn func(context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = 1
	}

	var lastErr error
	delay := p.InitialDelay
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s canceled before attempt %d: %w", op, attempt, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}

		logger.Warn("operation failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled during backoff: %w", op, ctx.Err())
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * p.BackoffFactor)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, p.MaxAttempts, lastErr)
}
