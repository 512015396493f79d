// Package retry provides exponential-backoff retry logic for transient errors.
//
// Usage:
//
//	attempts, err := retry.Do(ctx, retry.Config{MaxAttempts: 3}, func(attempt int) error {
//	    return provider.Ping(ctx)
//	})
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Config controls the retry behaviour.
type Config struct {
	// MaxAttempts is the total number of attempts (including the first).
	// Zero or negative values are treated as 1 (no retries).
	MaxAttempts int
	// InitialDelay is the wait before the second attempt.
	// Subsequent delays are doubled up to MaxDelay.
	InitialDelay time.Duration
	// MaxDelay caps the per-attempt wait.
	MaxDelay time.Duration
	// OnRetry, when set, is called after a failed attempt that will be
	// followed by another one.
	OnRetry func(attempt int, err error)
}

// DefaultConfig suits short calls to a local model server.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     2 * time.Second,
}

// Permanent wraps err so that Do returns it without further attempts.
// Every other non-nil error is retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Do calls fn up to cfg.MaxAttempts times, backing off exponentially between
// attempts. fn receives the 1-based attempt number. Do stops early when ctx
// is cancelled or fn returns nil, and reports how many attempts were made
// together with the error from the last one.
func Do(ctx context.Context, cfg Config, fn func(attempt int) error) (int, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	delay := cfg.InitialDelay
	var lastErr error
	made := 0

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return made, errors.Join(lastErr, err)
		}

		made++
		lastErr = fn(attempt)
		if lastErr == nil {
			return made, nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return made, perm.err
		}
		if attempt < cfg.MaxAttempts {
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, lastErr)
			}
			slog.Debug("retry: attempt failed, retrying",
				"attempt", attempt, "max", cfg.MaxAttempts,
				"err", lastErr, "delay", delay)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return made, errors.Join(lastErr, ctx.Err())
			case <-timer.C:
			}

			delay *= 2
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
	}

	return made, lastErr
}
