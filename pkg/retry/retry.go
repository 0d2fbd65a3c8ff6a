package retry

import (
	"context"
	"time"

	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/errors"
)

// DefaultMaxAttempts is the number of runs Do makes before giving up.
const DefaultMaxAttempts = 5

// Config configures Do.
type Config struct {
	Backoff *BackoffConfig

	// MaxAttempts counts the first run (default: DefaultMaxAttempts).
	MaxAttempts int

	// Retryable decides whether an error is transient
	// (default: errors.IsRetryable).
	Retryable func(error) bool

	Logger core.Logger
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. The last error is returned.
func Do(ctx context.Context, cfg *Config, fn func(ctx context.Context) error) error {
	if cfg == nil {
		cfg = &Config{}
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = DefaultBackoffConfig()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = errors.IsRetryable
	}
	logger := core.LoggerOrDefault(cfg.Logger)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !retryable(err) || attempt >= maxAttempts {
			return err
		}

		wait := backoff.Interval(attempt)
		logger.Debug("attempt %d/%d failed, retrying in %s: %v", attempt, maxAttempts, wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
