// Package retry re-runs operations that failed with a transient error, such
// as a locked database or a serialization failure.
package retry

import (
	"math/rand"
	"time"
)

// BackoffStrategy selects how the wait grows between attempts.
type BackoffStrategy int

const (
	// BackoffExponential waits base * 2^(attempt-1).
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear waits base * attempt.
	BackoffLinear
	// BackoffConstant always waits base.
	BackoffConstant
)

// Backoff defaults, sized for contention on a local database.
const (
	DefaultBaseInterval = 50 * time.Millisecond
	DefaultMaxInterval  = 2 * time.Second
	DefaultJitter       = 0.1
)

// BackoffConfig configures the wait between attempts.
type BackoffConfig struct {
	Strategy     BackoffStrategy
	BaseInterval time.Duration

	// MaxInterval caps the wait; 0 leaves it uncapped.
	MaxInterval time.Duration

	// Jitter spreads each wait uniformly over [1-Jitter, 1+Jitter] of its
	// value. It is clamped to [0, 1].
	Jitter float64
}

// DefaultBackoffConfig returns exponential backoff from 50ms to 2s with 10%
// jitter.
func DefaultBackoffConfig() *BackoffConfig {
	return &BackoffConfig{
		Strategy:     BackoffExponential,
		BaseInterval: DefaultBaseInterval,
		MaxInterval:  DefaultMaxInterval,
		Jitter:       DefaultJitter,
	}
}

// Interval returns the wait before retry number attempt (1-based).
//
// With the defaults the waits are 50ms, 100ms, 200ms, 400ms, 800ms, 1.6s
// and 2s from then on.
func (c *BackoffConfig) Interval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var d time.Duration
	switch c.Strategy {
	case BackoffLinear:
		d = c.BaseInterval * time.Duration(attempt)
	case BackoffConstant:
		d = c.BaseInterval
	default:
		d = c.BaseInterval
		for i := 1; i < attempt && (c.MaxInterval <= 0 || d < c.MaxInterval); i++ {
			d *= 2
		}
	}
	if c.MaxInterval > 0 && d > c.MaxInterval {
		d = c.MaxInterval
	}

	jitter := min(c.Jitter, 1)
	if jitter <= 0 {
		return d
	}
	spread := float64(d) * jitter
	return time.Duration(float64(d) + (rand.Float64()*2-1)*spread)
}
