package retry

import (
	"context"
	"testing"
	"time"

	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/errors"
)

func TestBackoffConfig_Interval(t *testing.T) {
	cfg := DefaultBackoffConfig()
	cfg.BaseInterval = 1 * time.Minute
	cfg.MaxInterval = 0
	cfg.Jitter = 0 // Disable jitter for predictable tests

	tests := []struct {
		attempts int
		expected time.Duration
	}{
		{0, 1 * time.Minute},
		{1, 1 * time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{5, 16 * time.Minute},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			interval := cfg.Interval(tt.attempts)
			if interval != tt.expected {
				t.Errorf("Attempt %d: expected %v, got %v", tt.attempts, tt.expected, interval)
			}
		})
	}
}

func TestBackoffConfig_MaxInterval(t *testing.T) {
	cfg := DefaultBackoffConfig()
	cfg.BaseInterval = 1 * time.Hour
	cfg.MaxInterval = 24 * time.Hour
	cfg.Jitter = 0

	// With exponential backoff: 1h * 2^9 = 512h, but should be capped at 24h
	interval := cfg.Interval(10)
	if interval != 24*time.Hour {
		t.Errorf("Expected max interval 24h, got %v", interval)
	}
}

func TestBackoffConfig_Strategies(t *testing.T) {
	linear := &BackoffConfig{Strategy: BackoffLinear, BaseInterval: time.Second}
	if got := linear.Interval(3); got != 3*time.Second {
		t.Errorf("linear: expected 3s, got %v", got)
	}
	constant := &BackoffConfig{Strategy: BackoffConstant, BaseInterval: time.Second}
	if got := constant.Interval(7); got != time.Second {
		t.Errorf("constant: expected 1s, got %v", got)
	}
}

func TestBackoffConfig_Jitter(t *testing.T) {
	cfg := &BackoffConfig{BaseInterval: time.Second, Jitter: 0.1}
	for n := 0; n < 100; n++ {
		got := cfg.Interval(1)
		if got < 900*time.Millisecond || got > 1100*time.Millisecond {
			t.Fatalf("jittered interval %v outside [0.9s, 1.1s]", got)
		}
	}
}

func TestDefaultBackoffConfig(t *testing.T) {
	cfg := DefaultBackoffConfig()
	cfg.Jitter = 0

	want := []time.Duration{
		50 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		DefaultMaxInterval,
		DefaultMaxInterval,
	}
	for i, w := range want {
		if got := cfg.Interval(i + 1); got != w {
			t.Errorf("Interval(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func fastConfig(maxAttempts int) *Config {
	return &Config{
		Backoff:     &BackoffConfig{Strategy: BackoffConstant, BaseInterval: time.Millisecond},
		MaxAttempts: maxAttempts,
		Logger:      &core.NopLogger{},
	}
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.ErrBusy
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	dup := errors.E(errors.KindConstraint, "store.InsertIdentifier", "duplicate")
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		calls++
		return dup
	})
	if !errors.IsConstraintError(err) {
		t.Fatalf("expected constraint error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_GivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(4), func(ctx context.Context) error {
		calls++
		return errors.ErrBusy
	})
	if errors.GetKind(err) != errors.KindBusy {
		t.Fatalf("expected busy error, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(10)
	cfg.Backoff.BaseInterval = time.Hour

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func(ctx context.Context) error {
			calls++
			return errors.ErrBusy
		})
	}()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_CustomRetryable(t *testing.T) {
	calls := 0
	cfg := fastConfig(3)
	cfg.Retryable = func(error) bool { return true }
	_ = Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return errors.New("anything")
	})
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}
