package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type countingObserver struct {
	retries map[string]int
}

func (o *countingObserver) ObserveConflictRetry(operation string) {
	if o.retries == nil {
		o.retries = make(map[string]int)
	}
	o.retries[operation]++
}

func newTestPolicy(cfg Config, observer Observer) (*Policy, *[]time.Duration) {
	var delays []time.Duration
	p := NewPolicy(cfg, WithObserver(observer))
	p.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return p, &delays
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxAttempts != 3 {
		t.Fatalf("unexpected MaxAttempts: %d", cfg.MaxAttempts)
	}
	if cfg.InitialDelay != 10*time.Millisecond || cfg.MaxDelay != 200*time.Millisecond {
		t.Fatalf("unexpected delays: %+v", cfg)
	}
	if cfg.BackoffFactor <= 1 {
		t.Fatalf("backoff factor should be > 1: %f", cfg.BackoffFactor)
	}
}

func TestPolicy_RetriesConflictUntilSuccess(t *testing.T) {
	observer := &countingObserver{}
	p, delays := newTestPolicy(DefaultConfig(), observer)

	calls := 0
	err := p.Do(context.Background(), "reserve", func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("listing l-1: %w", domain.ErrConflictRetryable)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(*delays) != 2 || (*delays)[0] != 10*time.Millisecond || (*delays)[1] != 20*time.Millisecond {
		t.Fatalf("unexpected backoff delays: %v", *delays)
	}
	if observer.retries["reserve"] != 2 {
		t.Fatalf("expected 2 observed retries, got %d", observer.retries["reserve"])
	}
}

func TestPolicy_GivesUpAfterMaxAttempts(t *testing.T) {
	p, _ := newTestPolicy(Config{MaxAttempts: 4, InitialDelay: 100 * time.Millisecond, MaxDelay: 150 * time.Millisecond, BackoffFactor: 2}, nil)

	calls := 0
	err := p.Do(context.Background(), "cancel", func(context.Context) error {
		calls++
		return domain.ErrConflictRetryable
	})
	if !errors.Is(err, domain.ErrConflictRetryable) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
}

func TestPolicy_BackoffIsCapped(t *testing.T) {
	p, delays := newTestPolicy(Config{MaxAttempts: 4, InitialDelay: 100 * time.Millisecond, MaxDelay: 150 * time.Millisecond, BackoffFactor: 2}, nil)

	_ = p.Do(context.Background(), "cancel", func(context.Context) error {
		return domain.ErrConflictRetryable
	})
	want := []time.Duration{100 * time.Millisecond, 150 * time.Millisecond, 150 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("unexpected delays: %v", *delays)
	}
	for i := range want {
		if (*delays)[i] != want[i] {
			t.Fatalf("delay %d = %s, want %s", i, (*delays)[i], want[i])
		}
	}
}

func TestPolicy_NonConflictErrorsAreNotRetried(t *testing.T) {
	p, delays := newTestPolicy(DefaultConfig(), nil)

	for _, sentinel := range []error{
		domain.ErrInsufficientQuantity,
		domain.ErrListingNotFound,
		domain.ErrInvalidTransition,
		errors.New("connection refused"),
	} {
		calls := 0
		err := p.Do(context.Background(), "reserve", func(context.Context) error {
			calls++
			return sentinel
		})
		if err != sentinel {
			t.Fatalf("error must be surfaced unchanged, got %v", err)
		}
		if calls != 1 {
			t.Fatalf("expected single call for %v, got %d", sentinel, calls)
		}
	}
	if len(*delays) != 0 {
		t.Fatalf("expected no sleeps, got %v", *delays)
	}
}

func TestPolicy_StopsOnContextCancel(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 2})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, "reserve", func(context.Context) error {
			return domain.ErrConflictRetryable
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not stop on cancel")
	}
}

func TestNewPolicy_NormalizesConfig(t *testing.T) {
	p := NewPolicy(Config{})
	if p.config.MaxAttempts != 3 || p.config.MaxDelay != 200*time.Millisecond || p.config.BackoffFactor != 2 {
		t.Fatalf("unexpected normalized config: %+v", p.config)
	}
	if p.logger == nil {
		t.Fatal("expected default logger")
	}
}
