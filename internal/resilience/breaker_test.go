package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failing() error { return errBoom }
func succeeding() error { return nil }

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Execute(ctx, failing); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d: err = %v, want boom", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Execute(ctx, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker should reject, got %v", err)
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	_ = b.Execute(ctx, failing)
	if err := b.Execute(ctx, succeeding); err != nil {
		t.Fatal(err)
	}
	_ = b.Execute(ctx, failing)
	_ = b.Execute(ctx, failing)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed (failure run interrupted)", b.State())
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	clock := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(1, 30*time.Second)
	b.now = func() time.Time { return clock }
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	// Before the timeout the breaker stays shut.
	clock = clock.Add(10 * time.Second)
	if err := b.Execute(ctx, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected rejection before timeout, got %v", err)
	}

	// After the timeout a single probe goes through and closes the circuit.
	clock = clock.Add(30 * time.Second)
	if err := b.Execute(ctx, succeeding); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probe", b.State())
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	clock := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(1, 30*time.Second)
	b.now = func() time.Time { return clock }
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	clock = clock.Add(time.Minute)

	if err := b.Execute(ctx, failing); !errors.Is(err, errBoom) {
		t.Fatalf("probe error = %v, want boom", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", b.State())
	}
}

func TestBreakerHonorsContext(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Execute(ctx, succeeding); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
