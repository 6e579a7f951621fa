package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var fast = Backoff{Attempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", fast, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryGivesUp(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), "op", fast, func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	bad := errors.New("bad input")
	calls := 0
	err := Retry(context.Background(), "op", fast, func(context.Context) error {
		calls++
		return Permanent(bad)
	})
	if err != bad {
		t.Errorf("err = %v, want bad input unwrapped", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "op", Backoff{Attempts: 5, InitialDelay: time.Second}, func(context.Context) error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	b := Backoff{InitialDelay: time.Second, MaxDelay: 2 * time.Second, Multiplier: 10}
	if d := b.Delay(3); d != 2*time.Second {
		t.Errorf("delay = %v, want 2s", d)
	}
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker("kafka", BreakerConfig{Threshold: 2, Cooldown: time.Minute})
	b.now = func() time.Time { return now }
	fail := func() error { return errors.New("down") }

	b.Do(fail)
	if b.State() != StateClosed {
		t.Fatalf("state = %v after one failure", b.State())
	}
	b.Do(fail)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker let a call through: %v", err)
	}

	now = now.Add(time.Minute)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker("pg", BreakerConfig{Threshold: 1, Cooldown: time.Second})
	b.now = func() time.Time { return now }
	b.Do(func() error { return errors.New("down") })
	now = now.Add(time.Second)
	b.Do(func() error { return errors.New("still down") })
	if b.State() != StateOpen {
		t.Errorf("state = %v, want open", b.State())
	}
}
