package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/shaiso/courier/internal/backoff/backofftest"
)

func TestPolicy_Delay_Exponential(t *testing.T) {
	p := Policy{Initial: time.Second, Max: 30 * time.Second, Multiplier: 2}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // capped
		30 * time.Second,
	}

	for attempt, expected := range want {
		if got := p.Delay(attempt); got != expected {
			t.Errorf("attempt %d: expected %v, got %v", attempt, expected, got)
		}
	}
}

func TestPolicy_Delay_Defaults(t *testing.T) {
	var p Policy
	if got := p.Delay(0); got != time.Second {
		t.Errorf("expected default initial 1s, got %v", got)
	}
	if got := p.Delay(10); got != 30*time.Second {
		t.Errorf("expected default cap 30s, got %v", got)
	}
}

func TestBackoff_JitterStaysWithinBounds(t *testing.T) {
	b := New(ReconnectPolicy())
	now := time.Now()

	for i := 0; i < 50; i++ {
		base := ReconnectPolicy().Delay(b.Attempt())
		d := b.Next(now, 0)

		low := time.Duration(float64(base) * 0.8)
		high := min(time.Duration(float64(base)*1.2), 30*time.Second)
		if d < low || d > high {
			t.Fatalf("attempt %d: delay %v outside [%v, %v]", i, d, low, high)
		}
	}
}

func TestBackoff_NextTracksState(t *testing.T) {
	b := New(Policy{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	d := b.Next(now, 0)
	if d != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", d)
	}
	if b.Attempt() != 1 {
		t.Errorf("expected attempt 1, got %d", b.Attempt())
	}
	if !b.NextAt().Equal(now.Add(d)) {
		t.Errorf("expected nextAt %v, got %v", now.Add(d), b.NextAt())
	}

	b.Reset()
	if b.Attempt() != 0 || !b.NextAt().IsZero() {
		t.Error("reset should clear state")
	}
}

func TestBackoff_Floor(t *testing.T) {
	b := New(Policy{Initial: 100 * time.Millisecond, Max: time.Second})

	d := b.Next(time.Now(), 5*time.Second)
	if d != 5*time.Second {
		t.Errorf("floor should win over computed delay, got %v", d)
	}
}

func TestBackoff_WaitUsesClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := backofftest.NewClock(start)
	b := New(Policy{Initial: 2 * time.Second, Max: 10 * time.Second})

	b.Next(clock.Now(), 0)
	if err := b.Wait(context.Background(), clock); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sleeps := clock.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 2*time.Second {
		t.Errorf("expected one 2s sleep, got %v", sleeps)
	}
	if !clock.Now().Equal(start.Add(2 * time.Second)) {
		t.Errorf("clock should advance, now %v", clock.Now())
	}
}

func TestBackoff_WaitHeldClock(t *testing.T) {
	clock := backofftest.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	clock.Hold()
	b := New(Policy{Initial: time.Second, Max: time.Second})
	b.Next(clock.Now(), 0)

	done := make(chan error, 1)
	go func() { done <- b.Wait(context.Background(), clock) }()

	deadline := time.Now().Add(time.Second)
	for clock.Pending() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Wait did not register a timer")
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case <-done:
		t.Fatal("Wait returned before the clock advanced")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(500 * time.Millisecond)
	if clock.Pending() != 1 {
		t.Fatal("timer fired too early")
	}
	clock.Advance(500 * time.Millisecond)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Advance")
	}
}

func TestBackoff_WaitCancelled(t *testing.T) {
	b := New(Policy{Initial: time.Hour, Max: time.Hour})
	b.Next(time.Now(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Wait(ctx, SystemClock); err == nil {
		t.Error("expected context error")
	}
}
