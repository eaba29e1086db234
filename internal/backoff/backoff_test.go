package backoff

import (
	"context"
	"testing"
	"time"
)

func TestArmAppliesMultiplier(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewController(2.0, 30*time.Second)
	c.SetClock(func() time.Time { return now })

	until := c.Arm(2 * time.Second)

	want := now.Add(4 * time.Second)
	if !until.Equal(want) {
		t.Errorf("Arm(2s) with multiplier 2 = %v, want %v", until, want)
	}
	if !c.Active() {
		t.Error("Expected backoff to be active after arming")
	}
}

func TestArmCapsAtMax(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewController(2.0, 30*time.Second)
	c.SetClock(func() time.Time { return now })

	until := c.Arm(60 * time.Second)

	want := now.Add(30 * time.Second)
	if !until.Equal(want) {
		t.Errorf("Arm(60s) = %v, want capped %v", until, want)
	}
}

func TestRearmOverwrites(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewController(1.0, 30*time.Second)
	c.SetClock(func() time.Time { return now })

	c.Arm(10 * time.Second)
	until := c.Arm(2 * time.Second)

	want := now.Add(2 * time.Second)
	if !until.Equal(want) {
		t.Errorf("Re-arm did not overwrite: got %v, want %v", until, want)
	}
}

func TestMultiplierFloor(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewController(0.1, 30*time.Second)
	c.SetClock(func() time.Time { return now })

	until := c.Arm(2 * time.Second)

	// Multipliers below 1 never shrink the server's request.
	want := now.Add(2 * time.Second)
	if !until.Equal(want) {
		t.Errorf("Arm with sub-1 multiplier = %v, want %v", until, want)
	}
}

func TestInactiveByDefault(t *testing.T) {
	c := NewController(2.0, 30*time.Second)

	if c.Active() {
		t.Error("Expected fresh controller to be inactive")
	}
	if !c.Until().IsZero() {
		t.Errorf("Until = %v, want zero", c.Until())
	}
	if err := c.Wait(context.Background()); err != nil {
		t.Errorf("Wait on inactive controller returned %v", err)
	}
}

func TestExpiryDeactivates(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewController(1.0, 30*time.Second)
	c.SetClock(func() time.Time { return now })

	c.Arm(5 * time.Second)
	now = now.Add(6 * time.Second)

	if c.Active() {
		t.Error("Expected backoff to expire once the deadline passed")
	}
}

func TestWaitBlocksUntilDeadline(t *testing.T) {
	c := NewController(1.0, time.Second)
	c.Arm(50 * time.Millisecond)

	start := time.Now()
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Wait returned after %v, expected at least ~50ms", elapsed)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	c := NewController(1.0, time.Minute)
	c.Arm(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := c.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait returned %v, want context.DeadlineExceeded", err)
	}
}
