package costar

import (
	"context"
	"testing"
	"time"
)

func testGate() (*TransportGate, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	g := NewTransportGate()
	g.acquireTimeout = 20 * time.Millisecond
	g.now = func() time.Time { return now }
	g.sleep = func(d time.Duration) { now = now.Add(d) }
	return g, &now
}

func TestGateAcquireRelease(t *testing.T) {
	g, _ := testGate()
	ctx := context.Background()

	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	g.Release(true)
	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	g.Release(true)
	if g.FailStreak() != 0 {
		t.Errorf("streak after successes = %d", g.FailStreak())
	}
}

func TestGateBusyWhenHeld(t *testing.T) {
	g, _ := testGate()
	ctx := context.Background()

	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := g.Acquire(ctx); err != ErrTransportBusy {
		t.Errorf("second acquire while held = %v, want ErrTransportBusy", err)
	}
	g.Release(true)
}

func TestGateMinGap(t *testing.T) {
	g, now := testGate()
	ctx := context.Background()

	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	g.Release(true)
	released := *now

	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	if gap := now.Sub(released); gap < gateMinGap {
		t.Errorf("gap between requests = %v, want >= %v", gap, gateMinGap)
	}
	g.Release(true)
}

func TestGateCooldownAfterFailures(t *testing.T) {
	g, now := testGate()
	ctx := context.Background()

	for i := 0; i < gateFailureLimit; i++ {
		if err := g.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		g.Release(false)
		*now = now.Add(time.Second)
	}

	if !g.InCooldown() {
		t.Fatal("gate should be in cooldown after failure run")
	}
	if err := g.Acquire(ctx); err != ErrTransportCooldown {
		t.Errorf("acquire during cooldown = %v, want ErrTransportCooldown", err)
	}

	select {
	case <-g.ReconnectSignal():
	default:
		t.Error("cooldown should raise the reconnect signal")
	}

	// cooldown expires and a success clears the streak
	*now = now.Add(g.cooldown + time.Second)
	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("acquire after cooldown: %v", err)
	}
	g.Release(true)
	if g.FailStreak() != 0 || g.InCooldown() {
		t.Error("success should reset streak and cooldown")
	}
}

func TestGateReconnectSignalRateLimited(t *testing.T) {
	g, now := testGate()
	ctx := context.Background()

	fail := func() {
		if err := g.Acquire(ctx); err != nil {
			t.Fatalf("acquire: %v", err)
		}
		g.Release(false)
	}

	for i := 0; i < gateFailureLimit; i++ {
		fail()
	}
	select {
	case <-g.ReconnectSignal():
	default:
		t.Fatal("expected first reconnect signal")
	}

	// further failures inside the signal window stay quiet
	*now = now.Add(g.cooldown + time.Second)
	fail()
	select {
	case <-g.ReconnectSignal():
		t.Error("reconnect signal should be rate-limited")
	default:
	}

	// outside the window it fires again
	*now = now.Add(g.signalGap)
	fail()
	select {
	case <-g.ReconnectSignal():
	default:
		t.Error("expected reconnect signal after rate-limit window")
	}
}

func TestGateAcquireHonorsContext(t *testing.T) {
	g, _ := testGate()
	g.acquireTimeout = time.Minute

	if err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.Acquire(ctx); err != context.Canceled {
		t.Errorf("acquire with canceled ctx = %v, want context.Canceled", err)
	}
	g.Release(true)
}
