package costar

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrTransportBusy means another request held the transport for the
	// whole acquire window.
	ErrTransportBusy = errors.New("transport busy")
	// ErrTransportCooldown means the transport is refusing requests
	// after a run of consecutive failures.
	ErrTransportCooldown = errors.New("transport cooling down")
)

const (
	gateAcquireTimeout = 7000 * time.Millisecond
	gateMinGap         = 250 * time.Millisecond
	gateCooldown       = 12000 * time.Millisecond
	gateFailureLimit   = 6
	reconnectSignalGap = 15000 * time.Millisecond
)

// TransportGate serializes all HTTP traffic through a single in-flight
// slot, paces consecutive requests, and trips a cooldown once the
// network looks dead. A reconnect signal is raised (rate-limited) when
// the cooldown trips so the link layer can try to re-associate.
type TransportGate struct {
	slot      chan struct{}
	reconnect chan struct{}

	mu            sync.Mutex
	lastRelease   time.Time
	failStreak    int
	cooldownUntil time.Time
	lastSignal    time.Time

	acquireTimeout time.Duration
	minGap         time.Duration
	cooldown       time.Duration
	signalGap      time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

func NewTransportGate() *TransportGate {
	g := &TransportGate{
		slot:           make(chan struct{}, 1),
		reconnect:      make(chan struct{}, 1),
		acquireTimeout: gateAcquireTimeout,
		minGap:         gateMinGap,
		cooldown:       gateCooldown,
		signalGap:      reconnectSignalGap,
		now:            time.Now,
		sleep:          time.Sleep,
	}
	g.slot <- struct{}{}
	return g
}

// Acquire claims the transport slot, waiting up to the acquire window.
// It enforces the minimum gap since the previous release before
// returning. Callers must pair a successful Acquire with Release.
func (g *TransportGate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if g.now().Before(g.cooldownUntil) {
		g.mu.Unlock()
		return ErrTransportCooldown
	}
	g.mu.Unlock()

	timer := time.NewTimer(g.acquireTimeout)
	defer timer.Stop()

	select {
	case <-g.slot:
	case <-timer.C:
		return ErrTransportBusy
	case <-ctx.Done():
		return ctx.Err()
	}

	// cooldown may have tripped while we waited
	g.mu.Lock()
	if g.now().Before(g.cooldownUntil) {
		g.mu.Unlock()
		g.slot <- struct{}{}
		return ErrTransportCooldown
	}
	wait := g.minGap - g.now().Sub(g.lastRelease)
	g.mu.Unlock()

	if wait > 0 {
		g.sleep(wait)
	}
	return nil
}

// Release returns the slot and records the request outcome. Six
// consecutive failures trip the cooldown and raise the reconnect
// signal, rate-limited to once per signal gap.
func (g *TransportGate) Release(ok bool) {
	g.mu.Lock()
	now := g.now()
	g.lastRelease = now
	if ok {
		g.failStreak = 0
	} else {
		if g.failStreak < 255 {
			g.failStreak++
		}
		if g.failStreak >= gateFailureLimit {
			g.cooldownUntil = now.Add(g.cooldown)
			if now.Sub(g.lastSignal) >= g.signalGap {
				g.lastSignal = now
				select {
				case g.reconnect <- struct{}{}:
				default:
				}
			}
		}
	}
	g.mu.Unlock()

	g.slot <- struct{}{}
}

// ReconnectSignal delivers at most one pending reconnect request.
func (g *TransportGate) ReconnectSignal() <-chan struct{} {
	return g.reconnect
}

// FailStreak reports the current run of consecutive failures.
func (g *TransportGate) FailStreak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failStreak
}

// InCooldown reports whether the gate is currently refusing requests.
func (g *TransportGate) InCooldown() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now().Before(g.cooldownUntil)
}
