package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateGate is a reservoir of size tokens. It never refills between ticks: at
// most size calls pass in any one interval, and the whole reservoir is restored
// when the interval elapses.
type RateGate struct {
	size     int
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	limiter *rate.Limiter
	window  time.Time
}

// NewRateGate creates a full [RateGate]. Non-positive arguments default to a
// reservoir of 1 per second; a nil now uses time.Now.
func NewRateGate(size int, interval time.Duration, now func() time.Time) *RateGate {
	if size <= 0 {
		size = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	if now == nil {
		now = time.Now
	}
	g := &RateGate{size: size, interval: interval, now: now}
	g.limiter = g.fullReservoir()
	g.window = now()
	return g
}

// fullReservoir holds size tokens and gains none over time.
func (g *RateGate) fullReservoir() *rate.Limiter {
	return rate.NewLimiter(0, g.size)
}

// tickLocked refills the reservoir once the current window has elapsed. The
// new window starts on the tick boundary, not at t.
func (g *RateGate) tickLocked(t time.Time) {
	elapsed := t.Sub(g.window)
	if elapsed < g.interval {
		return
	}
	g.window = g.window.Add(elapsed - elapsed%g.interval)
	g.limiter = g.fullReservoir()
}

// Allow takes one token if available and never blocks.
func (g *RateGate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	t := g.now()
	g.tickLocked(t)
	return g.limiter.AllowN(t, 1)
}

// Wait blocks until a token is available or ctx ends.
func (g *RateGate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		t := g.now()
		g.tickLocked(t)
		if g.limiter.AllowN(t, 1) {
			g.mu.Unlock()
			return nil
		}
		delay := g.window.Add(g.interval).Sub(t)
		g.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Tokens returns the tokens left in the current window.
func (g *RateGate) Tokens() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	t := g.now()
	g.tickLocked(t)
	return g.limiter.TokensAt(t)
}

// Size returns the reservoir capacity.
func (g *RateGate) Size() int {
	return g.size
}

// Reset refills the reservoir and starts a new window now.
func (g *RateGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limiter = g.fullReservoir()
	g.window = g.now()
}
