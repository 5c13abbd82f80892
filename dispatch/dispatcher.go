package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

var (
	// ErrRateLimited is returned when the reservoir is empty.
	ErrRateLimited = errors.New("dispatch: rate limited")
	// ErrCircuitOpen is returned when the breaker rejects the attempt.
	ErrCircuitOpen = errors.New("dispatch: circuit open")
	// ErrTransport wraps failures reported by the [Transport].
	ErrTransport = errors.New("dispatch: transport failure")
)

// Transport is the outbound mail provider.
type Transport interface {
	Send(ctx context.Context, from, to, subject, html string) (string, error)
}

// TransportFunc adapts a function to [Transport].
type TransportFunc func(ctx context.Context, from, to, subject, html string) (string, error)

// Send implements [Transport].
func (f TransportFunc) Send(ctx context.Context, from, to, subject, html string) (string, error) {
	return f(ctx, from, to, subject, html)
}

// Message is one outbound notification.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Config tunes a [Dispatcher].
type Config struct {
	Breaker        BreakerConfig
	ReservoirSize  int
	RefillInterval time.Duration
	SendTimeout    time.Duration
}

// DefaultConfig returns conservative dispatch settings.
func DefaultConfig() Config {
	return Config{
		Breaker:        DefaultBreakerConfig(),
		ReservoirSize:  10,
		RefillInterval: time.Second,
		SendTimeout:    10 * time.Second,
	}
}

// Stats counts dispatch outcomes since construction or the last Reset.
type Stats struct {
	Sent        uint64
	RateLimited uint64
	CircuitOpen uint64
	Failed      uint64
}

// Snapshot is a point-in-time view of the dispatcher for inspection.
type Snapshot struct {
	Breaker BreakerSnapshot
	Tokens  float64
	Stats   Stats
}

// Dispatcher composes a [RateGate] and a [Breaker] around a [Transport].
type Dispatcher struct {
	transport Transport
	gate      *RateGate
	breaker   *Breaker
	timeout   time.Duration

	sent        atomic.Uint64
	rateLimited atomic.Uint64
	circuitOpen atomic.Uint64
	failed      atomic.Uint64
}

// Option customizes a [Dispatcher].
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock injects the clock used by the breaker and the rate gate.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates a [Dispatcher].
func New(transport Transport, cfg Config, opts ...Option) (*Dispatcher, error) {
	if transport == nil {
		return nil, errors.New("dispatch: nil transport")
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultConfig().SendTimeout
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	return &Dispatcher{
		transport: transport,
		gate:      NewRateGate(cfg.ReservoirSize, cfg.RefillInterval, o.now),
		breaker:   NewBreaker(cfg.Breaker, o.now),
		timeout:   cfg.SendTimeout,
	}, nil
}

// Send dispatches msg, rejecting immediately when the reservoir is empty.
func (d *Dispatcher) Send(ctx context.Context, msg Message) (string, error) {
	if !d.gate.Allow() {
		d.rateLimited.Add(1)
		return "", ErrRateLimited
	}
	return d.attempt(ctx, msg)
}

// SendWait dispatches msg, waiting for a reservoir token until ctx ends.
func (d *Dispatcher) SendWait(ctx context.Context, msg Message) (string, error) {
	if err := d.gate.Wait(ctx); err != nil {
		d.rateLimited.Add(1)
		return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return d.attempt(ctx, msg)
}

func (d *Dispatcher) attempt(ctx context.Context, msg Message) (string, error) {
	if err := d.breaker.Allow(); err != nil {
		d.circuitOpen.Add(1)
		return "", err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	id, err := d.transport.Send(sendCtx, msg.From, msg.To, msg.Subject, msg.HTML)
	if err != nil {
		d.breaker.Failure()
		d.failed.Add(1)
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}

	d.breaker.Success()
	d.sent.Add(1)
	return id, nil
}

// State returns the breaker position.
func (d *Dispatcher) State() State {
	return d.breaker.State()
}

// Snapshot returns breaker, reservoir and outcome counters.
func (d *Dispatcher) Snapshot() Snapshot {
	return Snapshot{
		Breaker: d.breaker.Snapshot(),
		Tokens:  d.gate.Tokens(),
		Stats: Stats{
			Sent:        d.sent.Load(),
			RateLimited: d.rateLimited.Load(),
			CircuitOpen: d.circuitOpen.Load(),
			Failed:      d.failed.Load(),
		},
	}
}

// Reset closes the breaker, refills the reservoir and clears counters.
func (d *Dispatcher) Reset() {
	d.breaker.Reset()
	d.gate.Reset()
	d.sent.Store(0)
	d.rateLimited.Store(0)
	d.circuitOpen.Store(0)
	d.failed.Store(0)
}
