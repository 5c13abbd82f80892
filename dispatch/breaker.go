package dispatch

import (
	"sync"
	"time"
)

// State is the circuit breaker position.
type State int

const (
	// StateClosed lets every attempt through.
	StateClosed State = iota
	// StateOpen rejects every attempt until the retry time passes.
	StateOpen
	// StateHalfOpen admits one probe at a time.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig tunes a [Breaker].
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

// DefaultBreakerConfig returns the thresholds used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

// BreakerSnapshot is a point-in-time view of a [Breaker] for inspection.
type BreakerSnapshot struct {
	State     State
	Failures  int
	Successes int
	RetryAt   time.Time
}

// Breaker is a three-state circuit breaker. The mutex guards in-memory state
// only; callers perform the protected call between Allow and Success/Failure.
type Breaker struct {
	mu        sync.Mutex
	cfg       BreakerConfig
	now       func() time.Time
	state     State
	failures  int
	successes int
	retryAt   time.Time
	probing   bool
}

// NewBreaker creates a CLOSED [Breaker]. Non-positive fields fall back to
// [DefaultBreakerConfig]. now may be nil.
func NewBreaker(cfg BreakerConfig, now func() time.Time) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{cfg: cfg, now: now}
}

// Allow reports whether an attempt may proceed. A nil return obliges the caller
// to report the outcome with Success or Failure.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Before(b.retryAt) {
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.successes = 0
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// Success records a successful attempt.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.probing = false
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

// Failure records a failed attempt.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case StateHalfOpen:
		b.failures++
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.retryAt = b.now().Add(b.cfg.OpenTimeout)
	b.successes = 0
	b.probing = false
}

// State returns the current position without side effects. An OPEN breaker
// whose retry time has passed still reports OPEN until the next Allow.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a copy of the breaker counters.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		State:     b.state,
		Failures:  b.failures,
		Successes: b.successes,
		RetryAt:   b.retryAt,
	}
}

// Reset returns the breaker to CLOSED with cleared counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.retryAt = time.Time{}
	b.probing = false
}
