package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config tunes the failed-login throttle.
type Config struct {
	// Prefix is prepended to every counter key.
	Prefix string
	// MaxLoginAttempts is the number of failures tolerated per window.
	MaxLoginAttempts int
	// LoginCooldownDuration is the window length, measured from the first failure.
	LoginCooldownDuration time.Duration
}

// bumpScript increments the counter and arms its expiry on the first hit of a
// window in one round trip.
var bumpScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Limiter counts failed logins per identifier in Redis.
type Limiter struct {
	rdb redis.UniversalClient
	cfg Config
}

// New returns a [Limiter] over rdb.
func New(rdb redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{rdb: rdb, cfg: cfg}
}

// CheckLogin fails with [ErrRateLimited] when identifier has no attempts left.
func (l *Limiter) CheckLogin(ctx context.Context, identifier string) error {
	n, err := l.Attempts(ctx, identifier)
	if err != nil {
		return err
	}
	if n >= l.cfg.MaxLoginAttempts {
		return ErrRateLimited
	}
	return nil
}

// IncrementLogin records one failure. The failure that overflows the budget
// returns [ErrRateLimited].
func (l *Limiter) IncrementLogin(ctx context.Context, identifier string) error {
	window := l.cfg.LoginCooldownDuration.Milliseconds()
	if window <= 0 {
		window = 1
	}
	n, err := bumpScript.Run(ctx, l.rdb, []string{l.key(identifier)}, window).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n > int64(l.cfg.MaxLoginAttempts) {
		return ErrRateLimited
	}
	return nil
}

// ResetLogin forgets the failures recorded for identifier.
func (l *Limiter) ResetLogin(ctx context.Context, identifier string) error {
	if err := l.rdb.Del(ctx, l.key(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the failures counted in the current window. An unknown
// identifier reads as zero.
func (l *Limiter) Attempts(ctx context.Context, identifier string) (int, error) {
	n, err := l.rdb.Get(ctx, l.key(identifier)).Int()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	case n < 0:
		return 0, nil
	}
	return n, nil
}

func (l *Limiter) key(identifier string) string {
	return l.cfg.Prefix + "al:" + identifier
}
