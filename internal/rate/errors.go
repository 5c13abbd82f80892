package rate

import "errors"

// ErrRateLimited means the identifier has no failed attempts left in the
// current cooldown window.
var ErrRateLimited = errors.New("login attempts exhausted")

// ErrRedisUnavailable wraps any failure reading or writing attempt counters.
// Callers fail closed on it.
var ErrRedisUnavailable = errors.New("attempt counter backend unavailable")
