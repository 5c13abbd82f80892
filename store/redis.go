package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultOperationTimeout bounds a single store round trip when none is configured.
const DefaultOperationTimeout = 250 * time.Millisecond

const setAddFloorScript = `
redis.call("SADD", KEYS[1], ARGV[1])
local want = tonumber(ARGV[2])
local current = redis.call("PTTL", KEYS[1])
if current < want then
  redis.call("PEXPIRE", KEYS[1], want)
end
return 1
`

var setAddFloorLua = redis.NewScript(setAddFloorScript)

// go-redis reports PTTL sentinels as raw nanosecond durations.
const (
	pttlMissing  time.Duration = -2
	pttlNoExpiry time.Duration = -1
)

// Redis implements [Client] over a go-redis client. Every call runs under its
// own deadline so a slow backend can never stall a request indefinitely.
type Redis struct {
	redis   redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewRedis creates a [Redis] client. prefix is prepended verbatim to every key
// (use "" for the bare layout); timeout <= 0 selects [DefaultOperationTimeout].
func NewRedis(client redis.UniversalClient, prefix string, timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	return &Redis{
		redis:   client,
		prefix:  prefix,
		timeout: timeout,
	}
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

func (r *Redis) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, r.timeout)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Set implements [Client].
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	if err := r.redis.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Get implements [Client].
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	data, err := r.redis.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return data, nil
}

// GetWithTTL implements [Client] with a single pipelined GET + PTTL.
func (r *Redis) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	k := r.key(key)
	pipe := r.redis.Pipeline()
	getCmd := pipe.Get(ctx, k)
	ttlCmd := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, unavailable(err)
	}

	data, err := getCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, unavailable(err)
	}

	ttl, err := ttlCmd.Result()
	if err != nil {
		return nil, 0, unavailable(err)
	}
	// The key can expire between GET and PTTL inside the pipeline.
	if ttl == pttlMissing {
		return nil, 0, ErrNotFound
	}
	if ttl == pttlNoExpiry {
		return data, NoExpiry, nil
	}
	return data, ttl, nil
}

// GetDel implements [Client].
func (r *Redis) GetDel(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	data, err := r.redis.GetDel(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return data, nil
}

// Delete implements [Client].
func (r *Redis) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}

	n, err := r.redis.Del(ctx, full...).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// Expire implements [Client].
func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	ok, err := r.redis.PExpire(ctx, r.key(key), ttl).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

// TTL implements [Client].
func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	ttl, err := r.redis.PTTL(ctx, r.key(key)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	switch {
	case ttl == pttlMissing:
		return 0, ErrNotFound
	case ttl == pttlNoExpiry:
		return NoExpiry, nil
	}
	return ttl, nil
}

// SetAdd implements [Client] with an atomic SADD + conditional PEXPIRE script.
func (r *Redis) SetAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	if err := setAddFloorLua.Run(ctx, r.redis, []string{r.key(key)}, member, ttl.Milliseconds()).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// SetMembers implements [Client].
func (r *Redis) SetMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	members, err := r.redis.SMembers(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, unavailable(err)
	}
	return members, nil
}

// Ping implements [Client].
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	if err := r.redis.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}
