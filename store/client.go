package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key does not exist or has expired.
	ErrNotFound = errors.New("store: key not found")
	// ErrUnavailable is returned when the backing store cannot be reached in time.
	ErrUnavailable = errors.New("store: backend unavailable")
)

// NoExpiry is reported by [Client.TTL] for keys that exist without an expiry.
const NoExpiry time.Duration = -1

// Client is the set of store operations the credential lifecycle relies on.
// Implementations must be safe for concurrent use and must rely only on
// single-key atomicity.
type Client interface {
	// Set writes value under key with the given time-to-live.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// GetWithTTL returns the value and its remaining lifetime in one round trip.
	GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error)
	// GetDel atomically reads and deletes key.
	GetDel(ctx context.Context, key string) ([]byte, error)
	// Delete removes keys and reports how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)
	// Expire sets the remaining lifetime of an existing key. It reports false
	// when the key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// TTL returns the remaining lifetime of key, NoExpiry, or ErrNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// SetAdd adds member to the set at key and raises the set's lifetime to at
	// least ttl. It never shortens an existing lifetime.
	SetAdd(ctx context.Context, key, member string, ttl time.Duration) error
	// SetMembers returns all members of the set at key (empty when missing).
	SetMembers(ctx context.Context, key string) ([]string, error)
	// Ping checks backend reachability.
	Ping(ctx context.Context) error
}
