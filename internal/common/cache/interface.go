package cache

import (
	"context"
	"time"
)

// Cache defines the cache operations used by repositories and services.
type Cache interface {
	BasicOps
	HashOps
	SetOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get returns "" with a nil error when the key is missing.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair; a zero ttl means no expiry.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX sets the value only if the key does not exist.
	// Returns true if the key was set, false if it already existed
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns -1 for keys without expiry and -2 for missing keys.
	TTL(ctx context.Context, key string) (time.Duration, error)

	Incr(ctx context.Context, key string) (int64, error)
}

// HashOps defines hash (map) operations
type HashOps interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)
}

// SetOps defines set operations
type SetOps interface {
	// SAdd adds members to a set; existing members are left untouched.
	SAdd(ctx context.Context, key string, members ...interface{}) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key string, member interface{}) (bool, error)
}
