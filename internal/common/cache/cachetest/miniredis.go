// Package cachetest starts a miniredis-backed cache.RedisCache for tests.
package cachetest

import (
	"testing"

	"codejudge/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// New returns a cache bound to a fresh in-process Redis that is torn down with t.
func New(t testing.TB) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c, mr
}
