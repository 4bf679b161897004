package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c, mr
}

type item struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func fetchWith(calls *int, result *item, err error) func(context.Context) (*item, error) {
	return func(context.Context) (*item, error) {
		*calls++
		return result, err
	}
}

func getItem(ctx context.Context, c Cache, key string, fn func(context.Context) (*item, error)) (*item, error) {
	return GetWithCached(ctx, c, key, time.Minute, 10*time.Second,
		func(v *item) bool { return v == nil },
		func(v *item) string {
			data, _ := json.Marshal(v)
			return string(data)
		},
		func(s string) (*item, error) {
			var v item
			if err := json.Unmarshal([]byte(s), &v); err != nil {
				return nil, err
			}
			return &v, nil
		},
		fn,
	)
}

func TestGetWithCachedHitsCacheSecondTime(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	calls := 0
	fn := fetchWith(&calls, &item{ID: 7, Name: "two-sum"}, nil)

	for i := 0; i < 2; i++ {
		got, err := getItem(ctx, c, "item:7", fn)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got == nil || got.Name != "two-sum" {
			t.Fatalf("unexpected item: %+v", got)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one fetch, got %d", calls)
	}
}

func TestGetWithCachedCachesMisses(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	calls := 0
	fn := fetchWith(&calls, nil, nil)

	for i := 0; i < 3; i++ {
		got, err := getItem(ctx, c, "item:404", fn)
		if err != nil || got != nil {
			t.Fatalf("expected nil result, got %+v err=%v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one fetch, got %d", calls)
	}
	if v, _ := mr.Get("item:404"); v != NullCacheValue {
		t.Fatalf("expected null marker, got %q", v)
	}
}

func TestGetWithCachedDoesNotCacheErrors(t *testing.T) {
	c, mr := newTestCache(t)
	calls := 0
	fn := fetchWith(&calls, nil, errors.New("db down"))

	if _, err := getItem(context.Background(), c, "item:1", fn); err == nil {
		t.Fatalf("expected error")
	}
	if mr.Exists("item:1") {
		t.Fatalf("error result must not be cached")
	}
}

func TestSetOpsAreIdempotent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := c.SAdd(ctx, "user:solved:1", int64(42)); err != nil {
			t.Fatalf("sadd: %v", err)
		}
	}
	members, err := c.SMembers(ctx, "user:solved:1")
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 1 || members[0] != "42" {
		t.Fatalf("unexpected members: %v", members)
	}
	ok, err := c.SIsMember(ctx, "user:solved:1", 42)
	if err != nil || !ok {
		t.Fatalf("expected member, ok=%v err=%v", ok, err)
	}
}

func TestGetMissingKeyReturnsEmpty(t *testing.T) {
	c, _ := newTestCache(t)
	v, err := c.Get(context.Background(), "missing")
	if err != nil || v != "" {
		t.Fatalf("expected empty value, got %q err=%v", v, err)
	}
}

func TestJitterTTL(t *testing.T) {
	ttl := 100 * time.Second
	for i := 0; i < 20; i++ {
		got := JitterTTL(ttl)
		if got > ttl || got < 90*time.Second {
			t.Fatalf("jitter out of range: %v", got)
		}
	}
	if JitterTTL(0) != 0 {
		t.Fatalf("zero ttl must stay zero")
	}
}
