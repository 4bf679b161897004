package repository

import (
	"context"
	"strconv"
	"time"

	"codejudge/internal/common/cache"
)

const (
	idempotencyKeyPrefix = "submit:idempotency:"
	// ProcessingMarker holds a reserved key until the submission id is known.
	ProcessingMarker      = "processing"
	defaultIdempotencyTTL = 10 * time.Minute
)

// IdempotencyStore maps a client's Idempotency-Key to the submission it produced.
type IdempotencyStore interface {
	// Reserve claims key for userID on problemID. When the key is taken, existing holds its current value.
	Reserve(ctx context.Context, userID, problemID int64, key string) (reserved bool, existing string, err error)
	Complete(ctx context.Context, userID, problemID int64, key, submissionID string) error
	Release(ctx context.Context, userID, problemID int64, key string) error
}

type RedisIdempotencyStore struct {
	cache cache.BasicOps
	ttl   time.Duration
}

func NewIdempotencyStore(cacheClient cache.BasicOps, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &RedisIdempotencyStore{cache: cacheClient, ttl: ttl}
}

func (s *RedisIdempotencyStore) Reserve(ctx context.Context, userID, problemID int64, key string) (bool, string, error) {
	cacheKey := idempotencyKey(userID, problemID, key)
	ok, err := s.cache.SetNX(ctx, cacheKey, ProcessingMarker, s.ttl)
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, "", nil
	}
	existing, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		return false, "", err
	}
	if existing == "" {
		// Expired between SetNX and Get; one more claim settles it.
		ok, err = s.cache.SetNX(ctx, cacheKey, ProcessingMarker, s.ttl)
		if err != nil {
			return false, "", err
		}
		if ok {
			return true, "", nil
		}
		existing = ProcessingMarker
	}
	return false, existing, nil
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, userID, problemID int64, key, submissionID string) error {
	return s.cache.Set(ctx, idempotencyKey(userID, problemID, key), submissionID, s.ttl)
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, userID, problemID int64, key string) error {
	return s.cache.Del(ctx, idempotencyKey(userID, problemID, key))
}

// Keys are scoped per user so clients cannot observe each other's submissions,
// and per problem so a reused key never replays another problem's verdict.
func idempotencyKey(userID, problemID int64, key string) string {
	return idempotencyKeyPrefix + strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(problemID, 10) + ":" + key
}
