package ratelimit

import (
	"context"
	"fmt"
	"time"

	"codejudge/internal/common/cache"
	pkgerrors "codejudge/pkg/errors"
)

// Service enforces fixed-window limits using Redis counters.
type Service struct {
	cache        cache.BasicOps
	window       time.Duration
	redisTimeout time.Duration
}

func NewService(cacheClient cache.BasicOps, window time.Duration, redisTimeout time.Duration) *Service {
	if redisTimeout <= 0 {
		redisTimeout = 200 * time.Millisecond
	}
	return &Service{cache: cacheClient, window: window, redisTimeout: redisTimeout}
}

// Allow counts one hit on key and fails with TooManyRequests once max is exceeded in the window.
// A non-positive max disables the check.
func (s *Service) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if s.cache == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = s.window
	}

	ctxCache, cancel := context.WithTimeout(ctx, s.redisTimeout)
	defer cancel()

	acquired, err := s.cache.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
	}
	count := int64(1)
	if !acquired {
		count, err = s.cache.Incr(ctxCache, key)
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
		}
		// A key left without expiry would block the caller forever.
		if ttl, ttlErr := s.cache.TTL(ctxCache, key); ttlErr == nil && ttl < 0 {
			_ = s.cache.Expire(ctxCache, key, window)
		}
	}
	if int(count) > max {
		return pkgerrors.New(pkgerrors.TooManyRequests).WithMessage(fmt.Sprintf("rate limit exceeded for %s", key))
	}
	return nil
}
