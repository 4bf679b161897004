package repository

import (
	"context"
	"time"

	"codejudge/internal/common/cache"
)

const tokenRevokedKeyPrefix = "token:revoked:"

// TokenBlacklist remembers revoked token ids until the tokens would have expired anyway.
type TokenBlacklist interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type RedisTokenBlacklist struct {
	cache cache.BasicOps
}

func NewTokenBlacklist(cacheClient cache.BasicOps) *RedisTokenBlacklist {
	return &RedisTokenBlacklist{cache: cacheClient}
}

func (r *RedisTokenBlacklist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	_, err := r.cache.SetNX(ctx, tokenRevokedKeyPrefix+tokenID, "1", ttl)
	return err
}

func (r *RedisTokenBlacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	value, err := r.cache.Get(ctx, tokenRevokedKeyPrefix+tokenID)
	if err != nil {
		return false, err
	}
	return value != "", nil
}
