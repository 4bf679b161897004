package repository

import (
	"context"
	"strconv"

	"codejudge/internal/common/cache"
)

const problemStatsKeyPrefix = "problem:stats:"

// ProblemStats counts judged submissions for one problem.
type ProblemStats struct {
	ProblemID  int64   `json:"problemId"`
	Submitted  int64   `json:"submitted"`
	Accepted   int64   `json:"accepted"`
	AcceptRate float64 `json:"acceptRate"`
}

type StatsRepository interface {
	Record(ctx context.Context, problemID int64, accepted bool) error
	Get(ctx context.Context, problemID int64) (ProblemStats, error)
	Reset(ctx context.Context, problemID int64) error
}

// RedisStatsRepository keeps counters in a hash per problem.
type RedisStatsRepository struct {
	cache interface {
		cache.HashOps
		cache.BasicOps
	}
}

func NewStatsRepository(c cache.Cache) *RedisStatsRepository {
	return &RedisStatsRepository{cache: c}
}

func (r *RedisStatsRepository) Record(ctx context.Context, problemID int64, accepted bool) error {
	key := problemStatsKey(problemID)
	if _, err := r.cache.HIncrBy(ctx, key, "submitted", 1); err != nil {
		return err
	}
	if accepted {
		if _, err := r.cache.HIncrBy(ctx, key, "accepted", 1); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisStatsRepository) Get(ctx context.Context, problemID int64) (ProblemStats, error) {
	fields, err := r.cache.HGetAll(ctx, problemStatsKey(problemID))
	if err != nil {
		return ProblemStats{}, err
	}
	stats := ProblemStats{ProblemID: problemID}
	stats.Submitted, _ = strconv.ParseInt(fields["submitted"], 10, 64)
	stats.Accepted, _ = strconv.ParseInt(fields["accepted"], 10, 64)
	if stats.Submitted > 0 {
		stats.AcceptRate = float64(stats.Accepted) / float64(stats.Submitted)
	}
	return stats, nil
}

func (r *RedisStatsRepository) Reset(ctx context.Context, problemID int64) error {
	return r.cache.Del(ctx, problemStatsKey(problemID))
}

func problemStatsKey(problemID int64) string {
	return problemStatsKeyPrefix + strconv.FormatInt(problemID, 10)
}
