package repository

import (
	"context"
	"sort"
	"strconv"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
)

const (
	solvedKeyPrefix = "user:solved:"
	// solvedLoadedMarker marks a cached set as loaded from MySQL; sets without it are partial.
	solvedLoadedMarker = "0"
	defaultSolvedTTL   = 24 * time.Hour
)

// SolvedRepository tracks which problems a user has solved.
type SolvedRepository interface {
	// Add records problemID as solved. It reports whether the pair was new.
	Add(ctx context.Context, userID, problemID int64) (bool, error)
	List(ctx context.Context, userID int64) ([]int64, error)
}

// MySQLSolvedRepository stores the solved set in user_solved_problems and caches it as a Redis set.
type MySQLSolvedRepository struct {
	db    db.Database
	cache solvedCache
	ttl   time.Duration
}

type solvedCache interface {
	cache.BasicOps
	cache.SetOps
}

func NewSolvedRepository(database db.Database, cacheClient cache.Cache) *MySQLSolvedRepository {
	r := &MySQLSolvedRepository{db: database, ttl: defaultSolvedTTL}
	if cacheClient != nil {
		r.cache = cacheClient
	}
	return r
}

// Add records the solve in MySQL and unions it into the cached set. The cached set only
// counts as complete once List has stored the loaded marker in it, so a union written
// while List is reading MySQL is merged into the set List stores, never lost.
func (r *MySQLSolvedRepository) Add(ctx context.Context, userID, problemID int64) (bool, error) {
	query := "INSERT IGNORE INTO user_solved_problems (user_id, problem_id) VALUES (?, ?)"
	result, err := r.db.Exec(ctx, query, userID, problemID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 && r.cache != nil {
		key := solvedKey(userID)
		if err := r.cache.SAdd(ctx, key, strconv.FormatInt(problemID, 10)); err != nil {
			_ = r.cache.Del(ctx, key)
		} else {
			_ = r.cache.Expire(ctx, key, cache.JitterTTL(r.ttl))
		}
	}
	return affected > 0, nil
}

func (r *MySQLSolvedRepository) List(ctx context.Context, userID int64) ([]int64, error) {
	key := solvedKey(userID)
	if r.cache != nil {
		if members, err := r.cache.SMembers(ctx, key); err == nil && hasLoadedMarker(members) {
			return parseSolvedMembers(members), nil
		}
	}

	rows, err := r.db.Query(ctx, "SELECT problem_id FROM user_solved_problems WHERE user_id = ? ORDER BY problem_id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if r.cache == nil {
		return ids, nil
	}
	members := make([]interface{}, 0, len(ids)+1)
	members = append(members, solvedLoadedMarker)
	for _, id := range ids {
		members = append(members, strconv.FormatInt(id, 10))
	}
	if err := r.cache.SAdd(ctx, key, members...); err != nil {
		return ids, nil
	}
	_ = r.cache.Expire(ctx, key, cache.JitterTTL(r.ttl))
	// Solves unioned in while MySQL was being read are part of the answer too.
	if merged, err := r.cache.SMembers(ctx, key); err == nil && hasLoadedMarker(merged) {
		return parseSolvedMembers(merged), nil
	}
	return ids, nil
}

func hasLoadedMarker(members []string) bool {
	for _, m := range members {
		if m == solvedLoadedMarker {
			return true
		}
	}
	return false
}

func parseSolvedMembers(members []string) []int64 {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if m == solvedLoadedMarker {
			continue
		}
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func solvedKey(userID int64) string {
	return solvedKeyPrefix + strconv.FormatInt(userID, 10)
}
