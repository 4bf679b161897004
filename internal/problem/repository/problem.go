package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"

	"golang.org/x/sync/singleflight"
)

const (
	defaultProblemTTL      = 30 * time.Minute
	defaultProblemEmptyTTL = 5 * time.Minute
	problemKeyPrefix       = "problem:detail:"
)

var (
	ErrProblemNotFound = errors.New("problem not found")
)

type ProblemRepository interface {
	Create(ctx context.Context, tx db.Transaction, problem *Problem) (int64, error)
	Update(ctx context.Context, tx db.Transaction, problem *Problem) error
	Delete(ctx context.Context, tx db.Transaction, problemID int64) error
	GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*Problem, error)
	List(ctx context.Context, filter ListFilter) ([]ProblemSummary, int64, error)
}

type MySQLProblemRepository struct {
	db       db.Database
	cache    cache.BasicOps
	ttl      time.Duration
	emptyTTL time.Duration
	group    singleflight.Group
}

func NewProblemRepository(database db.Database, cacheClient cache.BasicOps) *MySQLProblemRepository {
	return NewProblemRepositoryWithTTL(database, cacheClient, defaultProblemTTL, defaultProblemEmptyTTL)
}

func NewProblemRepositoryWithTTL(database db.Database, cacheClient cache.BasicOps, ttl, emptyTTL time.Duration) *MySQLProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemEmptyTTL
	}
	return &MySQLProblemRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

// GetByID reads through the cache when no transaction is given.
// Concurrent misses for the same id share one database read.
func (r *MySQLProblemRepository) GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*Problem, error) {
	if r.cache == nil || tx != nil {
		return r.getFromDB(ctx, tx, problemID)
	}

	problem, err := cache.GetWithCached[*Problem](
		ctx,
		r.cache,
		problemKey(problemID),
		r.ttl,
		r.emptyTTL,
		func(p *Problem) bool { return p == nil },
		marshalProblem,
		unmarshalProblem,
		func(ctx context.Context) (*Problem, error) {
			v, err, _ := r.group.Do(problemKey(problemID), func() (interface{}, error) {
				p, err := r.getFromDB(ctx, nil, problemID)
				if errors.Is(err, ErrProblemNotFound) {
					return (*Problem)(nil), nil
				}
				return p, err
			})
			if err != nil {
				return nil, err
			}
			return v.(*Problem), nil
		},
	)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, ErrProblemNotFound
	}
	return problem, nil
}

func (r *MySQLProblemRepository) Create(ctx context.Context, tx db.Transaction, problem *Problem) (int64, error) {
	if problem == nil {
		return 0, errors.New("problem is nil")
	}
	cols, err := encodeProblemColumns(problem)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO problems
			(title, description, difficulty, tags, visible_test_cases, hidden_test_cases,
			 start_code, reference_solutions, creator_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		problem.Title, problem.Description, problem.Difficulty,
		cols.tags, cols.visible, cols.hidden, cols.startCode, cols.references,
		problem.CreatorID,
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	problem.ID = id
	// Drop a cached miss recorded before the row existed.
	r.invalidate(ctx, id)
	return id, nil
}

func (r *MySQLProblemRepository) Update(ctx context.Context, tx db.Transaction, problem *Problem) error {
	if problem == nil || problem.ID <= 0 {
		return errors.New("problem id is required")
	}
	cols, err := encodeProblemColumns(problem)
	if err != nil {
		return err
	}

	query := `
		UPDATE problems
		SET title = ?, description = ?, difficulty = ?, tags = ?, visible_test_cases = ?,
		    hidden_test_cases = ?, start_code = ?, reference_solutions = ?
		WHERE id = ?`
	return cache.DeleteCached(ctx, r.cacheOrNoop(), problemKey(problem.ID), func(ctx context.Context) error {
		return db.ExecAffecting(ctx, db.GetQuerier(r.db, tx), ErrProblemNotFound, query,
			problem.Title, problem.Description, problem.Difficulty,
			cols.tags, cols.visible, cols.hidden, cols.startCode, cols.references,
			problem.ID,
		)
	})
}

func (r *MySQLProblemRepository) Delete(ctx context.Context, tx db.Transaction, problemID int64) error {
	query := "DELETE FROM problems WHERE id = ?"
	return cache.DeleteCached(ctx, r.cacheOrNoop(), problemKey(problemID), func(ctx context.Context) error {
		return db.ExecAffecting(ctx, db.GetQuerier(r.db, tx), ErrProblemNotFound, query, problemID)
	})
}

func (r *MySQLProblemRepository) List(ctx context.Context, filter ListFilter) ([]ProblemSummary, int64, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Difficulty != "" {
		where = append(where, "difficulty = ?")
		args = append(args, filter.Difficulty)
	}
	if filter.Tag != "" {
		where = append(where, "JSON_CONTAINS(tags, JSON_QUOTE(?))")
		args = append(args, filter.Tag)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM problems"+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []ProblemSummary{}, 0, nil
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT id, title, difficulty, tags FROM problems" + clause + " ORDER BY id ASC LIMIT ? OFFSET ?"
	rows, err := r.db.Query(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]ProblemSummary, 0, limit)
	for rows.Next() {
		var (
			item ProblemSummary
			tags []byte
		)
		if err := rows.Scan(&item.ID, &item.Title, &item.Difficulty, &tags); err != nil {
			return nil, 0, err
		}
		if err := decodeJSON(tags, &item.Tags); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *MySQLProblemRepository) getFromDB(ctx context.Context, tx db.Transaction, problemID int64) (*Problem, error) {
	query := `
		SELECT id, title, description, difficulty, tags, visible_test_cases, hidden_test_cases,
		       start_code, reference_solutions, creator_id, created_at, updated_at
		FROM problems
		WHERE id = ?`
	problem, err := scanProblem(db.GetQuerier(r.db, tx).QueryRow(ctx, query, problemID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}
	return problem, nil
}

func (r *MySQLProblemRepository) invalidate(ctx context.Context, problemID int64) {
	if r.cache != nil {
		_ = r.cache.Del(ctx, problemKey(problemID))
	}
}

func (r *MySQLProblemRepository) cacheOrNoop() cache.BasicOps {
	if r.cache == nil {
		return noopCache{}
	}
	return r.cache
}

type problemColumns struct {
	tags, visible, hidden, startCode, references []byte
}

func encodeProblemColumns(p *Problem) (problemColumns, error) {
	var cols problemColumns
	var err error
	if cols.tags, err = encodeJSON(p.Tags); err != nil {
		return cols, err
	}
	if cols.visible, err = encodeJSON(p.VisibleTestCases); err != nil {
		return cols, err
	}
	if cols.hidden, err = encodeJSON(p.HiddenTestCases); err != nil {
		return cols, err
	}
	if cols.startCode, err = encodeJSON(p.StartCode); err != nil {
		return cols, err
	}
	if cols.references, err = encodeJSON(p.ReferenceSolutions); err != nil {
		return cols, err
	}
	return cols, nil
}

func scanProblem(scanner db.Scanner) (*Problem, error) {
	var (
		p                                            Problem
		tags, visible, hidden, startCode, references []byte
	)
	err := scanner.Scan(
		&p.ID, &p.Title, &p.Description, &p.Difficulty,
		&tags, &visible, &hidden, &startCode, &references,
		&p.CreatorID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	for _, col := range []struct {
		raw []byte
		dst interface{}
	}{
		{tags, &p.Tags},
		{visible, &p.VisibleTestCases},
		{hidden, &p.HiddenTestCases},
		{startCode, &p.StartCode},
		{references, &p.ReferenceSolutions},
	} {
		if err := decodeJSON(col.raw, col.dst); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// encodeJSON stores nil slices as [] so columns never hold JSON null.
func encodeJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	if string(data) == "null" {
		return []byte("[]"), nil
	}
	return data, nil
}

func decodeJSON(raw []byte, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}

func problemKey(problemID int64) string {
	return problemKeyPrefix + strconv.FormatInt(problemID, 10)
}

func marshalProblem(p *Problem) string {
	payload, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(payload)
}

func unmarshalProblem(data string) (*Problem, error) {
	var p Problem
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (string, error) { return "", nil }
func (noopCache) Set(context.Context, string, interface{}, time.Duration) error {
	return nil
}
func (noopCache) SetNX(context.Context, string, interface{}, time.Duration) (bool, error) {
	return true, nil
}
func (noopCache) Del(context.Context, ...string) error                  { return nil }
func (noopCache) Expire(context.Context, string, time.Duration) error   { return nil }
func (noopCache) TTL(context.Context, string) (time.Duration, error)    { return -2, nil }
func (noopCache) Incr(context.Context, string) (int64, error)           { return 0, nil }
