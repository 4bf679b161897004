package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	"codejudge/internal/submission/verdict"
)

const (
	defaultSubmissionCacheTTL      = 30 * time.Minute
	defaultSubmissionCacheEmptyTTL = time.Minute
	submissionCacheKeyPrefix       = "submission:"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrAlreadyFinalized is returned when a verdict is written to a row that has left pending.
	ErrAlreadyFinalized = errors.New("submission already finalized")
)

// Submission is one graded attempt against a problem's hidden cases.
type Submission struct {
	ID           string         `json:"id"`
	UserID       int64          `json:"userId"`
	ProblemID    int64          `json:"problemId"`
	Language     string         `json:"language"`
	Code         string         `json:"code"`
	Status       verdict.Status `json:"status"`
	CasesPassed  int            `json:"casesPassed"`
	CasesTotal   int            `json:"casesTotal"`
	Runtime      float64        `json:"runtime"`
	Memory       int64          `json:"memory"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	SourceKey    string         `json:"sourceKey,omitempty"`
	SourceHash   string         `json:"sourceHash,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	JudgedAt     *time.Time     `json:"judgedAt,omitempty"`
}

// SubmissionSummary is a history entry without source code.
type SubmissionSummary struct {
	ID          string         `json:"id"`
	Language    string         `json:"language"`
	Status      verdict.Status `json:"status"`
	CasesPassed int            `json:"casesPassed"`
	CasesTotal  int            `json:"casesTotal"`
	Runtime     float64        `json:"runtime"`
	Memory      int64          `json:"memory"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// SubmissionRepository defines submission persistence interfaces.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, submission *Submission) error
	// Finalize writes a terminal verdict. Only pending rows are updated.
	Finalize(ctx context.Context, tx db.Transaction, submissionID string, v verdict.Verdict) error
	GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error)
	ListByUserProblem(ctx context.Context, userID, problemID int64, limit int) ([]SubmissionSummary, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
// Reads of finalized rows are served through the cache; pending rows always hit MySQL.
type MySQLSubmissionRepository struct {
	db       db.Database
	cache    cache.BasicOps
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewSubmissionRepository(database db.Database, cacheClient cache.BasicOps) *MySQLSubmissionRepository {
	return NewSubmissionRepositoryWithTTL(database, cacheClient, defaultSubmissionCacheTTL, defaultSubmissionCacheEmptyTTL)
}

func NewSubmissionRepositoryWithTTL(database db.Database, cacheClient cache.BasicOps, ttl, emptyTTL time.Duration) *MySQLSubmissionRepository {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultSubmissionCacheEmptyTTL
	}
	return &MySQLSubmissionRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

const submissionColumns = "id, user_id, problem_id, language, code, status, cases_passed, cases_total, runtime, memory, error_message, source_key, source_hash, created_at, judged_at"

// Create inserts a submission in the pending state.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ID == "" {
		return errors.New("submission id is required")
	}
	if submission.UserID <= 0 || submission.ProblemID <= 0 {
		return errors.New("user and problem are required")
	}

	query := `
		INSERT INTO submissions
		(id, user_id, problem_id, language, code, status, cases_passed, cases_total, source_key, source_hash)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
	`
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		submission.ID,
		submission.UserID,
		submission.ProblemID,
		submission.Language,
		submission.Code,
		verdict.StatusPending,
		submission.CasesTotal,
		submission.SourceKey,
		submission.SourceHash,
	)
	if err != nil {
		return err
	}
	submission.Status = verdict.StatusPending
	return nil
}

func (r *MySQLSubmissionRepository) Finalize(ctx context.Context, tx db.Transaction, submissionID string, v verdict.Verdict) error {
	if !v.Status.Terminal() {
		return errors.New("verdict status is not terminal")
	}
	query := `
		UPDATE submissions
		SET status = ?, cases_passed = ?, runtime = ?, memory = ?, error_message = ?, judged_at = ?
		WHERE id = ? AND status = ?
	`
	err := db.ExecAffecting(ctx, db.GetQuerier(r.db, tx), ErrAlreadyFinalized, query,
		v.Status, v.Passed, v.Runtime, v.Memory, nullString(v.ErrorMessage), time.Now().UTC(),
		submissionID, verdict.StatusPending,
	)
	if err != nil {
		return err
	}
	if r.cache != nil {
		_ = r.cache.Del(ctx, submissionCacheKey(submissionID))
	}
	return nil
}

func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}
	if r.cache == nil || tx != nil {
		return r.getByIDFromDB(ctx, tx, submissionID)
	}

	key := submissionCacheKey(submissionID)
	if cached, err := r.cache.Get(ctx, key); err == nil && cached != "" {
		if cached == cache.NullCacheValue {
			return nil, ErrSubmissionNotFound
		}
		if submission, err := unmarshalSubmission(cached); err == nil && submission != nil {
			return submission, nil
		}
	}

	submission, err := r.getByIDFromDB(ctx, nil, submissionID)
	if errors.Is(err, ErrSubmissionNotFound) {
		_ = r.cache.Set(ctx, key, cache.NullCacheValue, r.emptyTTL)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if submission.Status.Terminal() {
		if payload := marshalSubmission(submission); payload != "" {
			_ = r.cache.Set(ctx, key, payload, cache.JitterTTL(r.ttl))
		}
	}
	return submission, nil
}

func (r *MySQLSubmissionRepository) getByIDFromDB(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, submissionID)

	s := &Submission{}
	var (
		errorMessage, sourceKey, sourceHash sql.NullString
		judgedAt                            sql.NullTime
	)
	if err := row.Scan(
		&s.ID, &s.UserID, &s.ProblemID, &s.Language, &s.Code, &s.Status,
		&s.CasesPassed, &s.CasesTotal, &s.Runtime, &s.Memory,
		&errorMessage, &sourceKey, &sourceHash, &s.CreatedAt, &judgedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	s.ErrorMessage = errorMessage.String
	s.SourceKey = sourceKey.String
	s.SourceHash = sourceHash.String
	if judgedAt.Valid {
		t := judgedAt.Time
		s.JudgedAt = &t
	}
	return s, nil
}

// ListByUserProblem returns the newest submissions first.
func (r *MySQLSubmissionRepository) ListByUserProblem(ctx context.Context, userID, problemID int64, limit int) ([]SubmissionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, language, status, cases_passed, cases_total, runtime, memory, created_at
		FROM submissions
		WHERE user_id = ? AND problem_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := r.db.Query(ctx, query, userID, problemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]SubmissionSummary, 0)
	for rows.Next() {
		var item SubmissionSummary
		if err := rows.Scan(&item.ID, &item.Language, &item.Status, &item.CasesPassed, &item.CasesTotal,
			&item.Runtime, &item.Memory, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func submissionCacheKey(submissionID string) string {
	return submissionCacheKeyPrefix + submissionID
}

func marshalSubmission(submission *Submission) string {
	if submission == nil {
		return ""
	}
	data, err := json.Marshal(submission)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalSubmission(data string) (*Submission, error) {
	var submission Submission
	if err := json.Unmarshal([]byte(data), &submission); err != nil {
		return nil, err
	}
	return &submission, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
