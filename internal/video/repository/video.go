package repository

import (
	"context"
	"errors"
	"time"

	"codejudge/internal/common/db"
)

var ErrVideoNotFound = errors.New("video not found")

// Video is the metadata row for a problem's solution video. One video per problem.
type Video struct {
	ProblemID   int64     `json:"problemId"`
	ObjectKey   string    `json:"objectKey"`
	SizeBytes   int64     `json:"sizeBytes"`
	ContentType string    `json:"contentType"`
	UploadedBy  int64     `json:"uploadedBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type VideoRepository interface {
	Get(ctx context.Context, tx db.Transaction, problemID int64) (*Video, error)
	// GetForUpdate locks the row until tx ends.
	GetForUpdate(ctx context.Context, tx db.Transaction, problemID int64) (*Video, error)
	Upsert(ctx context.Context, tx db.Transaction, video *Video) error
	Delete(ctx context.Context, tx db.Transaction, problemID int64) error
	WithTx(ctx context.Context, fn func(tx db.Transaction) error) error
}

type MySQLVideoRepository struct {
	db db.Database
}

func NewVideoRepository(database db.Database) *MySQLVideoRepository {
	return &MySQLVideoRepository{db: database}
}

const videoColumns = "problem_id, object_key, size_bytes, content_type, uploaded_by, created_at, updated_at"

func (r *MySQLVideoRepository) Get(ctx context.Context, tx db.Transaction, problemID int64) (*Video, error) {
	return r.get(ctx, tx, "SELECT "+videoColumns+" FROM problem_videos WHERE problem_id = ? LIMIT 1", problemID)
}

func (r *MySQLVideoRepository) GetForUpdate(ctx context.Context, tx db.Transaction, problemID int64) (*Video, error) {
	return r.get(ctx, tx, "SELECT "+videoColumns+" FROM problem_videos WHERE problem_id = ? LIMIT 1 FOR UPDATE", problemID)
}

func (r *MySQLVideoRepository) get(ctx context.Context, tx db.Transaction, query string, problemID int64) (*Video, error) {
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, problemID)
	v := &Video{}
	if err := row.Scan(&v.ProblemID, &v.ObjectKey, &v.SizeBytes, &v.ContentType, &v.UploadedBy, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}
	return v, nil
}

func (r *MySQLVideoRepository) Upsert(ctx context.Context, tx db.Transaction, video *Video) error {
	if video == nil || video.ProblemID <= 0 || video.ObjectKey == "" {
		return errors.New("video problem id and object key are required")
	}
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, `
		INSERT INTO problem_videos (problem_id, object_key, size_bytes, content_type, uploaded_by)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE object_key = VALUES(object_key), size_bytes = VALUES(size_bytes),
			content_type = VALUES(content_type), uploaded_by = VALUES(uploaded_by)`,
		video.ProblemID, video.ObjectKey, video.SizeBytes, video.ContentType, video.UploadedBy,
	)
	return err
}

func (r *MySQLVideoRepository) Delete(ctx context.Context, tx db.Transaction, problemID int64) error {
	return db.ExecAffecting(ctx, db.GetQuerier(r.db, tx), ErrVideoNotFound,
		"DELETE FROM problem_videos WHERE problem_id = ?", problemID)
}

func (r *MySQLVideoRepository) WithTx(ctx context.Context, fn func(tx db.Transaction) error) error {
	return r.db.Transaction(ctx, fn)
}
