package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codejudge/internal/common/db"
	"codejudge/internal/common/storage"
	"codejudge/internal/problem/model"
	problemRepo "codejudge/internal/problem/repository"
	"codejudge/internal/video/repository"
	pkgerrors "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaxVideoBytes = 512 * 1024 * 1024
	defaultUploadTTL     = 15 * time.Minute
	defaultPlaybackTTL   = time.Hour
)

var videoExtensions = map[string]string{
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
}

// ProblemReader confirms a problem exists before a video is attached to it.
type ProblemReader interface {
	GetProblem(ctx context.Context, problemID int64) (*problemRepo.Problem, error)
}

type Options struct {
	Bucket      string
	KeyPrefix   string
	MaxBytes    int64
	UploadTTL   time.Duration
	PlaybackTTL time.Duration
}

// VideoService manages solution videos stored in object storage.
// Clients upload and play back through presigned URLs; the service never proxies bytes.
type VideoService struct {
	repo     repository.VideoRepository
	problems ProblemReader
	storage  storage.ObjectStorage

	bucket      string
	keyPrefix   string
	maxBytes    int64
	uploadTTL   time.Duration
	playbackTTL time.Duration
}

func NewVideoService(repo repository.VideoRepository, problems ProblemReader, obj storage.ObjectStorage, opts Options) *VideoService {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "videos"
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxVideoBytes
	}
	if opts.UploadTTL <= 0 {
		opts.UploadTTL = defaultUploadTTL
	}
	if opts.PlaybackTTL <= 0 {
		opts.PlaybackTTL = defaultPlaybackTTL
	}
	return &VideoService{
		repo:        repo,
		problems:    problems,
		storage:     obj,
		bucket:      opts.Bucket,
		keyPrefix:   opts.KeyPrefix,
		maxBytes:    opts.MaxBytes,
		uploadTTL:   opts.UploadTTL,
		playbackTTL: opts.PlaybackTTL,
	}
}

type UploadTicket struct {
	UploadURL string    `json:"uploadUrl"`
	ObjectKey string    `json:"objectKey"`
	MaxBytes  int64     `json:"maxBytes"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Playback struct {
	URL         string    `json:"url"`
	SizeBytes   int64     `json:"sizeBytes"`
	ContentType string    `json:"contentType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// RequestUpload returns a presigned PUT URL for a new video object.
func (s *VideoService) RequestUpload(ctx context.Context, problemID int64, contentType string) (UploadTicket, error) {
	if problemID <= 0 {
		return UploadTicket{}, pkgerrors.ValidationError("problem_id", "required")
	}
	ext, ok := videoExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return UploadTicket{}, pkgerrors.ValidationError("content_type", "unsupported")
	}
	if err := s.ready(); err != nil {
		return UploadTicket{}, err
	}
	if _, err := s.problems.GetProblem(ctx, problemID); err != nil {
		return UploadTicket{}, err
	}

	objectKey := model.VideoPrefix(s.keyPrefix, problemID) + uuid.NewString() + ext
	url, err := s.storage.PresignPut(ctx, s.bucket, objectKey, s.uploadTTL)
	if err != nil {
		return UploadTicket{}, pkgerrors.Wrapf(err, pkgerrors.StorageError, "presign upload failed")
	}
	return UploadTicket{
		UploadURL: url,
		ObjectKey: objectKey,
		MaxBytes:  s.maxBytes,
		ExpiresAt: time.Now().Add(s.uploadTTL),
	}, nil
}

// ConfirmUpload records an uploaded object as the problem's video and drops the one it replaces.
func (s *VideoService) ConfirmUpload(ctx context.Context, problemID, userID int64, objectKey string) (*repository.Video, error) {
	if problemID <= 0 {
		return nil, pkgerrors.ValidationError("problem_id", "required")
	}
	if !strings.HasPrefix(objectKey, model.VideoPrefix(s.keyPrefix, problemID)) {
		return nil, pkgerrors.ValidationError("object_key", "invalid")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	stat, err := s.storage.StatObject(ctx, s.bucket, objectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, pkgerrors.New(pkgerrors.VideoUploadFailed).WithMessage("video object was not uploaded")
		}
		return nil, pkgerrors.Wrapf(err, pkgerrors.StorageError, "stat video failed")
	}
	if stat.SizeBytes > s.maxBytes {
		s.removeObject(ctx, objectKey)
		return nil, pkgerrors.New(pkgerrors.VideoTooLarge).
			WithDetail("sizeBytes", stat.SizeBytes).
			WithDetail("maxBytes", s.maxBytes)
	}
	if stat.SizeBytes == 0 {
		return nil, pkgerrors.New(pkgerrors.VideoUploadFailed).WithMessage("video object is empty")
	}

	video := &repository.Video{
		ProblemID:   problemID,
		ObjectKey:   objectKey,
		SizeBytes:   stat.SizeBytes,
		ContentType: stat.ContentType,
		UploadedBy:  userID,
	}
	var replaced string
	err = s.repo.WithTx(ctx, func(tx db.Transaction) error {
		prev, err := s.repo.GetForUpdate(ctx, tx, problemID)
		if err != nil && !errors.Is(err, repository.ErrVideoNotFound) {
			return err
		}
		if prev != nil && prev.ObjectKey != objectKey {
			replaced = prev.ObjectKey
		}
		return s.repo.Upsert(ctx, tx, video)
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "save video failed")
	}
	if replaced != "" {
		s.removeObject(ctx, replaced)
	}
	logger.Info(ctx, "solution video saved",
		zap.Int64("problem_id", problemID),
		zap.String("object_key", objectKey),
		zap.Int64("size_bytes", stat.SizeBytes),
	)
	return video, nil
}

// Playback returns a presigned GET URL for the problem's video.
func (s *VideoService) Playback(ctx context.Context, problemID int64) (Playback, error) {
	if err := s.ready(); err != nil {
		return Playback{}, err
	}
	video, err := s.get(ctx, problemID)
	if err != nil {
		return Playback{}, err
	}
	url, err := s.storage.PresignGet(ctx, s.bucket, video.ObjectKey, s.playbackTTL)
	if err != nil {
		return Playback{}, pkgerrors.Wrapf(err, pkgerrors.StorageError, "presign playback failed")
	}
	return Playback{
		URL:         url,
		SizeBytes:   video.SizeBytes,
		ContentType: video.ContentType,
		ExpiresAt:   time.Now().Add(s.playbackTTL),
	}, nil
}

// Delete removes the metadata row, then the object.
func (s *VideoService) Delete(ctx context.Context, problemID int64) error {
	video, err := s.get(ctx, problemID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, nil, problemID); err != nil {
		if errors.Is(err, repository.ErrVideoNotFound) {
			return pkgerrors.New(pkgerrors.VideoNotFound)
		}
		return pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "delete video failed")
	}
	s.removeObject(ctx, video.ObjectKey)
	return nil
}

func (s *VideoService) get(ctx context.Context, problemID int64) (*repository.Video, error) {
	if problemID <= 0 {
		return nil, pkgerrors.ValidationError("problem_id", "required")
	}
	video, err := s.repo.Get(ctx, nil, problemID)
	if err != nil {
		if errors.Is(err, repository.ErrVideoNotFound) {
			return nil, pkgerrors.New(pkgerrors.VideoNotFound)
		}
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "get video failed")
	}
	return video, nil
}

func (s *VideoService) ready() error {
	if s.storage == nil || s.bucket == "" {
		return pkgerrors.Wrap(fmt.Errorf("video storage is not configured"), pkgerrors.ServiceUnavailable)
	}
	return nil
}

func (s *VideoService) removeObject(ctx context.Context, objectKey string) {
	if err := s.storage.RemoveObject(ctx, s.bucket, objectKey); err != nil {
		logger.Warn(ctx, "remove video object failed", zap.String("object_key", objectKey), zap.Error(err))
	}
}
