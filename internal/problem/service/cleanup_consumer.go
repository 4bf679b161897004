package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codejudge/internal/common/mq"
	"codejudge/internal/common/storage"
	"codejudge/internal/problem/model"
	"codejudge/internal/problem/repository"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultCleanupBatchSize     = 500
	defaultCleanupListTimeout   = 30 * time.Second
	defaultCleanupDeleteTimeout = 2 * time.Minute
)

// CleanupOptions configures ProblemCleanupConsumer. Bucket and KeyPrefix are used
// for events that carry no targets.
type CleanupOptions struct {
	Bucket        string
	KeyPrefix     string
	BatchSize     int
	ListTimeout   time.Duration
	DeleteTimeout time.Duration
}

func (o *CleanupOptions) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultCleanupBatchSize
	}
	if o.ListTimeout <= 0 {
		o.ListTimeout = defaultCleanupListTimeout
	}
	if o.DeleteTimeout <= 0 {
		o.DeleteTimeout = defaultCleanupDeleteTimeout
	}
}

// ProblemCleanupConsumer removes the stored objects of deleted problems.
type ProblemCleanupConsumer struct {
	mqClient mq.Consumer
	repo     repository.ProblemRepository
	storage  storage.ObjectStorage
	opts     CleanupOptions
}

func NewProblemCleanupConsumer(mqClient mq.Consumer, repo repository.ProblemRepository, obj storage.ObjectStorage, opts CleanupOptions) *ProblemCleanupConsumer {
	opts.applyDefaults()
	return &ProblemCleanupConsumer{mqClient: mqClient, repo: repo, storage: obj, opts: opts}
}

// Subscribe registers HandleMessage on topic; consumption starts with the queue.
func (c *ProblemCleanupConsumer) Subscribe(ctx context.Context, topic string, opts *mq.SubscribeOptions) error {
	if c.mqClient == nil {
		return errors.New("message queue is nil")
	}
	if topic == "" {
		topic = model.TopicProblemCleanup
	}
	return c.mqClient.SubscribeWithOptions(ctx, topic, c.HandleMessage, opts)
}

// HandleMessage drops malformed events and returns an error only when a retry can help.
func (c *ProblemCleanupConsumer) HandleMessage(ctx context.Context, message *mq.Message) error {
	var event model.ProblemDeletedEvent
	if err := json.Unmarshal(message.Body, &event); err != nil || event.ProblemID <= 0 {
		logger.Warn(ctx, "drop malformed problem deleted event", zap.String("message_id", message.ID), zap.Error(err))
		return nil
	}
	if c.storage == nil {
		return errors.New("object storage is nil")
	}

	// A live row means the delete was rolled back or the id was reused.
	if c.repo != nil {
		_, err := c.repo.GetByID(ctx, nil, event.ProblemID)
		switch {
		case err == nil:
			logger.Info(ctx, "problem still exists, skip cleanup", zap.Int64("problem_id", event.ProblemID))
			return nil
		case !errors.Is(err, repository.ErrProblemNotFound):
			return fmt.Errorf("check problem %d: %w", event.ProblemID, err)
		}
	}

	targets := event.Targets
	if len(targets) == 0 && c.opts.Bucket != "" {
		targets = []model.ObjectTarget{{Bucket: c.opts.Bucket, Prefix: model.VideoPrefix(c.opts.KeyPrefix, event.ProblemID)}}
	}
	for _, target := range targets {
		if target.Bucket == "" || target.Prefix == "" {
			continue
		}
		removed, err := c.removePrefix(ctx, target)
		if err != nil {
			return err
		}
		logger.Info(ctx, "problem objects removed",
			zap.Int64("problem_id", event.ProblemID),
			zap.String("bucket", target.Bucket),
			zap.String("prefix", target.Prefix),
			zap.Int("count", removed),
		)
	}
	return nil
}

func (c *ProblemCleanupConsumer) removePrefix(ctx context.Context, target model.ObjectTarget) (int, error) {
	listCtx, cancel := context.WithTimeout(ctx, c.opts.ListTimeout)
	defer cancel()

	removed := 0
	pending := make([]string, 0, c.opts.BatchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		delCtx, cancel := context.WithTimeout(ctx, c.opts.DeleteTimeout)
		defer cancel()
		if err := c.storage.RemoveObjects(delCtx, target.Bucket, pending); err != nil {
			return fmt.Errorf("remove objects under %s: %w", target.Prefix, err)
		}
		removed += len(pending)
		pending = pending[:0]
		return nil
	}

	for obj := range c.storage.ListObjects(listCtx, target.Bucket, target.Prefix) {
		if obj.Err != nil {
			return removed, obj.Err
		}
		pending = append(pending, obj.Key)
		if len(pending) == c.opts.BatchSize {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := listCtx.Err(); err != nil {
		return removed, fmt.Errorf("list objects under %s: %w", target.Prefix, err)
	}
	return removed, flush()
}
