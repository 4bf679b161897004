package service

import (
	"context"
	"encoding/json"
	"errors"

	"codejudge/internal/common/mq"
	"codejudge/internal/problem/repository"
	submissionmodel "codejudge/internal/submission/model"
	"codejudge/internal/submission/verdict"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// StatsConsumer folds submission.judged events into per-problem counters.
type StatsConsumer struct {
	mqClient mq.Consumer
	stats    repository.StatsRepository
}

func NewStatsConsumer(mqClient mq.Consumer, stats repository.StatsRepository) *StatsConsumer {
	return &StatsConsumer{mqClient: mqClient, stats: stats}
}

// Subscribe registers the handler on the judged topic.
func (c *StatsConsumer) Subscribe(ctx context.Context, opts *mq.SubscribeOptions) error {
	if c == nil || c.mqClient == nil {
		return errors.New("message queue is nil")
	}
	return c.mqClient.SubscribeWithOptions(ctx, submissionmodel.TopicSubmissionJudged, c.HandleMessage, opts)
}

// HandleMessage records one judged submission. Malformed events are dropped, store errors retried.
func (c *StatsConsumer) HandleMessage(ctx context.Context, message *mq.Message) error {
	var event submissionmodel.JudgedEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		logger.Warn(ctx, "parse judged event failed", zap.String("message_id", message.ID), zap.Error(err))
		return nil
	}
	if event.ProblemID <= 0 {
		logger.Warn(ctx, "judged event missing problem_id", zap.String("message_id", message.ID))
		return nil
	}
	if !verdict.Status(event.Status).Terminal() {
		return nil
	}
	return c.stats.Record(ctx, event.ProblemID, event.Status == string(verdict.StatusAccepted))
}
