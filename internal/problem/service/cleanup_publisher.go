package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codejudge/internal/common/mq"
	"codejudge/internal/problem/model"
)

// ProblemCleanupPublisher announces deleted problems so their stored objects can be removed.
type ProblemCleanupPublisher struct {
	queue       mq.Producer
	topic       string
	videoBucket string
	videoRoot   string
}

func NewProblemCleanupPublisher(queue mq.Producer, topic, videoBucket, videoRoot string) *ProblemCleanupPublisher {
	if topic == "" {
		topic = model.TopicProblemCleanup
	}
	return &ProblemCleanupPublisher{
		queue:       queue,
		topic:       topic,
		videoBucket: videoBucket,
		videoRoot:   videoRoot,
	}
}

// PublishProblemDeleted emits one event keyed by the problem id.
func (p *ProblemCleanupPublisher) PublishProblemDeleted(ctx context.Context, problemID int64) error {
	if p == nil || p.queue == nil {
		return errors.New("cleanup publisher is not configured")
	}
	if problemID <= 0 {
		return errors.New("problem id is required")
	}
	event := model.ProblemDeletedEvent{
		ProblemID: problemID,
		DeletedAt: time.Now().UTC(),
	}
	if p.videoBucket != "" {
		event.Targets = append(event.Targets, model.ObjectTarget{
			Bucket: p.videoBucket,
			Prefix: model.VideoPrefix(p.videoRoot, problemID),
		})
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal problem deleted event: %w", err)
	}
	message := mq.NewMessage(fmt.Sprintf("problem-%d-deleted", problemID), payload)
	message.SetHeader("problem_id", fmt.Sprint(problemID))
	if err := p.queue.Publish(ctx, p.topic, message); err != nil {
		return fmt.Errorf("publish problem deleted event: %w", err)
	}
	return nil
}
