package judge0

import (
	"context"
	"errors"
	"time"

	"codejudge/internal/common/metrics"
	pkgerrors "codejudge/pkg/errors"

	"golang.org/x/sync/semaphore"
)

// Gate caps the number of batches in flight against the judge.
type Gate struct {
	sem            *semaphore.Weighted
	acquireTimeout time.Duration
}

func NewGate(maxConcurrent int, acquireTimeout time.Duration) *Gate {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(maxConcurrent)), acquireTimeout: acquireTimeout}
}

// Acquire waits up to the acquire timeout for a slot; the returned func releases it.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	waitCtx := ctx
	if g.acquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.acquireTimeout)
		defer cancel()
	}
	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, pkgerrors.New(pkgerrors.JudgeQueueFull).WithMessage("judge is busy, try again later")
		}
		return nil, err
	}
	metrics.JudgeInflight.Inc()
	return func() {
		metrics.JudgeInflight.Dec()
		g.sem.Release(1)
	}, nil
}
