package judge0

import (
	"context"

	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// BatchSubmitter creates judge jobs.
type BatchSubmitter interface {
	SubmitBatch(ctx context.Context, items []BatchItem) ([]string, error)
}

// Evaluator runs a batch end to end: admission, submission and polling.
type Evaluator struct {
	submitter BatchSubmitter
	poller    *Poller
	gate      *Gate
}

func NewEvaluator(submitter BatchSubmitter, poller *Poller, gate *Gate) *Evaluator {
	return &Evaluator{submitter: submitter, poller: poller, gate: gate}
}

// NewEvaluatorFromConfig wires a Client, Poller and Gate from one Config.
func NewEvaluatorFromConfig(cfg Config) (*Evaluator, error) {
	cfg.ApplyDefaults()
	client, err := NewClient(cfg, nil)
	if err != nil {
		return nil, err
	}
	return NewEvaluator(client, NewPoller(client, cfg.Poll), NewGate(cfg.MaxConcurrent, cfg.AcquireTimeout)), nil
}

// Evaluate returns one terminal result per item, in item order.
// The batch is submitted once; a failed submit is never retried.
func (e *Evaluator) Evaluate(ctx context.Context, items []BatchItem) ([]Result, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if e.gate != nil {
		release, err := e.gate.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	tokens, err := e.submitter.SubmitBatch(ctx, items)
	if err != nil {
		return nil, err
	}
	logger.Debug(ctx, "judge batch submitted", zap.Int("items", len(items)), zap.Strings("tokens", tokens))
	return e.poller.AwaitResults(ctx, tokens)
}
