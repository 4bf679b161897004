package judge0

import (
	"context"
	"errors"
	"time"

	"codejudge/internal/common/metrics"

	"github.com/cenkalti/backoff/v4"
)

// ErrPollTimeout means the poll bounds ran out before every token was terminal.
var ErrPollTimeout = errors.New("judge poll timed out")

var errPending = errors.New("judge results pending")

// PollConfig bounds the poll loop.
type PollConfig struct {
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
	Multiplier      float64       `yaml:"multiplier"`
	MaxAttempts     int           `yaml:"maxAttempts"`
	MaxElapsed      time.Duration `yaml:"maxElapsed"`
}

// ApplyDefaults fills zero-valued bounds.
func (c *PollConfig) ApplyDefaults() {
	if c.InitialInterval == 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = 3 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 1.5
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 30
	}
	if c.MaxElapsed == 0 {
		c.MaxElapsed = 60 * time.Second
	}
}

// BatchFetcher reads the state of a token set.
type BatchFetcher interface {
	FetchBatch(ctx context.Context, tokens []string) ([]Result, error)
}

// Poller waits for a token set to resolve.
type Poller struct {
	fetcher BatchFetcher
	cfg     PollConfig
}

func NewPoller(fetcher BatchFetcher, cfg PollConfig) *Poller {
	cfg.ApplyDefaults()
	return &Poller{fetcher: fetcher, cfg: cfg}
}

// AwaitResults fetches the whole token set until every result is terminal.
// Results come back in token order. It returns on the first fetch when nothing is pending,
// ErrPollTimeout once attempts or elapsed time run out, and the fetch error on judge failures.
func (p *Poller) AwaitResults(ctx context.Context, tokens []string) ([]Result, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.cfg.InitialInterval
	expo.MaxInterval = p.cfg.MaxInterval
	expo.Multiplier = p.cfg.Multiplier
	expo.MaxElapsedTime = p.cfg.MaxElapsed
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(p.cfg.MaxAttempts-1)), ctx)

	attempts := 0
	results, err := backoff.RetryWithData(func() ([]Result, error) {
		attempts++
		fetched, err := p.fetcher.FetchBatch(ctx, tokens)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		ordered, ok := orderByToken(tokens, fetched)
		if !ok {
			return nil, errPending
		}
		return ordered, nil
	}, policy)

	switch {
	case err == nil:
		metrics.JudgePollAttempts.Observe(float64(attempts))
		return results, nil
	case errors.Is(err, errPending), errors.Is(err, context.DeadlineExceeded):
		metrics.JudgePollTimeouts.Inc()
		return nil, ErrPollTimeout
	default:
		return nil, err
	}
}

// orderByToken lines fetched results up with tokens and reports whether all are terminal.
func orderByToken(tokens []string, fetched []Result) ([]Result, bool) {
	byToken := make(map[string]Result, len(fetched))
	for _, r := range fetched {
		byToken[r.Token] = r
	}
	ordered := make([]Result, len(tokens))
	for i, token := range tokens {
		r, ok := byToken[token]
		if !ok || !r.Terminal() {
			return nil, false
		}
		ordered[i] = r
	}
	return ordered, true
}
