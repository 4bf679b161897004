// Package judge0test provides a scripted judge for service tests.
package judge0test

import (
	"context"
	"sync"

	"codejudge/internal/judge0"
)

// Judge answers Evaluate from a per-item function and records every batch it sees.
type Judge struct {
	// Result builds the terminal result for one item. Nil accepts everything.
	Result func(item judge0.BatchItem) judge0.Result
	Err    error
	// OmitEcho leaves stdin and expected_output off the results, as Judge0 does when asked for fewer fields.
	OmitEcho bool

	mu      sync.Mutex
	batches [][]judge0.BatchItem
}

// Accepted is a passing result with the given time and memory.
func Accepted(seconds float64, memoryKB int64) judge0.Result {
	return judge0.Result{StatusID: judge0.StatusAccepted, Time: judge0.Seconds(seconds), Memory: memoryKB}
}

// Failed is a failing result carrying status and stderr.
func Failed(statusID int, stderr string) judge0.Result {
	return judge0.Result{StatusID: statusID, Stderr: stderr}
}

func (j *Judge) Evaluate(_ context.Context, items []judge0.BatchItem) ([]judge0.Result, error) {
	j.mu.Lock()
	j.batches = append(j.batches, append([]judge0.BatchItem(nil), items...))
	j.mu.Unlock()
	if j.Err != nil {
		return nil, j.Err
	}
	results := make([]judge0.Result, len(items))
	for i, item := range items {
		if j.Result == nil {
			results[i] = Accepted(0.01, 1024)
		} else {
			results[i] = j.Result(item)
		}
		if !j.OmitEcho {
			results[i].Stdin = item.Stdin
			results[i].ExpectedOut = item.ExpectedOutput
		}
	}
	return results, nil
}

// Batches returns a copy of every batch evaluated so far.
func (j *Judge) Batches() [][]judge0.BatchItem {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([][]judge0.BatchItem(nil), j.batches...)
}

// Calls is the number of Evaluate invocations.
func (j *Judge) Calls() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.batches)
}
