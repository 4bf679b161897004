// Package verdict folds per-case judge results into one grading outcome.
package verdict

import (
	"codejudge/internal/judge0"
)

// Status is the terminal outcome of a graded attempt.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusWrong    Status = "wrong"
	StatusError    Status = "error"
	StatusTimeout  Status = "timeout"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusWrong, StatusError, StatusTimeout:
		return true
	}
	return false
}

// Verdict is the aggregate of one batch. Runtime is in seconds, Memory in KB.
type Verdict struct {
	Status       Status
	Passed       int
	Total        int
	Runtime      float64
	Memory       int64
	ErrorMessage string
}

// Accepted reports whether every case passed.
func (v Verdict) Accepted() bool {
	return v.Status == StatusAccepted
}

// Aggregate folds terminal results in test-case order.
//
// Passing cases add to Runtime and raise Memory to their peak; failing cases contribute nothing
// to either. The first failing case decides Status and ErrorMessage: status id 4 maps to error,
// every other failure to wrong. Aggregate does not mutate its input.
func Aggregate(results []judge0.Result) Verdict {
	v := Verdict{Status: StatusAccepted, Total: len(results)}
	failed := false
	for _, r := range results {
		if r.Code() == judge0.StatusAccepted {
			v.Passed++
			v.Runtime += float64(r.Time)
			if r.Memory > v.Memory {
				v.Memory = r.Memory
			}
			continue
		}
		if failed {
			continue
		}
		failed = true
		v.Status = StatusWrong
		if r.Code() == judge0.StatusRuntime {
			v.Status = StatusError
		}
		v.ErrorMessage = failureMessage(r)
	}
	return v
}

// TimeoutVerdict is recorded when the judge did not resolve every case in time.
func TimeoutVerdict(total int) Verdict {
	return Verdict{
		Status:       StatusTimeout,
		Total:        total,
		ErrorMessage: "judge did not finish in time",
	}
}

// UnavailableVerdict is recorded when the judge could not be reached.
func UnavailableVerdict(total int) Verdict {
	return Verdict{
		Status:       StatusError,
		Total:        total,
		ErrorMessage: "judge unavailable",
	}
}

func failureMessage(r judge0.Result) string {
	switch {
	case r.Stderr != "":
		return r.Stderr
	case r.CompileOutput != "":
		return r.CompileOutput
	case r.Message != "":
		return r.Message
	default:
		return r.Description()
	}
}
