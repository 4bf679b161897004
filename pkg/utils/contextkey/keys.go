package contextkey

import "context"

type key string

const (
	TraceID      key = "trace_id"
	RequestID    key = "request_id"
	UserID       key = "user_id"
	UserRole     key = "user_role"
	SubmissionID key = "submission_id"
)

// WithSubmission tags ctx so log lines written while grading carry the submission id.
func WithSubmission(ctx context.Context, submissionID string) context.Context {
	return context.WithValue(ctx, SubmissionID, submissionID)
}
