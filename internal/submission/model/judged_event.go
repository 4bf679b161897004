package model

import "time"

// TopicSubmissionJudged carries one event per finalized submission.
const TopicSubmissionJudged = "submission.judged"

// JudgedEvent is published after a submission row reaches a terminal status.
type JudgedEvent struct {
	SubmissionID string    `json:"submission_id"`
	UserID       int64     `json:"user_id"`
	ProblemID    int64     `json:"problem_id"`
	Language     string    `json:"language"`
	Status       string    `json:"status"`
	Passed       int       `json:"passed"`
	Total        int       `json:"total"`
	JudgedAt     time.Time `json:"judged_at"`
}
