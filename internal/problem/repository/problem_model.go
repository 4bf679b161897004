package repository

import "time"

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// TestCase is one stdin/expected-output pair.
type TestCase struct {
	Input       string `json:"input"`
	Output      string `json:"output"`
	Explanation string `json:"explanation,omitempty"`
}

func (tc TestCase) Stdin() string          { return tc.Input }
func (tc TestCase) ExpectedOutput() string { return tc.Output }

// CodeSnippet is source text for one language, used for starter code and reference solutions.
type CodeSnippet struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// Problem is the full problem record, hidden cases and reference solutions included.
type Problem struct {
	ID                 int64         `json:"id"`
	Title              string        `json:"title"`
	Description        string        `json:"description"`
	Difficulty         string        `json:"difficulty"`
	Tags               []string      `json:"tags"`
	VisibleTestCases   []TestCase    `json:"visibleTestCases"`
	HiddenTestCases    []TestCase    `json:"hiddenTestCases"`
	StartCode          []CodeSnippet `json:"startCode"`
	ReferenceSolutions []CodeSnippet `json:"referenceSolutions"`
	CreatorID          int64         `json:"creatorId"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

// ProblemSummary is the list view of a problem.
type ProblemSummary struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Difficulty string   `json:"difficulty"`
	Tags       []string `json:"tags"`
}

// ListFilter narrows problem listing. Zero values mean no filter.
type ListFilter struct {
	Difficulty string
	Tag        string
	Offset     int
	Limit      int
}
