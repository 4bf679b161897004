package model

import (
	"fmt"
	"strings"
	"time"
)

// TopicProblemCleanup carries ProblemDeletedEvent.
const TopicProblemCleanup = "problem.cleanup"

// ObjectTarget is one bucket prefix owned by a problem.
type ObjectTarget struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix"`
}

// ProblemDeletedEvent lists the stored objects a deleted problem leaves behind.
type ProblemDeletedEvent struct {
	ProblemID int64          `json:"problemId"`
	Targets   []ObjectTarget `json:"targets"`
	DeletedAt time.Time      `json:"deletedAt"`
}

// VideoPrefix is the key prefix under which a problem's solution videos live,
// e.g. "videos/12/".
func VideoPrefix(root string, problemID int64) string {
	root = strings.Trim(root, "/")
	if root == "" {
		root = "videos"
	}
	return fmt.Sprintf("%s/%d/", root, problemID)
}
