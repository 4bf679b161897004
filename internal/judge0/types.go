package judge0

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Judge0 status ids.
const (
	StatusInQueue    = 1
	StatusProcessing = 2
	StatusAccepted   = 3
	StatusRuntime    = 4
)

// BatchItem is one execution request; one item is built per test case.
type BatchItem struct {
	SourceCode     string     `json:"source_code"`
	LanguageID     LanguageID `json:"language_id"`
	Stdin          string     `json:"stdin"`
	ExpectedOutput string     `json:"expected_output"`
}

// Case supplies the stdin and expected output of one test case.
type Case interface {
	Stdin() string
	ExpectedOutput() string
}

// BuildBatch pairs code with every case, keeping case order.
func BuildBatch[C Case](code string, lang LanguageID, cases []C) []BatchItem {
	items := make([]BatchItem, 0, len(cases))
	for _, tc := range cases {
		items = append(items, BatchItem{
			SourceCode:     code,
			LanguageID:     lang,
			Stdin:          tc.Stdin(),
			ExpectedOutput: tc.ExpectedOutput(),
		})
	}
	return items
}

// Seconds decodes Judge0 "time" values, which arrive as strings ("0.01"), numbers or null.
type Seconds float64

func (s *Seconds) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = 0
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if raw == "" {
			*s = 0
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid time %q: %w", raw, err)
		}
		*s = Seconds(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Seconds(v)
	return nil
}

// Status is the nested status object Judge0 returns alongside status_id.
type Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Result is the judge's view of one token.
type Result struct {
	Token         string  `json:"token"`
	StatusID      int     `json:"status_id"`
	Status        *Status `json:"status,omitempty"`
	Stdin         string  `json:"stdin,omitempty"`
	ExpectedOut   string  `json:"expected_output,omitempty"`
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	CompileOutput string  `json:"compile_output"`
	Message       string  `json:"message"`
	Time          Seconds `json:"time"`
	Memory        int64   `json:"memory"`
}

// Code returns the status id, falling back to the nested status object.
func (r Result) Code() int {
	if r.StatusID != 0 {
		return r.StatusID
	}
	if r.Status != nil {
		return r.Status.ID
	}
	return 0
}

// Terminal reports whether the judge has finished with this token.
func (r Result) Terminal() bool {
	return r.Code() > StatusProcessing
}

// Description is the judge's human readable status, if any.
func (r Result) Description() string {
	if r.Status != nil {
		return r.Status.Description
	}
	return ""
}
