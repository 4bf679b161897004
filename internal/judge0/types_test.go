package judge0

import (
	"encoding/json"
	"testing"
)

func TestResultDecodesJudgePayload(t *testing.T) {
	payload := `{"submissions":[
		{"token":"a","status_id":3,"time":"0.012","memory":2048,"stdout":"3\n","stderr":null},
		{"token":"b","status":{"id":6,"description":"Compilation Error"},"time":null,"memory":null,"compile_output":"main.cpp:1: error"},
		{"token":"c","status_id":2,"time":0.5}
	]}`

	var resp batchResultResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Submissions) != 3 {
		t.Fatalf("unexpected count: %d", len(resp.Submissions))
	}

	a, b, c := resp.Submissions[0], resp.Submissions[1], resp.Submissions[2]
	if a.Code() != StatusAccepted || float64(a.Time) != 0.012 || a.Memory != 2048 || !a.Terminal() {
		t.Fatalf("unexpected first result: %+v", a)
	}
	if b.Code() != 6 || b.Description() != "Compilation Error" || b.Time != 0 || !b.Terminal() {
		t.Fatalf("unexpected second result: %+v", b)
	}
	if c.Terminal() || float64(c.Time) != 0.5 {
		t.Fatalf("unexpected third result: %+v", c)
	}
}

func TestSecondsRejectsGarbage(t *testing.T) {
	var s Seconds
	if err := json.Unmarshal([]byte(`"fast"`), &s); err == nil {
		t.Fatalf("expected error")
	}
}

type ioCase struct{ in, out string }

func (c ioCase) Stdin() string          { return c.in }
func (c ioCase) ExpectedOutput() string { return c.out }

func TestBuildBatchKeepsCaseOrder(t *testing.T) {
	items := BuildBatch("print(1)", 71, []ioCase{{"1", "a"}, {"2", "b"}})
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	for i, want := range []string{"1", "2"} {
		if items[i].Stdin != want || items[i].SourceCode != "print(1)" || items[i].LanguageID != 71 {
			t.Fatalf("item %d = %+v", i, items[i])
		}
	}
	if items[1].ExpectedOutput != "b" {
		t.Fatalf("expected output = %q", items[1].ExpectedOutput)
	}
	if got := BuildBatch[ioCase]("x", 71, nil); len(got) != 0 {
		t.Fatalf("empty cases = %+v", got)
	}
}
