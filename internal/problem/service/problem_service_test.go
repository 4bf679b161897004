package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"codejudge/internal/common/cache/cachetest"
	"codejudge/internal/common/db"
	"codejudge/internal/common/mq"
	"codejudge/internal/judge0"
	"codejudge/internal/judge0/judge0test"
	"codejudge/internal/problem/model"
	"codejudge/internal/problem/repository"
	pkgerrors "codejudge/pkg/errors"
)

type memProblemRepo struct {
	mu       sync.Mutex
	problems map[int64]repository.Problem
	nextID   int64
}

func newMemProblemRepo() *memProblemRepo {
	return &memProblemRepo{problems: make(map[int64]repository.Problem), nextID: 1}
}

func (r *memProblemRepo) Create(_ context.Context, _ db.Transaction, p *repository.Problem) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.nextID
	r.nextID++
	r.problems[p.ID] = *p
	return p.ID, nil
}

func (r *memProblemRepo) Update(_ context.Context, _ db.Transaction, p *repository.Problem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.problems[p.ID]; !ok {
		return repository.ErrProblemNotFound
	}
	r.problems[p.ID] = *p
	return nil
}

func (r *memProblemRepo) Delete(_ context.Context, _ db.Transaction, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.problems[id]; !ok {
		return repository.ErrProblemNotFound
	}
	delete(r.problems, id)
	return nil
}

func (r *memProblemRepo) GetByID(_ context.Context, _ db.Transaction, id int64) (*repository.Problem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.problems[id]
	if !ok {
		return nil, repository.ErrProblemNotFound
	}
	return &p, nil
}

func (r *memProblemRepo) List(context.Context, repository.ListFilter) ([]repository.ProblemSummary, int64, error) {
	return nil, 0, nil
}

type recordingProducer struct {
	mu       sync.Mutex
	topics   []string
	messages []*mq.Message
}

func (p *recordingProducer) Publish(_ context.Context, topic string, m *mq.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, m)
	return nil
}

func sampleInput() ProblemInput {
	return ProblemInput{
		Title:       "Sum",
		Description: "print a+b",
		Difficulty:  repository.DifficultyEasy,
		Tags:        []string{"math"},
		VisibleTestCases: []repository.TestCase{
			{Input: "1 2", Output: "3"},
		},
		HiddenTestCases: []repository.TestCase{
			{Input: "2 2", Output: "4"},
			{Input: "10 5", Output: "15"},
		},
		StartCode: []repository.CodeSnippet{{Language: "cpp", Code: "// your code"}},
		ReferenceSolutions: []repository.CodeSnippet{
			{Language: "c++", Code: "cpp solution"},
			{Language: "javascript", Code: "js solution"},
		},
	}
}

func newTestService(t *testing.T, judge *judge0test.Judge) (*ProblemService, *memProblemRepo) {
	t.Helper()
	c, _ := cachetest.New(t)
	repo := newMemProblemRepo()
	return NewProblemService(repo, repository.NewStatsRepository(c), judge, nil), repo
}

func TestCreateProblemGradesEveryReferenceSolution(t *testing.T) {
	judge := &judge0test.Judge{}
	svc, repo := newTestService(t, judge)

	id, err := svc.CreateProblem(context.Background(), 7, sampleInput())
	if err != nil {
		t.Fatalf("CreateProblem: %v", err)
	}
	batches := judge.Batches()
	if len(batches) != 2 {
		t.Fatalf("judge batches = %d, want 2", len(batches))
	}
	// visible + hidden cases, in that order
	if len(batches[0]) != 3 || batches[0][0].Stdin != "1 2" || batches[0][2].ExpectedOutput != "15" {
		t.Fatalf("unexpected batch: %+v", batches[0])
	}
	if batches[0][0].LanguageID != 54 || batches[1][0].LanguageID != 63 {
		t.Fatalf("language ids = %d, %d", batches[0][0].LanguageID, batches[1][0].LanguageID)
	}
	stored, _ := repo.GetByID(context.Background(), nil, id)
	if stored.CreatorID != 7 || len(stored.HiddenTestCases) != 2 {
		t.Fatalf("stored problem = %+v", stored)
	}
}

func TestCreateProblemRejectsFailingReference(t *testing.T) {
	judge := &judge0test.Judge{Result: func(item judge0.BatchItem) judge0.Result {
		if item.SourceCode == "js solution" && item.Stdin == "10 5" {
			return judge0test.Failed(5, "")
		}
		return judge0test.Accepted(0.01, 100)
	}}
	svc, repo := newTestService(t, judge)

	_, err := svc.CreateProblem(context.Background(), 1, sampleInput())
	if !pkgerrors.Is(err, pkgerrors.ReferenceSolutionInvalid) {
		t.Fatalf("err = %v, want ReferenceSolutionInvalid", err)
	}
	if pkgerrors.GetError(err).Details["language"] != "javascript" {
		t.Fatalf("details = %v", pkgerrors.GetError(err).Details)
	}
	if len(repo.problems) != 0 {
		t.Fatalf("problem should not be stored")
	}
}

func TestCreateProblemValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ProblemInput)
		code   pkgerrors.ErrorCode
	}{
		{"missing title", func(in *ProblemInput) { in.Title = "  " }, pkgerrors.ValidationFailed},
		{"bad difficulty", func(in *ProblemInput) { in.Difficulty = "extreme" }, pkgerrors.ValidationFailed},
		{"no hidden cases", func(in *ProblemInput) { in.HiddenTestCases = nil }, pkgerrors.ValidationFailed},
		{"no references", func(in *ProblemInput) { in.ReferenceSolutions = nil }, pkgerrors.ValidationFailed},
		{"bad start code language", func(in *ProblemInput) { in.StartCode[0].Language = "cobol" }, pkgerrors.ValidationFailed},
		{"bad reference language", func(in *ProblemInput) { in.ReferenceSolutions[0].Language = "python" }, pkgerrors.LanguageNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge := &judge0test.Judge{}
			svc, _ := newTestService(t, judge)
			input := sampleInput()
			tt.mutate(&input)

			_, err := svc.CreateProblem(context.Background(), 1, input)
			if got := pkgerrors.GetCode(err); got != tt.code {
				t.Fatalf("code = %v, want %v (err=%v)", got, tt.code, err)
			}
			if judge.Calls() != 0 {
				t.Fatalf("judge should not be called, got %d calls", judge.Calls())
			}
		})
	}
}

func TestCreateProblemJudgeFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code pkgerrors.ErrorCode
	}{
		{"poll timeout", judge0.ErrPollTimeout, pkgerrors.JudgeTimeout},
		{"queue full", pkgerrors.New(pkgerrors.JudgeQueueFull), pkgerrors.JudgeQueueFull},
		{"transport", fmt.Errorf("dial tcp: refused"), pkgerrors.JudgeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, &judge0test.Judge{Err: tt.err})
			_, err := svc.CreateProblem(context.Background(), 1, sampleInput())
			if got := pkgerrors.GetCode(err); got != tt.code {
				t.Fatalf("code = %v, want %v", got, tt.code)
			}
		})
	}
}

func TestGetPublicProblemHidesHiddenCases(t *testing.T) {
	svc, _ := newTestService(t, &judge0test.Judge{})
	id, err := svc.CreateProblem(context.Background(), 1, sampleInput())
	if err != nil {
		t.Fatalf("CreateProblem: %v", err)
	}

	public, err := svc.GetPublicProblem(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPublicProblem: %v", err)
	}
	if public.HiddenCaseCount != 2 || len(public.VisibleTestCases) != 1 {
		t.Fatalf("public view = %+v", public)
	}
	payload, _ := json.Marshal(public)
	if strings.Contains(string(payload), "10 5") || strings.Contains(string(payload), "solution") {
		t.Fatalf("public payload leaks hidden data: %s", payload)
	}
}

func TestUpdateMissingProblem(t *testing.T) {
	judge := &judge0test.Judge{}
	svc, _ := newTestService(t, judge)

	err := svc.UpdateProblem(context.Background(), 99, sampleInput())
	if !pkgerrors.Is(err, pkgerrors.ProblemNotFound) {
		t.Fatalf("err = %v, want ProblemNotFound", err)
	}
	if judge.Calls() != 0 {
		t.Fatalf("judge called for missing problem")
	}
}

func TestDeleteProblemPublishesCleanup(t *testing.T) {
	c, _ := cachetest.New(t)
	repo := newMemProblemRepo()
	producer := &recordingProducer{}
	svc := NewProblemService(repo, repository.NewStatsRepository(c), &judge0test.Judge{},
		NewProblemCleanupPublisher(producer, "problem.cleanup", "codejudge", "videos"))

	id, err := svc.CreateProblem(context.Background(), 1, sampleInput())
	if err != nil {
		t.Fatalf("CreateProblem: %v", err)
	}
	if err := svc.DeleteProblem(context.Background(), id); err != nil {
		t.Fatalf("DeleteProblem: %v", err)
	}
	if len(producer.messages) != 1 || producer.topics[0] != "problem.cleanup" {
		t.Fatalf("published = %v", producer.topics)
	}
	var event model.ProblemDeletedEvent
	if err := json.Unmarshal(producer.messages[0].Body, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.ProblemID != id || len(event.Targets) != 1 || event.Targets[0].Prefix != fmt.Sprintf("videos/%d/", id) {
		t.Fatalf("event = %+v", event)
	}

	if err := svc.DeleteProblem(context.Background(), id); !pkgerrors.Is(err, pkgerrors.ProblemNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestListProblemsRejectsUnknownDifficulty(t *testing.T) {
	svc, _ := newTestService(t, &judge0test.Judge{})
	if _, _, err := svc.ListProblems(context.Background(), ListInput{Difficulty: "insane"}); !pkgerrors.Is(err, pkgerrors.ValidationFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestListInputNormalize(t *testing.T) {
	in := ListInput{Page: -1, PageSize: 1000}
	in.Normalize()
	if in.Page != 1 || in.PageSize != maxPageSize {
		t.Fatalf("normalized = %+v", in)
	}
}
