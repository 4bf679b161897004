package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"codejudge/internal/common/cache/cachetest"
	"codejudge/internal/common/db/dbtest"
	"codejudge/internal/submission/verdict"
)

func submissionRow(status string) []interface{} {
	now := time.Now()
	return []interface{}{
		"sub-1", int64(3), int64(7), "java", "class Main {}", status,
		int64(2), int64(3), 0.5, int64(4096),
		"wrong on case 3", "submissions/sub-1/source.code", "abc", now, now,
	}
}

func TestCreateInsertsPendingRow(t *testing.T) {
	fake := dbtest.New(dbtest.Handler{Match: "INSERT INTO submissions", Affected: 1})
	repo := NewSubmissionRepository(fake, nil)

	s := &Submission{ID: "sub-1", UserID: 3, ProblemID: 7, Language: "java", Code: "x", CasesTotal: 3}
	if err := repo.Create(context.Background(), nil, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Status != verdict.StatusPending {
		t.Fatalf("status = %s", s.Status)
	}
	args := fake.Calls()[0].Args
	if args[5] != verdict.StatusPending || args[6] != 3 {
		t.Fatalf("args = %v", args)
	}

	if err := repo.Create(context.Background(), nil, &Submission{UserID: 3, ProblemID: 7}); err == nil {
		t.Fatalf("expected error for missing id")
	}
}

func TestFinalizeOnlyUpdatesPending(t *testing.T) {
	fake := dbtest.New(dbtest.Handler{Match: "UPDATE submissions", Affected: 0})
	repo := NewSubmissionRepository(fake, nil)

	v := verdict.Verdict{Status: verdict.StatusAccepted, Passed: 3, Total: 3}
	if err := repo.Finalize(context.Background(), nil, "sub-1", v); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("err = %v", err)
	}
	call := fake.Calls()[0]
	if !strings.Contains(call.Query, "status = ?") || call.Args[len(call.Args)-1] != verdict.StatusPending {
		t.Fatalf("update not guarded by pending: %v", call.Args)
	}
	if strings.Contains(call.Query, "cases_total") || len(call.Args) != 8 {
		t.Fatalf("finalize must not rewrite cases_total: %s %v", call.Query, call.Args)
	}

	if err := repo.Finalize(context.Background(), nil, "sub-1", verdict.Verdict{Status: verdict.StatusPending}); err == nil {
		t.Fatalf("expected error for non-terminal verdict")
	}
}

func TestGetByIDCachesFinalizedRows(t *testing.T) {
	c, _ := cachetest.New(t)
	fake := dbtest.New(dbtest.Handler{Match: "FROM submissions", Rows: [][]interface{}{submissionRow("wrong")}})
	repo := NewSubmissionRepository(fake, c)

	for i := 0; i < 2; i++ {
		s, err := repo.GetByID(context.Background(), nil, "sub-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if s.Status != verdict.StatusWrong || s.CasesPassed != 2 || s.SourceKey == "" || s.JudgedAt == nil {
			t.Fatalf("submission = %+v", s)
		}
	}
	if n := fake.CountMatching("FROM submissions"); n != 1 {
		t.Fatalf("db reads = %d, want 1", n)
	}
}

func TestGetByIDSkipsCacheForPending(t *testing.T) {
	c, _ := cachetest.New(t)
	row := submissionRow("pending")
	row[14] = nil
	fake := dbtest.New(dbtest.Handler{Match: "FROM submissions", Rows: [][]interface{}{row}})
	repo := NewSubmissionRepository(fake, c)

	for i := 0; i < 2; i++ {
		if _, err := repo.GetByID(context.Background(), nil, "sub-1"); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if n := fake.CountMatching("FROM submissions"); n != 2 {
		t.Fatalf("db reads = %d, want 2", n)
	}
}

func TestGetByIDMissing(t *testing.T) {
	c, _ := cachetest.New(t)
	fake := dbtest.New(dbtest.Handler{Match: "FROM submissions"})
	repo := NewSubmissionRepository(fake, c)

	for i := 0; i < 2; i++ {
		if _, err := repo.GetByID(context.Background(), nil, "nope"); !errors.Is(err, ErrSubmissionNotFound) {
			t.Fatalf("err = %v", err)
		}
	}
	if n := fake.CountMatching("FROM submissions"); n != 1 {
		t.Fatalf("miss was not cached: %d reads", n)
	}
}

func TestListByUserProblem(t *testing.T) {
	now := time.Now()
	fake := dbtest.New(dbtest.Handler{Match: "FROM submissions", Rows: [][]interface{}{
		{"b", "java", "accepted", int64(3), int64(3), 0.3, int64(100), now},
		{"a", "c++", "wrong", int64(1), int64(3), 0.1, int64(90), now.Add(-time.Minute)},
	}})
	repo := NewSubmissionRepository(fake, nil)

	items, err := repo.ListByUserProblem(context.Background(), 3, 7, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].ID != "b" || items[1].Status != verdict.StatusWrong {
		t.Fatalf("items = %+v", items)
	}
	if args := fake.Calls()[0].Args; args[2] != 50 {
		t.Fatalf("limit = %v", args[2])
	}
}

func TestIdempotencyStore(t *testing.T) {
	c, mr := cachetest.New(t)
	store := NewIdempotencyStore(c, time.Minute)
	ctx := context.Background()

	reserved, _, err := store.Reserve(ctx, 3, 7, "k")
	if err != nil || !reserved {
		t.Fatalf("first reserve = %v, %v", reserved, err)
	}
	reserved, existing, err := store.Reserve(ctx, 3, 7, "k")
	if err != nil || reserved || existing != ProcessingMarker {
		t.Fatalf("second reserve = %v %q %v", reserved, existing, err)
	}
	if reserved, _, _ := store.Reserve(ctx, 4, 7, "k"); !reserved {
		t.Fatalf("key shared across users")
	}
	if reserved, _, _ := store.Reserve(ctx, 3, 8, "k"); !reserved {
		t.Fatalf("key shared across problems")
	}

	if err := store.Complete(ctx, 3, 7, "k", "sub-9"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, existing, _ = store.Reserve(ctx, 3, 7, "k")
	if existing != "sub-9" {
		t.Fatalf("existing = %q", existing)
	}
	if ttl := mr.TTL("submit:idempotency:3:7:k"); ttl <= 0 {
		t.Fatalf("ttl = %v", ttl)
	}

	if err := store.Release(ctx, 3, 7, "k"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if reserved, _, _ := store.Reserve(ctx, 3, 7, "k"); !reserved {
		t.Fatalf("released key not reusable")
	}
}
