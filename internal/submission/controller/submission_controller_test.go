package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codejudge/internal/common/cache/cachetest"
	"codejudge/internal/common/db/dbtest"
	"codejudge/internal/common/http/middleware"
	"codejudge/internal/judge0/judge0test"
	problemRepo "codejudge/internal/problem/repository"
	"codejudge/internal/submission/repository"
	"codejudge/internal/submission/service"
	pkgerrors "codejudge/pkg/errors"

	"github.com/gin-gonic/gin"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type staticAuth struct{}

func (staticAuth) Authenticate(_ context.Context, raw string) (middleware.Identity, error) {
	if raw != "good" {
		return middleware.Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return middleware.Identity{ID: 3, Role: "user"}, nil
}

type oneProblem struct{}

func (oneProblem) GetProblem(_ context.Context, id int64) (*problemRepo.Problem, error) {
	if id != 7 {
		return nil, pkgerrors.New(pkgerrors.ProblemNotFound)
	}
	return &problemRepo.Problem{
		ID:               7,
		VisibleTestCases: []problemRepo.TestCase{{Input: "1", Output: "1"}},
		HiddenTestCases:  []problemRepo.TestCase{{Input: "2", Output: "2"}, {Input: "3", Output: "3"}},
	}, nil
}

func newRouter(t *testing.T, fake *dbtest.DB, judge *judge0test.Judge) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := cachetest.New(t)
	svc, err := service.NewSubmitService(service.Config{
		SubmissionRepo: repository.NewSubmissionRepository(fake, c),
		Idempotency:    repository.NewIdempotencyStore(c, time.Minute),
		Problems:       oneProblem{},
		Judge:          judge,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h := NewSubmissionController(svc)

	r := gin.New()
	g := r.Group("/submission", middleware.AuthMiddleware(staticAuth{}))
	g.POST("/submit/:problemId", h.Submit)
	g.POST("/run/:problemId", h.Run)
	g.GET("/history/:problemId", h.History)
	g.GET("/:id", h.Get)
	return r
}

func do(r http.Handler, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer good")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestSubmitEndpoint(t *testing.T) {
	fake := dbtest.New(
		dbtest.Handler{Match: "INSERT INTO submissions", Affected: 1},
		dbtest.Handler{Match: "UPDATE submissions", Affected: 1},
	)
	judge := &judge0test.Judge{}
	r := newRouter(t, fake, judge)

	headers := map[string]string{"Idempotency-Key": "abc"}
	rec, env := do(r, http.MethodPost, "/submission/submit/7", CodeRequest{Code: "x", Language: "javascript"}, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var res service.SubmitResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Accepted || res.TotalTestCases != 2 || res.PassedTestCases != 2 || res.SubmissionID == "" {
		t.Fatalf("result = %+v", res)
	}
	if judge.Batches()[0][0].LanguageID != 63 {
		t.Fatalf("language id = %d", judge.Batches()[0][0].LanguageID)
	}
	if fake.CountMatching("INSERT INTO submissions") != 1 || fake.CountMatching("UPDATE submissions") != 1 {
		t.Fatalf("calls = %+v", fake.Calls())
	}
}

func TestSubmitEndpointRejects(t *testing.T) {
	fake := dbtest.New()
	judge := &judge0test.Judge{}
	r := newRouter(t, fake, judge)

	rec, _ := do(r, http.MethodPost, "/submission/submit/7", CodeRequest{Code: "x", Language: "ruby"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown language status = %d", rec.Code)
	}
	rec, _ = do(r, http.MethodPost, "/submission/submit/abc", CodeRequest{Code: "x", Language: "java"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
	rec, _ = do(r, http.MethodPost, "/submission/submit/7", map[string]string{"code": "x"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing language status = %d", rec.Code)
	}
	rec, _ = do(r, http.MethodPost, "/submission/submit/9", CodeRequest{Code: "x", Language: "java"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown problem status = %d", rec.Code)
	}
	if judge.Calls() != 0 || len(fake.Calls()) != 0 {
		t.Fatalf("rejected requests reached judge or database")
	}
}

func TestSubmitEndpointRequiresAuth(t *testing.T) {
	r := newRouter(t, dbtest.New(), &judge0test.Judge{})
	req := httptest.NewRequest(http.MethodPost, "/submission/submit/7", bytes.NewReader([]byte(`{"code":"x","language":"java"}`)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRunEndpoint(t *testing.T) {
	fake := dbtest.New()
	r := newRouter(t, fake, &judge0test.Judge{})

	rec, env := do(r, http.MethodPost, "/submission/run/7", CodeRequest{Code: "x", Language: "java"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var res service.RunResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || len(res.TestCases) != 1 || res.TestCases[0].Stdin != "1" {
		t.Fatalf("result = %+v", res)
	}
	if len(fake.Calls()) != 0 {
		t.Fatalf("run touched the database")
	}
}

func TestHistoryEndpoint(t *testing.T) {
	now := time.Now()
	fake := dbtest.New(dbtest.Handler{Match: "FROM submissions", Rows: [][]interface{}{
		{"s1", "java", "accepted", int64(2), int64(2), 0.2, int64(100), now},
	}})
	r := newRouter(t, fake, &judge0test.Judge{})

	rec, env := do(r, http.MethodGet, "/submission/history/7", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var items []repository.SubmissionSummary
	if err := json.Unmarshal(env.Data, &items); err != nil || len(items) != 1 || items[0].ID != "s1" {
		t.Fatalf("items = %+v, %v", items, err)
	}
	args := fake.Calls()[0].Args
	if args[0] != int64(3) || args[1] != int64(7) {
		t.Fatalf("args = %v", args)
	}
}
