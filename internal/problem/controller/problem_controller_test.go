package controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codejudge/internal/common/cache/cachetest"
	"codejudge/internal/common/db/dbtest"
	"codejudge/internal/judge0/judge0test"
	"codejudge/internal/problem/repository"
	"codejudge/internal/problem/service"

	"github.com/gin-gonic/gin"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newRouter(t *testing.T, fake *dbtest.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := cachetest.New(t)
	svc := service.NewProblemService(
		repository.NewProblemRepository(fake, nil),
		repository.NewStatsRepository(c),
		&judge0test.Judge{},
		nil,
	)
	h := NewProblemController(svc)

	r := gin.New()
	r.GET("/problem", h.List)
	r.GET("/problem/:id", h.Get)
	r.POST("/problem", h.Create)
	r.DELETE("/problem/:id", h.Delete)
	return r
}

func do(r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestGetProblemPublicView(t *testing.T) {
	now := time.Now()
	fake := dbtest.New(dbtest.Handler{Match: "FROM problems", Rows: [][]interface{}{{
		int64(1), "Sum", "desc", "easy", `["math"]`,
		`[{"input":"1 2","output":"3"}]`,
		`[{"input":"secret","output":"42"}]`,
		`[]`,
		`[{"language":"c++","code":"reference"}]`,
		int64(1), now, now,
	}}})
	r := newRouter(t, fake)

	rec, env := do(r, http.MethodGet, "/problem/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if strings.Contains(string(env.Data), "secret") || strings.Contains(string(env.Data), "reference") {
		t.Fatalf("hidden data leaked: %s", env.Data)
	}
	var p service.PublicProblem
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.HiddenCaseCount != 1 || p.Title != "Sum" {
		t.Fatalf("problem = %+v", p)
	}
}

func TestGetProblemErrors(t *testing.T) {
	r := newRouter(t, dbtest.New(dbtest.Handler{Match: "FROM problems"}))

	if rec, _ := do(r, http.MethodGet, "/problem/abc", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
	if rec, _ := do(r, http.MethodGet, "/problem/9", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", rec.Code)
	}
}

func TestListProblemsPagination(t *testing.T) {
	fake := dbtest.New(
		dbtest.Handler{Match: "SELECT COUNT(*)", Rows: [][]interface{}{{int64(45)}}},
		dbtest.Handler{Match: "SELECT id, title", Rows: [][]interface{}{{int64(21), "P21", "hard", `[]`}}},
	)
	r := newRouter(t, fake)

	rec, env := do(r, http.MethodGet, "/problem?page=3&pageSize=10&difficulty=hard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var page struct {
		Total      int64 `json:"total"`
		Page       int   `json:"page"`
		PageSize   int   `json:"page_size"`
		TotalPages int   `json:"total_pages"`
	}
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 45 || page.Page != 3 || page.PageSize != 10 || page.TotalPages != 5 {
		t.Fatalf("page = %+v", page)
	}
	args := fake.Calls()[1].Args
	if args[len(args)-1] != 20 {
		t.Fatalf("offset = %v, want 20", args[len(args)-1])
	}
}

func TestCreateProblemRejectsMalformedBody(t *testing.T) {
	fake := dbtest.New()
	r := newRouter(t, fake)

	rec, _ := do(r, http.MethodPost, "/problem", map[string]string{"title": "only title"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(fake.Calls()) != 0 {
		t.Fatalf("database touched on invalid input")
	}
}

func TestCreateProblemStoresAfterGrading(t *testing.T) {
	fake := dbtest.New(dbtest.Handler{Match: "INSERT INTO problems", InsertID: 12, Affected: 1})
	r := newRouter(t, fake)

	rec, env := do(r, http.MethodPost, "/problem", ProblemRequest{
		Title:              "Echo",
		Description:        "print input",
		Difficulty:         "easy",
		VisibleTestCases:   []repository.TestCase{{Input: "a", Output: "a"}},
		HiddenTestCases:    []repository.TestCase{{Input: "b", Output: "b"}},
		ReferenceSolutions: []repository.CodeSnippet{{Language: "java", Code: "class Main {}"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var created CreateProblemResponse
	_ = json.Unmarshal(env.Data, &created)
	if created.ID != 12 {
		t.Fatalf("id = %d", created.ID)
	}
}
