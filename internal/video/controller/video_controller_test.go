package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codejudge/internal/common/db/dbtest"
	"codejudge/internal/common/storage/storagetest"
	problemRepo "codejudge/internal/problem/repository"
	"codejudge/internal/video/repository"
	"codejudge/internal/video/service"
	pkgerrors "codejudge/pkg/errors"

	"github.com/gin-gonic/gin"
)

type problemFive struct{}

func (problemFive) GetProblem(_ context.Context, id int64) (*problemRepo.Problem, error) {
	if id != 5 {
		return nil, pkgerrors.New(pkgerrors.ProblemNotFound)
	}
	return &problemRepo.Problem{ID: 5}, nil
}

func newRouter(fake *dbtest.DB, obj *storagetest.Memory) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewVideoService(repository.NewVideoRepository(fake), problemFive{}, obj, service.Options{Bucket: "media"})
	h := NewVideoController(svc)
	r := gin.New()
	r.POST("/video/:problemId/upload-url", h.UploadURL)
	r.POST("/video/:problemId", h.Confirm)
	r.GET("/video/:problemId", h.Get)
	r.DELETE("/video/:problemId", h.Delete)
	return r
}

func do(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestUploadURLEndpoint(t *testing.T) {
	r := newRouter(dbtest.New(), storagetest.NewMemory())

	rec := do(r, http.MethodPost, "/video/5/upload-url", UploadURLRequest{ContentType: "video/mp4"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var env struct {
		Data service.UploadTicket `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil || env.Data.UploadURL == "" {
		t.Fatalf("ticket = %+v, %v", env.Data, err)
	}

	if rec := do(r, http.MethodPost, "/video/x/upload-url", UploadURLRequest{ContentType: "video/mp4"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/video/5/upload-url", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing content type status = %d", rec.Code)
	}
}

func TestConfirmAndGetEndpoints(t *testing.T) {
	now := time.Now()
	obj := storagetest.NewMemory()
	obj.Seed("media", "videos/5/v.mp4", []byte("0123456789"))
	fake := dbtest.New(
		dbtest.Handler{Match: "FOR UPDATE"},
		dbtest.Handler{Match: "INSERT INTO problem_videos", Affected: 1},
		dbtest.Handler{Match: "FROM problem_videos", Rows: [][]interface{}{{int64(5), "videos/5/v.mp4", int64(10), "", int64(1), now, now}}},
	)
	r := newRouter(fake, obj)

	if rec := do(r, http.MethodPost, "/video/5", ConfirmRequest{ObjectKey: "videos/5/v.mp4"}); rec.Code != http.StatusCreated {
		t.Fatalf("confirm status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec := do(r, http.MethodGet, "/video/5", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("videos/5/v.mp4")) {
		t.Fatalf("get status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestGetMissingVideo(t *testing.T) {
	r := newRouter(dbtest.New(dbtest.Handler{Match: "FROM problem_videos"}), storagetest.NewMemory())
	if rec := do(r, http.MethodGet, "/video/5", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}
