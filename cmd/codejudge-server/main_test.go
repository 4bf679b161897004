package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"codejudge/internal/common/cache/cachetest"
	"codejudge/internal/common/db/dbtest"
	"codejudge/internal/common/storage/storagetest"
	"codejudge/internal/judge0"
	problemRepo "codejudge/internal/problem/repository"
	userService "codejudge/internal/user/service"

	"github.com/gin-gonic/gin"
)

func testAppConfig(t *testing.T) *AppConfig {
	t.Helper()
	cfg := &AppConfig{}
	cfg.Database.DSN = "user:pass@tcp(127.0.0.1:3306)/codejudge"
	cfg.Redis.Addr = "127.0.0.1:6379"
	cfg.Judge0.BaseURL = "http://127.0.0.1:2358"
	cfg.Auth.JWTSecret = "wiring-secret"
	cfg.MinIO.Bucket = "codejudge"
	if err := cfg.applyDefaults(); err != nil {
		t.Fatalf("applyDefaults: %v", err)
	}
	return cfg
}

func TestApplyDefaultsRequiresSecret(t *testing.T) {
	cfg := &AppConfig{}
	cfg.Database.DSN = "dsn"
	cfg.Redis.Addr = "addr"
	cfg.Judge0.BaseURL = "http://judge"
	if err := cfg.applyDefaults(); err == nil {
		t.Fatalf("expected missing jwtSecret to fail")
	}
}

func TestBuildServicesWiresRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testAppConfig(t)
	if cfg.Video.Bucket != "codejudge" || cfg.Submit.SourceBucket != "codejudge" {
		t.Fatalf("buckets should default to the minio bucket: %+v %+v", cfg.Video, cfg.Submit)
	}

	redisCache, _ := cachetest.New(t)
	database := dbtest.New()
	evaluator, err := judge0.NewEvaluatorFromConfig(cfg.Judge0)
	if err != nil {
		t.Fatalf("NewEvaluatorFromConfig: %v", err)
	}
	problems := problemRepo.NewProblemRepositoryWithTTL(database, redisCache, cfg.Problem.CacheTTL, cfg.Problem.CacheEmptyTTL)
	stats := problemRepo.NewStatsRepository(redisCache)

	svcs, err := buildServices(cfg, database, redisCache, storagetest.NewMemory(), nil, evaluator, problems, stats)
	if err != nil {
		t.Fatalf("buildServices: %v", err)
	}
	if svcs.auth == nil || svcs.problem == nil || svcs.submit == nil || svcs.video == nil || svcs.limiter == nil {
		t.Fatalf("services not fully wired: %+v", svcs)
	}

	server := buildHTTPServer(cfg, svcs)
	if server.Addr != cfg.Server.Addr || server.WriteTimeout != cfg.Server.WriteTimeout {
		t.Fatalf("server settings not applied: %q %v", server.Addr, server.WriteTimeout)
	}

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/user/me", http.StatusUnauthorized},
		{http.MethodPost, "/submission/submit/1", http.StatusUnauthorized},
		{http.MethodGet, "/problem/1/full", http.StatusUnauthorized},
		{http.MethodDelete, "/video/1", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		server.Handler.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != tc.want {
			t.Fatalf("%s %s = %d, want %d", tc.method, tc.path, rec.Code, tc.want)
		}
	}
}

func TestIssuedTokenAuthenticates(t *testing.T) {
	ctx := context.Background()
	cfg := testAppConfig(t)
	redisCache, _ := cachetest.New(t)
	database := dbtest.New(dbtest.Handler{Match: "INSERT INTO users", Affected: 1, InsertID: 42})
	evaluator, err := judge0.NewEvaluatorFromConfig(cfg.Judge0)
	if err != nil {
		t.Fatalf("NewEvaluatorFromConfig: %v", err)
	}
	problems := problemRepo.NewProblemRepository(database, redisCache)
	svcs, err := buildServices(cfg, database, redisCache, nil, nil, evaluator, problems, problemRepo.NewStatsRepository(redisCache))
	if err != nil {
		t.Fatalf("buildServices: %v", err)
	}

	res, err := svcs.auth.Register(ctx, userService.RegisterInput{Username: "wired", Password: "passw0rd!"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	identity, err := svcs.auth.Authenticate(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity.ID != 42 {
		t.Fatalf("identity = %+v", identity)
	}
}
