package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	"codejudge/internal/common/http/middleware"
	"codejudge/internal/common/metrics"
	"codejudge/internal/common/mq"
	"codejudge/internal/common/ratelimit"
	"codejudge/internal/common/storage"
	"codejudge/internal/judge0"
	problemController "codejudge/internal/problem/controller"
	problemRepo "codejudge/internal/problem/repository"
	problemService "codejudge/internal/problem/service"
	submitController "codejudge/internal/submission/controller"
	submitRepo "codejudge/internal/submission/repository"
	submitService "codejudge/internal/submission/service"
	userController "codejudge/internal/user/controller"
	userRepo "codejudge/internal/user/repository"
	userService "codejudge/internal/user/service"
	videoController "codejudge/internal/video/controller"
	videoRepo "codejudge/internal/video/repository"
	videoService "codejudge/internal/video/service"
	"codejudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/codejudge.yaml"

type services struct {
	auth    *userService.AuthService
	problem *problemService.ProblemService
	submit  *submitService.SubmitService
	video   *videoService.VideoService
	limiter *ratelimit.Service
}

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "codejudge-server exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	mysqlDB, err := db.NewMySQL(ctx, appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCache(ctx, appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	var objStorage storage.ObjectStorage
	if appCfg.MinIO.Endpoint != "" {
		minioStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			return fmt.Errorf("init minio: %w", err)
		}
		objStorage = minioStorage
	} else {
		logger.Warn(ctx, "minio endpoint not set; source archive and videos are disabled")
	}

	var mqClient mq.MessageQueue
	if appCfg.Events.Enabled {
		kafkaQueue, err := mq.NewKafkaQueue(appCfg.Kafka)
		if err != nil {
			return fmt.Errorf("init kafka: %w", err)
		}
		mqClient = kafkaQueue
		defer func() {
			_ = mqClient.Close()
		}()
	}

	evaluator, err := judge0.NewEvaluatorFromConfig(appCfg.Judge0)
	if err != nil {
		return fmt.Errorf("init judge0 client: %w", err)
	}

	problems := problemRepo.NewProblemRepositoryWithTTL(mysqlDB, redisCache, appCfg.Problem.CacheTTL, appCfg.Problem.CacheEmptyTTL)
	stats := problemRepo.NewStatsRepository(redisCache)

	svcs, err := buildServices(appCfg, mysqlDB, redisCache, objStorage, mqClient, evaluator, problems, stats)
	if err != nil {
		return err
	}

	if mqClient != nil {
		statsConsumer := problemService.NewStatsConsumer(mqClient, stats)
		if err := statsConsumer.Subscribe(ctx, appCfg.Events.Stats.toSubscribeOptions()); err != nil {
			return fmt.Errorf("subscribe judged events: %w", err)
		}
		if objStorage != nil {
			cleanupConsumer := problemService.NewProblemCleanupConsumer(mqClient, problems, objStorage, problemService.CleanupOptions{
				Bucket:    appCfg.Video.Bucket,
				KeyPrefix: appCfg.Video.KeyPrefix,
			})
			if err := cleanupConsumer.Subscribe(ctx, appCfg.Events.Cleanup.Topic, appCfg.Events.Cleanup.toSubscribeOptions()); err != nil {
				return fmt.Errorf("subscribe cleanup events: %w", err)
			}
		}
		if err := mqClient.Start(); err != nil {
			return fmt.Errorf("start kafka consumers: %w", err)
		}
		defer func() {
			_ = mqClient.Stop()
		}()
	}

	var metricsServer *metrics.Server
	if appCfg.Metrics.Enabled {
		metricsServer = metrics.StartServer(appCfg.Metrics.Addr)
	}

	httpServer := buildHTTPServer(appCfg, svcs)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "codejudge http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	if err := metricsServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "metrics server shutdown failed", zap.Error(err))
	}
	return serveErr
}

func buildServices(
	appCfg *AppConfig,
	database db.Database,
	redisCache *cache.RedisCache,
	objStorage storage.ObjectStorage,
	mqClient mq.MessageQueue,
	evaluator *judge0.Evaluator,
	problems *problemRepo.MySQLProblemRepository,
	stats *problemRepo.RedisStatsRepository,
) (*services, error) {
	authSvc := userService.NewAuthService(
		userRepo.NewUserRepository(database, redisCache),
		userRepo.NewSolvedRepository(database, redisCache),
		userRepo.NewTokenBlacklist(redisCache),
		redisCache,
		userService.AuthServiceConfig{
			JWTSecret:      []byte(appCfg.Auth.JWTSecret),
			JWTIssuer:      appCfg.Auth.JWTIssuer,
			AccessTokenTTL: appCfg.Auth.AccessTokenTTL,
			LoginFailTTL:   appCfg.Auth.LoginFailTTL,
			LoginFailLimit: appCfg.Auth.LoginFailLimit,
			AdminUsernames: appCfg.Auth.AdminUsernames,
		},
	)

	var (
		cleanupPublisher *problemService.ProblemCleanupPublisher
		events           mq.Producer
	)
	if mqClient != nil {
		cleanupPublisher = problemService.NewProblemCleanupPublisher(mqClient, appCfg.Events.Cleanup.Topic, appCfg.Video.Bucket, appCfg.Video.KeyPrefix)
		events = mqClient
	}
	problemSvc := problemService.NewProblemService(problems, stats, evaluator, cleanupPublisher)

	limiter := ratelimit.NewService(redisCache, appCfg.Submit.RateLimit.Window, appCfg.Submit.Timeouts.Cache)
	submitSvc, err := submitService.NewSubmitService(submitService.Config{
		SubmissionRepo:  submitRepo.NewSubmissionRepositoryWithTTL(database, redisCache, appCfg.Submit.SubmissionCacheTTL, appCfg.Submit.SubmissionEmptyTTL),
		Idempotency:     submitRepo.NewIdempotencyStore(redisCache, appCfg.Submit.IdempotencyTTL),
		Problems:        problemSvc,
		Judge:           evaluator,
		Solved:          authSvc,
		Limiter:         limiter,
		Storage:         objStorage,
		Events:          events,
		SourceBucket:    appCfg.Submit.SourceBucket,
		SourceKeyPrefix: appCfg.Submit.SourceKeyPrefix,
		MaxCodeBytes:    appCfg.Submit.MaxCodeBytes,
		HistoryLimit:    appCfg.Submit.HistoryLimit,
		RateLimit:       appCfg.Submit.RateLimit,
		Timeouts:        appCfg.Submit.Timeouts,
	})
	if err != nil {
		return nil, fmt.Errorf("init submit service: %w", err)
	}

	videoSvc := videoService.NewVideoService(videoRepo.NewVideoRepository(database), problemSvc, objStorage, videoService.Options{
		Bucket:      appCfg.Video.Bucket,
		KeyPrefix:   appCfg.Video.KeyPrefix,
		MaxBytes:    appCfg.Video.MaxBytes,
		UploadTTL:   appCfg.Video.UploadTTL,
		PlaybackTTL: appCfg.Video.PlaybackTTL,
	})

	return &services{
		auth:    authSvc,
		problem: problemSvc,
		submit:  submitSvc,
		video:   videoSvc,
		limiter: limiter,
	}, nil
}

func buildHTTPServer(appCfg *AppConfig, svcs *services) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceContextMiddleware())
	router.Use(middleware.CORSMiddleware(appCfg.CORS))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.AccessLogMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	authed := middleware.AuthMiddleware(svcs.auth)
	adminOnly := middleware.AuthMiddleware(svcs.auth, string(userRepo.UserRoleAdmin))

	users := userController.NewAuthController(svcs.auth)
	loginLimit := middleware.RateLimitMiddleware(svcs.limiter, "login", appCfg.Auth.LoginRateLimit)
	userGroup := router.Group("/user")
	userGroup.POST("/register", loginLimit, users.Register)
	userGroup.POST("/login", loginLimit, users.Login)
	userGroup.POST("/logout", authed, users.Logout)
	userGroup.GET("/me", authed, users.Me)

	problems := problemController.NewProblemController(svcs.problem)
	problemGroup := router.Group("/problem")
	problemGroup.GET("", problems.List)
	problemGroup.GET("/:id", problems.Get)
	problemGroup.GET("/:id/stats", problems.Stats)
	problemGroup.GET("/:id/full", adminOnly, problems.GetFull)
	problemGroup.POST("", adminOnly, problems.Create)
	problemGroup.PUT("/:id", adminOnly, problems.Update)
	problemGroup.DELETE("/:id", adminOnly, problems.Delete)

	submissions := submitController.NewSubmissionController(svcs.submit)
	submissionGroup := router.Group("/submission", authed)
	submissionGroup.POST("/submit/:problemId", submissions.Submit)
	submissionGroup.POST("/run/:problemId", submissions.Run)
	submissionGroup.GET("/history/:problemId", submissions.History)
	submissionGroup.GET("/:id", submissions.Get)

	videos := videoController.NewVideoController(svcs.video)
	videoGroup := router.Group("/video")
	videoGroup.GET("/:problemId", videos.Get)
	videoGroup.POST("/:problemId/upload-url", adminOnly, videos.UploadURL)
	videoGroup.POST("/:problemId", adminOnly, videos.Confirm)
	videoGroup.DELETE("/:problemId", adminOnly, videos.Delete)

	return &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
}
