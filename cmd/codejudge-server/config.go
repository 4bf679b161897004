package main

import (
	"fmt"
	"os"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	"codejudge/internal/common/http/middleware"
	"codejudge/internal/common/mq"
	"codejudge/internal/common/storage"
	"codejudge/internal/judge0"
	submitService "codejudge/internal/submission/service"
	"codejudge/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultMetricsAddr     = "0.0.0.0:9090"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 120 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type AuthConfig struct {
	JWTSecret      string        `yaml:"jwtSecret"`
	JWTIssuer      string        `yaml:"jwtIssuer"`
	AccessTokenTTL time.Duration `yaml:"accessTokenTTL"`
	LoginFailTTL   time.Duration `yaml:"loginFailTTL"`
	LoginFailLimit int           `yaml:"loginFailLimit"`
	AdminUsernames []string      `yaml:"adminUsernames"`

	// LoginRateLimit throttles register and login per client IP.
	LoginRateLimit middleware.RateLimitPolicy `yaml:"loginRateLimit"`
}

type ProblemConfig struct {
	CacheTTL      time.Duration `yaml:"cacheTTL"`
	CacheEmptyTTL time.Duration `yaml:"cacheEmptyTTL"`
}

// SubmitConfig holds submission settings.
type SubmitConfig struct {
	SourceBucket       string                        `yaml:"sourceBucket"`
	SourceKeyPrefix    string                        `yaml:"sourceKeyPrefix"`
	MaxCodeBytes       int                           `yaml:"maxCodeBytes"`
	HistoryLimit       int                           `yaml:"historyLimit"`
	IdempotencyTTL     time.Duration                 `yaml:"idempotencyTTL"`
	SubmissionCacheTTL time.Duration                 `yaml:"submissionCacheTTL"`
	SubmissionEmptyTTL time.Duration                 `yaml:"submissionEmptyTTL"`
	RateLimit          submitService.RateLimitConfig `yaml:"rateLimit"`
	Timeouts           submitService.TimeoutConfig   `yaml:"timeouts"`
}

type VideoConfig struct {
	Bucket      string        `yaml:"bucket"`
	KeyPrefix   string        `yaml:"keyPrefix"`
	MaxBytes    int64         `yaml:"maxBytes"`
	UploadTTL   time.Duration `yaml:"uploadTTL"`
	PlaybackTTL time.Duration `yaml:"playbackTTL"`
}

// ConsumerConfig describes one Kafka subscription.
type ConsumerConfig struct {
	Topic           string        `yaml:"topic"`
	ConsumerGroup   string        `yaml:"consumerGroup"`
	Concurrency     int           `yaml:"concurrency"`
	MaxRetries      int           `yaml:"maxRetries"`
	RetryDelay      time.Duration `yaml:"retryDelay"`
	DeadLetterTopic string        `yaml:"deadLetterTopic"`
}

func (c ConsumerConfig) toSubscribeOptions() *mq.SubscribeOptions {
	opts := &mq.SubscribeOptions{
		ConsumerGroup:   c.ConsumerGroup,
		Concurrency:     c.Concurrency,
		MaxRetries:      c.MaxRetries,
		RetryDelay:      c.RetryDelay,
		DeadLetterTopic: c.DeadLetterTopic,
	}
	opts.SetDefaults()
	return opts
}

type EventsConfig struct {
	Enabled bool           `yaml:"enabled"`
	Stats   ConsumerConfig `yaml:"stats"`
	Cleanup ConsumerConfig `yaml:"cleanup"`
}

// AppConfig holds codejudge-server configuration.
type AppConfig struct {
	Server   ServerConfig          `yaml:"server"`
	Metrics  MetricsConfig         `yaml:"metrics"`
	Logger   logger.Config         `yaml:"logger"`
	CORS     middleware.CORSConfig `yaml:"cors"`
	Database db.MySQLConfig        `yaml:"database"`
	Redis    cache.RedisConfig     `yaml:"redis"`
	Kafka    mq.KafkaConfig        `yaml:"kafka"`
	MinIO    storage.MinIOConfig   `yaml:"minio"`
	Judge0   judge0.Config         `yaml:"judge0"`
	Auth     AuthConfig            `yaml:"auth"`
	Problem  ProblemConfig         `yaml:"problem"`
	Submit   SubmitConfig          `yaml:"submit"`
	Video    VideoConfig           `yaml:"video"`
	Events   EventsConfig          `yaml:"events"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *AppConfig) applyDefaults() error {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	// Submit holds the request open for the whole judge round trip.
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = defaultMetricsAddr
	}

	if cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if cfg.Judge0.BaseURL == "" {
		return fmt.Errorf("judge0 baseURL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwtSecret is required")
	}
	cfg.Judge0.ApplyDefaults()

	if cfg.Auth.LoginRateLimit.Window == 0 {
		cfg.Auth.LoginRateLimit.Window = time.Minute
	}
	if cfg.Auth.LoginRateLimit.IPMax == 0 {
		cfg.Auth.LoginRateLimit.IPMax = 20
	}

	if cfg.Submit.SourceKeyPrefix == "" {
		cfg.Submit.SourceKeyPrefix = "submissions"
	}
	if cfg.Submit.MaxCodeBytes == 0 {
		cfg.Submit.MaxCodeBytes = 64 * 1024
	}
	if cfg.Submit.IdempotencyTTL == 0 {
		cfg.Submit.IdempotencyTTL = 10 * time.Minute
	}
	if cfg.Submit.RateLimit.Window == 0 {
		cfg.Submit.RateLimit.Window = time.Minute
	}
	if cfg.Submit.RateLimit.UserMax == 0 {
		cfg.Submit.RateLimit.UserMax = 10
	}
	if cfg.Submit.RateLimit.IPMax == 0 {
		cfg.Submit.RateLimit.IPMax = 30
	}
	if cfg.Submit.Timeouts.DB == 0 {
		cfg.Submit.Timeouts.DB = 3 * time.Second
	}
	if cfg.Submit.Timeouts.Cache == 0 {
		cfg.Submit.Timeouts.Cache = time.Second
	}
	if cfg.Submit.Timeouts.MQ == 0 {
		cfg.Submit.Timeouts.MQ = 3 * time.Second
	}
	if cfg.Submit.Timeouts.Storage == 0 {
		cfg.Submit.Timeouts.Storage = 5 * time.Second
	}
	if cfg.Submit.SourceBucket == "" {
		cfg.Submit.SourceBucket = cfg.MinIO.Bucket
	}
	if cfg.Video.Bucket == "" {
		cfg.Video.Bucket = cfg.MinIO.Bucket
	}
	if cfg.Video.KeyPrefix == "" {
		cfg.Video.KeyPrefix = "videos"
	}

	if cfg.Events.Stats.ConsumerGroup == "" {
		cfg.Events.Stats.ConsumerGroup = "codejudge-stats"
	}
	if cfg.Events.Cleanup.Topic == "" {
		cfg.Events.Cleanup.Topic = "problem.cleanup"
	}
	if cfg.Events.Cleanup.ConsumerGroup == "" {
		cfg.Events.Cleanup.ConsumerGroup = "codejudge-cleanup"
	}
	return nil
}
