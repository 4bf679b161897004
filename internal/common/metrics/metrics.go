package metrics

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"codejudge/pkg/utils/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func metricLabels() prometheus.Labels {
	instance := os.Getenv("INSTANCE_ID")
	if instance == "" {
		instance, _ = os.Hostname()
	}
	return prometheus.Labels{"service": "codejudge", "instance": instance}
}

var reg = prometheus.WrapRegistererWith(metricLabels(), prometheus.DefaultRegisterer)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// JudgeRequestDuration covers single calls to the judge API, labelled by op (submit_batch, fetch_batch).
	JudgeRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "judge0_request_duration_seconds",
			Help:    "Latency of calls to the Judge0 API",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"op", "outcome"},
	)

	JudgePollAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "judge0_poll_attempts",
			Help:    "Number of fetches needed before every token was terminal",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
		},
	)

	JudgePollTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "judge0_poll_timeouts_total",
			Help: "Poll loops that gave up before every token was terminal",
		},
	)

	JudgeInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "judge0_inflight_batches",
			Help: "Batches currently holding a judge slot",
		},
	)

	SubmissionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_total",
			Help: "Total number of graded submissions",
		},
		[]string{"mode", "language", "status"},
	)
)

func init() {
	reg.MustRegister(RequestDuration)
	reg.MustRegister(RequestTotal)
	reg.MustRegister(JudgeRequestDuration)
	reg.MustRegister(JudgePollAttempts)
	reg.MustRegister(JudgePollTimeouts)
	reg.MustRegister(JudgeInflight)
	reg.MustRegister(SubmissionTotal)
}

// Server exposes /metrics on its own listener.
type Server struct {
	srv *http.Server
}

// StartServer starts a background HTTP server for Prometheus metrics.
func StartServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info(context.Background(), "metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "metrics server failed", zap.Error(err))
		}
	}()
	return &Server{srv: srv}
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
