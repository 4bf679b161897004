package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"codejudge/internal/common/metrics"
	"codejudge/internal/common/mq"
	"codejudge/internal/common/storage"
	"codejudge/internal/judge0"
	problemRepo "codejudge/internal/problem/repository"
	"codejudge/internal/submission/model"
	"codejudge/internal/submission/repository"
	"codejudge/internal/submission/verdict"
	pkgerrors "codejudge/pkg/errors"
	"codejudge/pkg/utils/contextkey"
	"codejudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	rateUserKeyPrefix   = "submit:rate:user:"
	rateIPKeyPrefix     = "submit:rate:ip:"
	defaultSourcePrefix = "submissions"
	defaultMaxCodeBytes = 64 * 1024
	defaultHistoryLimit = 50
	modeSubmit          = "submit"
	modeRun             = "run"
	sourceContentType   = "text/plain; charset=utf-8"
)

// Judge grades one batch and returns a terminal result per item, in item order.
type Judge interface {
	Evaluate(ctx context.Context, items []judge0.BatchItem) ([]judge0.Result, error)
}

// ProblemReader loads the full problem, hidden cases included.
type ProblemReader interface {
	GetProblem(ctx context.Context, problemID int64) (*problemRepo.Problem, error)
}

// SolvedMarker records that a user has an accepted submission for a problem.
type SolvedMarker interface {
	MarkSolved(ctx context.Context, userID, problemID int64) error
}

// RateLimiter counts hits on a key within a window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) error
}

// RateLimitConfig holds throttling configuration.
type RateLimitConfig struct {
	UserMax int           `yaml:"userMax"`
	IPMax   int           `yaml:"ipMax"`
	Window  time.Duration `yaml:"window"`
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Cache   time.Duration `yaml:"cache"`
	MQ      time.Duration `yaml:"mq"`
	Storage time.Duration `yaml:"storage"`
}

// Config holds submit service dependencies and settings.
type Config struct {
	SubmissionRepo repository.SubmissionRepository
	Idempotency    repository.IdempotencyStore
	Problems       ProblemReader
	Judge          Judge
	Solved         SolvedMarker
	Limiter        RateLimiter
	Storage        storage.ObjectStorage
	Events         mq.Producer

	EventTopic      string
	SourceBucket    string
	SourceKeyPrefix string
	MaxCodeBytes    int
	HistoryLimit    int
	RateLimit       RateLimitConfig
	Timeouts        TimeoutConfig
}

// SubmitService grades submissions and runs.
type SubmitService struct {
	submissionRepo repository.SubmissionRepository
	idempotency    repository.IdempotencyStore
	problems       ProblemReader
	judge          Judge
	solved         SolvedMarker
	limiter        RateLimiter
	storage        storage.ObjectStorage
	events         mq.Producer

	eventTopic      string
	sourceBucket    string
	sourceKeyPrefix string
	maxCodeBytes    int
	historyLimit    int
	rateLimit       RateLimitConfig
	timeouts        TimeoutConfig
}

// SubmitInput describes a graded submission request.
type SubmitInput struct {
	ProblemID      int64
	UserID         int64
	Language       string
	Code           string
	IdempotencyKey string
	ClientIP       string
}

// SubmitResult is returned once the submission row holds its verdict.
type SubmitResult struct {
	SubmissionID    string         `json:"submissionId"`
	Accepted        bool           `json:"accepted"`
	Status          verdict.Status `json:"status"`
	TotalTestCases  int            `json:"totalTestCases"`
	PassedTestCases int            `json:"passedTestCases"`
	Runtime         float64        `json:"runtime"`
	Memory          int64          `json:"memory"`
	ErrorMessage    string         `json:"errorMessage,omitempty"`
}

// CaseResult is the outcome of one visible case in a run.
type CaseResult struct {
	Stdin          string  `json:"stdin"`
	ExpectedOutput string  `json:"expectedOutput"`
	Stdout         string  `json:"stdout"`
	StatusID       int     `json:"statusId"`
	Status         string  `json:"status"`
	Passed         bool    `json:"passed"`
	Runtime        float64 `json:"runtime"`
	Memory         int64   `json:"memory"`
	Stderr         string  `json:"stderr,omitempty"`
	CompileOutput  string  `json:"compileOutput,omitempty"`
}

// RunResult reports a run against the visible cases. Nothing is persisted.
type RunResult struct {
	Success      bool           `json:"success"`
	Status       verdict.Status `json:"status"`
	TestCases    []CaseResult   `json:"testCases"`
	Runtime      float64        `json:"runtime"`
	Memory       int64          `json:"memory"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

// NewSubmitService creates a new submit service.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem reader is required")
	}
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge is required")
	}
	if cfg.SourceKeyPrefix == "" {
		cfg.SourceKeyPrefix = defaultSourcePrefix
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.EventTopic == "" {
		cfg.EventTopic = model.TopicSubmissionJudged
	}
	return &SubmitService{
		submissionRepo:  cfg.SubmissionRepo,
		idempotency:     cfg.Idempotency,
		problems:        cfg.Problems,
		judge:           cfg.Judge,
		solved:          cfg.Solved,
		limiter:         cfg.Limiter,
		storage:         cfg.Storage,
		events:          cfg.Events,
		eventTopic:      cfg.EventTopic,
		sourceBucket:    cfg.SourceBucket,
		sourceKeyPrefix: cfg.SourceKeyPrefix,
		maxCodeBytes:    cfg.MaxCodeBytes,
		historyLimit:    cfg.HistoryLimit,
		rateLimit:       cfg.RateLimit,
		timeouts:        cfg.Timeouts,
	}, nil
}

// Submit grades code against the problem's hidden cases and records the verdict.
//
// The pending row is written before the judge is contacted and finalized exactly once.
// A judge poll timeout is a timeout verdict, not an error. Any other judge failure
// finalizes the row as error and is returned to the caller.
func (s *SubmitService) Submit(ctx context.Context, input SubmitInput) (SubmitResult, error) {
	langID, err := s.validateInput(input.ProblemID, input.UserID, input.Language, input.Code)
	if err != nil {
		return SubmitResult{}, err
	}
	if err := s.checkRateLimit(ctx, input.UserID, input.ClientIP); err != nil {
		return SubmitResult{}, err
	}

	idemKey := strings.TrimSpace(input.IdempotencyKey)
	acquired, existingID, err := s.acquireIdempotency(ctx, input.UserID, input.ProblemID, idemKey)
	if err != nil {
		return SubmitResult{}, err
	}
	if !acquired {
		return s.replay(ctx, input.UserID, existingID)
	}

	problem, err := s.loadProblem(ctx, input.ProblemID)
	if err != nil {
		s.releaseIdempotency(ctx, input.UserID, input.ProblemID, idemKey, acquired)
		return SubmitResult{}, err
	}
	if len(problem.HiddenTestCases) == 0 {
		s.releaseIdempotency(ctx, input.UserID, input.ProblemID, idemKey, acquired)
		return SubmitResult{}, pkgerrors.New(pkgerrors.InvalidParams).WithMessage("problem has no hidden test cases")
	}

	language := judge0.NormalizeLanguage(input.Language)
	submissionID := uuid.NewString()
	ctx = contextkey.WithSubmission(ctx, submissionID)
	submission := &repository.Submission{
		ID:         submissionID,
		UserID:     input.UserID,
		ProblemID:  input.ProblemID,
		Language:   language,
		Code:       input.Code,
		CasesTotal: len(problem.HiddenTestCases),
		SourceHash: hashSource(input.Code),
	}
	submission.SourceKey = s.archiveSource(ctx, submissionID, input.Code)

	if err := s.createSubmission(ctx, submission); err != nil {
		s.releaseIdempotency(ctx, input.UserID, input.ProblemID, idemKey, acquired)
		return SubmitResult{}, err
	}

	// The row must reach a terminal status even if the client goes away mid-judge.
	judgeCtx := context.WithoutCancel(ctx)
	items := judge0.BuildBatch(input.Code, langID, problem.HiddenTestCases)
	results, judgeErr := s.judge.Evaluate(judgeCtx, items)

	var v verdict.Verdict
	switch {
	case judgeErr == nil:
		v = verdict.Aggregate(results)
	case errors.Is(judgeErr, judge0.ErrPollTimeout):
		v = verdict.TimeoutVerdict(len(items))
		judgeErr = nil
	default:
		v = verdict.UnavailableVerdict(len(items))
		judgeErr = judgeError(judgeErr)
	}

	if err := s.finalize(judgeCtx, submissionID, v); err != nil {
		s.releaseIdempotency(ctx, input.UserID, input.ProblemID, idemKey, acquired)
		return SubmitResult{}, err
	}
	metrics.SubmissionTotal.WithLabelValues(modeSubmit, language, string(v.Status)).Inc()

	if judgeErr != nil {
		logger.Warn(ctx, "submission judge failed", zap.Error(judgeErr))
		s.releaseIdempotency(ctx, input.UserID, input.ProblemID, idemKey, acquired)
		return SubmitResult{}, judgeErr
	}

	if v.Accepted() && s.solved != nil {
		if err := s.solved.MarkSolved(judgeCtx, input.UserID, input.ProblemID); err != nil {
			logger.Error(ctx, "mark problem solved failed",
				zap.Int64("problem_id", input.ProblemID),
				zap.Error(err),
			)
		}
	}
	s.publishJudged(judgeCtx, submission, v)
	s.finalizeIdempotency(ctx, input.UserID, input.ProblemID, idemKey, submissionID, acquired)

	return toSubmitResult(submissionID, v), nil
}

// Run grades code against the visible cases and returns per-case results.
// The submission repository and the solved set are never touched.
func (s *SubmitService) Run(ctx context.Context, input SubmitInput) (RunResult, error) {
	langID, err := s.validateInput(input.ProblemID, input.UserID, input.Language, input.Code)
	if err != nil {
		return RunResult{}, err
	}
	if err := s.checkRateLimit(ctx, input.UserID, input.ClientIP); err != nil {
		return RunResult{}, err
	}
	problem, err := s.loadProblem(ctx, input.ProblemID)
	if err != nil {
		return RunResult{}, err
	}
	language := judge0.NormalizeLanguage(input.Language)
	if len(problem.VisibleTestCases) == 0 {
		return RunResult{Success: true, Status: verdict.StatusAccepted, TestCases: []CaseResult{}}, nil
	}

	items := judge0.BuildBatch(input.Code, langID, problem.VisibleTestCases)
	results, err := s.judge.Evaluate(ctx, items)
	if err != nil {
		if errors.Is(err, judge0.ErrPollTimeout) {
			v := verdict.TimeoutVerdict(len(items))
			metrics.SubmissionTotal.WithLabelValues(modeRun, language, string(v.Status)).Inc()
			return RunResult{Status: v.Status, TestCases: []CaseResult{}, ErrorMessage: v.ErrorMessage}, nil
		}
		return RunResult{}, judgeError(err)
	}

	v := verdict.Aggregate(results)
	metrics.SubmissionTotal.WithLabelValues(modeRun, language, string(v.Status)).Inc()

	// Results come back in item order, so case i is VisibleTestCases[i].
	cases := make([]CaseResult, 0, len(results))
	for i, r := range results {
		tc := problem.VisibleTestCases[i]
		cases = append(cases, CaseResult{
			Stdin:          tc.Input,
			ExpectedOutput: tc.Output,
			Stdout:         r.Stdout,
			StatusID:       r.Code(),
			Status:         r.Description(),
			Passed:         r.Code() == judge0.StatusAccepted,
			Runtime:        float64(r.Time),
			Memory:         r.Memory,
			Stderr:         r.Stderr,
			CompileOutput:  r.CompileOutput,
		})
	}
	return RunResult{
		Success:      v.Accepted(),
		Status:       v.Status,
		TestCases:    cases,
		Runtime:      v.Runtime,
		Memory:       v.Memory,
		ErrorMessage: v.ErrorMessage,
	}, nil
}

// Get returns one submission. Only its owner may read it.
func (s *SubmitService) Get(ctx context.Context, userID int64, submissionID string) (*repository.Submission, error) {
	if strings.TrimSpace(submissionID) == "" {
		return nil, pkgerrors.ValidationError("submission_id", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	submission, err := s.submissionRepo.GetByID(ctxDB.ctx, nil, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, pkgerrors.New(pkgerrors.SubmissionNotFound)
		}
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "get submission failed")
	}
	if submission.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.PermissionDenied).WithMessage("submission belongs to another user")
	}
	return submission, nil
}

// History lists the caller's submissions for one problem, newest first.
func (s *SubmitService) History(ctx context.Context, userID, problemID int64) ([]repository.SubmissionSummary, error) {
	if problemID <= 0 {
		return nil, pkgerrors.ValidationError("problem_id", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	items, err := s.submissionRepo.ListByUserProblem(ctxDB.ctx, userID, problemID, s.historyLimit)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "list submissions failed")
	}
	return items, nil
}

func (s *SubmitService) validateInput(problemID, userID int64, language, code string) (judge0.LanguageID, error) {
	if problemID <= 0 {
		return 0, pkgerrors.ValidationError("problem_id", "required")
	}
	if userID <= 0 {
		return 0, pkgerrors.ValidationError("user_id", "required")
	}
	if strings.TrimSpace(code) == "" {
		return 0, pkgerrors.ValidationError("code", "required")
	}
	if len(code) > s.maxCodeBytes {
		return 0, pkgerrors.New(pkgerrors.CodeTooLarge).WithMessage("source code too large")
	}
	if strings.TrimSpace(language) == "" {
		return 0, pkgerrors.ValidationError("language", "required")
	}
	langID, err := judge0.ResolveLanguage(language)
	if err != nil {
		return 0, pkgerrors.Newf(pkgerrors.LanguageNotSupported, "language %q is not supported", language)
	}
	return langID, nil
}

func (s *SubmitService) loadProblem(ctx context.Context, problemID int64) (*problemRepo.Problem, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	problem, err := s.problems.GetProblem(ctxDB.ctx, problemID)
	if err != nil {
		return nil, err
	}
	return problem, nil
}

func (s *SubmitService) replay(ctx context.Context, userID int64, submissionID string) (SubmitResult, error) {
	if submissionID == "" || submissionID == repository.ProcessingMarker {
		return SubmitResult{}, pkgerrors.New(pkgerrors.SubmissionInProgress)
	}
	submission, err := s.Get(ctx, userID, submissionID)
	if err != nil {
		return SubmitResult{}, err
	}
	if !submission.Status.Terminal() {
		return SubmitResult{}, pkgerrors.New(pkgerrors.SubmissionInProgress)
	}
	return toSubmitResult(submission.ID, verdict.Verdict{
		Status:       submission.Status,
		Passed:       submission.CasesPassed,
		Total:        submission.CasesTotal,
		Runtime:      submission.Runtime,
		Memory:       submission.Memory,
		ErrorMessage: submission.ErrorMessage,
	}), nil
}

func (s *SubmitService) acquireIdempotency(ctx context.Context, userID, problemID int64, key string) (bool, string, error) {
	if key == "" || s.idempotency == nil {
		return true, "", nil
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	reserved, existing, err := s.idempotency.Reserve(ctxCache.ctx, userID, problemID, key)
	if err != nil {
		return false, "", pkgerrors.Wrapf(err, pkgerrors.CacheError, "reserve idempotency key failed")
	}
	return reserved, existing, nil
}

func (s *SubmitService) finalizeIdempotency(ctx context.Context, userID, problemID int64, key, submissionID string, acquired bool) {
	if !acquired || key == "" || s.idempotency == nil {
		return
	}
	ctxCache := withTimeout(context.WithoutCancel(ctx), s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.idempotency.Complete(ctxCache.ctx, userID, problemID, key, submissionID); err != nil {
		logger.Warn(ctx, "update idempotency key failed", zap.Error(err))
	}
}

func (s *SubmitService) releaseIdempotency(ctx context.Context, userID, problemID int64, key string, acquired bool) {
	if !acquired || key == "" || s.idempotency == nil {
		return
	}
	ctxCache := withTimeout(context.WithoutCancel(ctx), s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.idempotency.Release(ctxCache.ctx, userID, problemID, key); err != nil {
		logger.Warn(ctx, "release idempotency key failed", zap.Error(err))
	}
}

func (s *SubmitService) checkRateLimit(ctx context.Context, userID int64, clientIP string) error {
	if s.limiter == nil || s.rateLimit.Window <= 0 {
		return nil
	}
	if s.rateLimit.UserMax > 0 && userID > 0 {
		if err := s.allow(ctx, fmt.Sprintf("%s%d", rateUserKeyPrefix, userID), s.rateLimit.UserMax); err != nil {
			return err
		}
	}
	if s.rateLimit.IPMax > 0 && clientIP != "" {
		if err := s.allow(ctx, rateIPKeyPrefix+clientIP, s.rateLimit.IPMax); err != nil {
			return err
		}
	}
	return nil
}

func (s *SubmitService) allow(ctx context.Context, key string, max int) error {
	err := s.limiter.Allow(ctx, key, max, s.rateLimit.Window)
	if err == nil {
		return nil
	}
	if pkgerrors.GetCode(err) == pkgerrors.TooManyRequests {
		return pkgerrors.New(pkgerrors.SubmitTooFrequently)
	}
	return err
}

// archiveSource uploads the source and returns its key, or "" when archiving is off or fails.
func (s *SubmitService) archiveSource(ctx context.Context, submissionID, code string) string {
	if s.storage == nil || s.sourceBucket == "" {
		return ""
	}
	objectKey := s.buildSourceKey(submissionID)
	reader := io.NopCloser(strings.NewReader(code))
	defer reader.Close()
	ctxStorage := withTimeout(ctx, s.timeouts.Storage)
	defer ctxStorage.cancel()
	if err := s.storage.PutObject(ctxStorage.ctx, s.sourceBucket, objectKey, reader, int64(len(code)), sourceContentType); err != nil {
		logger.Warn(ctx, "archive submission source failed",
			zap.String("submission_id", submissionID),
			zap.Error(err),
		)
		return ""
	}
	return objectKey
}

func (s *SubmitService) createSubmission(ctx context.Context, submission *repository.Submission) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissionRepo.Create(ctxDB.ctx, nil, submission); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.SubmissionCreateFailed, "create submission failed")
	}
	return nil
}

func (s *SubmitService) finalize(ctx context.Context, submissionID string, v verdict.Verdict) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissionRepo.Finalize(ctxDB.ctx, nil, submissionID, v); err != nil {
		logger.Error(ctx, "finalize submission failed",
			zap.String("submission_id", submissionID),
			zap.String("status", string(v.Status)),
			zap.Error(err),
		)
		return pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "record verdict failed")
	}
	return nil
}

func (s *SubmitService) publishJudged(ctx context.Context, submission *repository.Submission, v verdict.Verdict) {
	if s.events == nil {
		return
	}
	event := model.JudgedEvent{
		SubmissionID: submission.ID,
		UserID:       submission.UserID,
		ProblemID:    submission.ProblemID,
		Language:     submission.Language,
		Status:       string(v.Status),
		Passed:       v.Passed,
		Total:        v.Total,
		JudgedAt:     time.Now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		logger.Warn(ctx, "encode judged event failed", zap.Error(err))
		return
	}
	message := mq.NewMessage(submission.ID, body)
	ctxMQ := withTimeout(ctx, s.timeouts.MQ)
	defer ctxMQ.cancel()
	if err := s.events.Publish(ctxMQ.ctx, s.eventTopic, message); err != nil {
		logger.Warn(ctx, "publish judged event failed",
			zap.String("submission_id", submission.ID),
			zap.Error(err),
		)
	}
}

func (s *SubmitService) buildSourceKey(submissionID string) string {
	return fmt.Sprintf("%s/%s/source.code", s.sourceKeyPrefix, submissionID)
}

func toSubmitResult(submissionID string, v verdict.Verdict) SubmitResult {
	return SubmitResult{
		SubmissionID:    submissionID,
		Accepted:        v.Accepted(),
		Status:          v.Status,
		TotalTestCases:  v.Total,
		PassedTestCases: v.Passed,
		Runtime:         v.Runtime,
		Memory:          v.Memory,
		ErrorMessage:    v.ErrorMessage,
	}
}

func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

func judgeError(err error) error {
	var coded *pkgerrors.Error
	if errors.As(err, &coded) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(err, pkgerrors.Timeout)
	}
	return pkgerrors.Wrap(err, pkgerrors.JudgeUnavailable)
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
