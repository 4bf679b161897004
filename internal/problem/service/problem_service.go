package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"codejudge/internal/judge0"
	"codejudge/internal/problem/repository"
	"codejudge/internal/submission/verdict"
	pkgerrors "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// Judge runs a batch of test cases to terminal results.
type Judge interface {
	Evaluate(ctx context.Context, items []judge0.BatchItem) ([]judge0.Result, error)
}

// ProblemService manages problems and grades reference solutions before accepting them.
type ProblemService struct {
	repo             repository.ProblemRepository
	stats            repository.StatsRepository
	judge            Judge
	cleanupPublisher *ProblemCleanupPublisher
}

// NewProblemService creates a new ProblemService.
func NewProblemService(repo repository.ProblemRepository, stats repository.StatsRepository, judge Judge, cleanupPublisher *ProblemCleanupPublisher) *ProblemService {
	return &ProblemService{repo: repo, stats: stats, judge: judge, cleanupPublisher: cleanupPublisher}
}

// ProblemInput carries the editable fields of a problem.
type ProblemInput struct {
	Title              string
	Description        string
	Difficulty         string
	Tags               []string
	VisibleTestCases   []repository.TestCase
	HiddenTestCases    []repository.TestCase
	StartCode          []repository.CodeSnippet
	ReferenceSolutions []repository.CodeSnippet
}

// PublicProblem is what non-admin callers see: hidden cases and reference solutions are omitted.
type PublicProblem struct {
	ID               int64                    `json:"id"`
	Title            string                   `json:"title"`
	Description      string                   `json:"description"`
	Difficulty       string                   `json:"difficulty"`
	Tags             []string                 `json:"tags"`
	VisibleTestCases []repository.TestCase    `json:"visibleTestCases"`
	StartCode        []repository.CodeSnippet `json:"startCode"`
	HiddenCaseCount  int                      `json:"hiddenCaseCount"`
}

// ListInput holds paging and filter parameters.
type ListInput struct {
	Page       int
	PageSize   int
	Difficulty string
	Tag        string
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Normalize clamps paging to sane bounds.
func (in *ListInput) Normalize() {
	if in.Page <= 0 {
		in.Page = 1
	}
	if in.PageSize <= 0 {
		in.PageSize = defaultPageSize
	}
	if in.PageSize > maxPageSize {
		in.PageSize = maxPageSize
	}
}

// CreateProblem validates input, grades every reference solution and stores the problem.
func (s *ProblemService) CreateProblem(ctx context.Context, creatorID int64, input ProblemInput) (int64, error) {
	if err := validateProblemInput(input); err != nil {
		return 0, err
	}
	if err := s.validateReferenceSolutions(ctx, input); err != nil {
		return 0, err
	}

	problem := toProblem(input)
	problem.CreatorID = creatorID
	id, err := s.repo.Create(ctx, nil, problem)
	if err != nil {
		return 0, pkgerrors.Wrap(fmt.Errorf("create problem failed: %w", err), pkgerrors.ProblemCreateFailed)
	}
	logger.Info(ctx, "problem created", zap.Int64("problem_id", id), zap.Int64("creator_id", creatorID))
	return id, nil
}

// UpdateProblem replaces a problem's editable fields after re-grading its reference solutions.
func (s *ProblemService) UpdateProblem(ctx context.Context, problemID int64, input ProblemInput) error {
	if problemID <= 0 {
		return pkgerrors.New(pkgerrors.InvalidParams)
	}
	if err := validateProblemInput(input); err != nil {
		return err
	}
	if _, err := s.GetProblem(ctx, problemID); err != nil {
		return err
	}
	if err := s.validateReferenceSolutions(ctx, input); err != nil {
		return err
	}

	problem := toProblem(input)
	problem.ID = problemID
	if err := s.repo.Update(ctx, nil, problem); err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return pkgerrors.New(pkgerrors.ProblemNotFound)
		}
		return pkgerrors.Wrap(fmt.Errorf("update problem failed: %w", err), pkgerrors.ProblemUpdateFailed)
	}
	return nil
}

// GetProblem returns the full record, hidden cases included.
func (s *ProblemService) GetProblem(ctx context.Context, problemID int64) (*repository.Problem, error) {
	if problemID <= 0 {
		return nil, pkgerrors.New(pkgerrors.InvalidParams)
	}
	problem, err := s.repo.GetByID(ctx, nil, problemID)
	if err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return nil, pkgerrors.New(pkgerrors.ProblemNotFound)
		}
		return nil, pkgerrors.Wrap(fmt.Errorf("get problem failed: %w", err), pkgerrors.DatabaseError)
	}
	return problem, nil
}

// GetPublicProblem returns the problem without hidden cases or reference solutions.
func (s *ProblemService) GetPublicProblem(ctx context.Context, problemID int64) (PublicProblem, error) {
	problem, err := s.GetProblem(ctx, problemID)
	if err != nil {
		return PublicProblem{}, err
	}
	return PublicProblem{
		ID:               problem.ID,
		Title:            problem.Title,
		Description:      problem.Description,
		Difficulty:       problem.Difficulty,
		Tags:             problem.Tags,
		VisibleTestCases: problem.VisibleTestCases,
		StartCode:        problem.StartCode,
		HiddenCaseCount:  len(problem.HiddenTestCases),
	}, nil
}

// ListProblems returns one page of problem summaries and the total match count.
func (s *ProblemService) ListProblems(ctx context.Context, input ListInput) ([]repository.ProblemSummary, int64, error) {
	input.Normalize()
	if input.Difficulty != "" && !validDifficulty(input.Difficulty) {
		return nil, 0, pkgerrors.ValidationError("difficulty", "must be easy, medium or hard")
	}
	items, total, err := s.repo.List(ctx, repository.ListFilter{
		Difficulty: input.Difficulty,
		Tag:        strings.TrimSpace(input.Tag),
		Offset:     (input.Page - 1) * input.PageSize,
		Limit:      input.PageSize,
	})
	if err != nil {
		return nil, 0, pkgerrors.Wrap(fmt.Errorf("list problems failed: %w", err), pkgerrors.DatabaseError)
	}
	return items, total, nil
}

// DeleteProblem deletes a problem by id.
func (s *ProblemService) DeleteProblem(ctx context.Context, problemID int64) error {
	if problemID <= 0 {
		return pkgerrors.New(pkgerrors.InvalidParams)
	}
	if err := s.repo.Delete(ctx, nil, problemID); err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return pkgerrors.New(pkgerrors.ProblemNotFound)
		}
		return pkgerrors.Wrap(fmt.Errorf("delete problem failed: %w", err), pkgerrors.ProblemDeleteFailed)
	}
	if s.stats != nil {
		if err := s.stats.Reset(ctx, problemID); err != nil {
			logger.Warn(ctx, "reset problem stats failed", zap.Int64("problem_id", problemID), zap.Error(err))
		}
	}
	if s.cleanupPublisher != nil {
		if err := s.cleanupPublisher.PublishProblemDeleted(ctx, problemID); err != nil {
			logger.Warn(ctx, "publish cleanup event failed", zap.Int64("problem_id", problemID), zap.Error(err))
		}
	}
	return nil
}

// GetStats returns submission counters for a problem.
func (s *ProblemService) GetStats(ctx context.Context, problemID int64) (repository.ProblemStats, error) {
	if _, err := s.GetProblem(ctx, problemID); err != nil {
		return repository.ProblemStats{}, err
	}
	stats, err := s.stats.Get(ctx, problemID)
	if err != nil {
		return repository.ProblemStats{}, pkgerrors.Wrap(fmt.Errorf("get problem stats failed: %w", err), pkgerrors.CacheError)
	}
	return stats, nil
}

// validateReferenceSolutions grades each reference solution against every visible and hidden case.
// A solution that does not come back accepted rejects the whole write.
func (s *ProblemService) validateReferenceSolutions(ctx context.Context, input ProblemInput) error {
	cases := make([]repository.TestCase, 0, len(input.VisibleTestCases)+len(input.HiddenTestCases))
	cases = append(cases, input.VisibleTestCases...)
	cases = append(cases, input.HiddenTestCases...)

	for _, ref := range input.ReferenceSolutions {
		langID, err := judge0.ResolveLanguage(ref.Language)
		if err != nil {
			return pkgerrors.Newf(pkgerrors.LanguageNotSupported, "reference solution language %q is not supported", ref.Language)
		}
		items := judge0.BuildBatch(ref.Code, langID, cases)

		results, err := s.judge.Evaluate(ctx, items)
		if err != nil {
			if errors.Is(err, judge0.ErrPollTimeout) {
				return pkgerrors.Wrapf(err, pkgerrors.JudgeTimeout, "reference solution for %s did not finish in time", ref.Language)
			}
			return judgeError(err)
		}

		v := verdict.Aggregate(results)
		if !v.Accepted() {
			logger.Info(ctx, "reference solution rejected",
				zap.String("language", ref.Language),
				zap.String("status", string(v.Status)),
				zap.Int("passed", v.Passed),
				zap.Int("total", v.Total),
			)
			return pkgerrors.Newf(pkgerrors.ReferenceSolutionInvalid,
				"reference solution for %s failed: %s", ref.Language, v.Status).
				WithDetail("language", ref.Language).
				WithDetail("passed", v.Passed).
				WithDetail("total", v.Total).
				WithDetail("errorMessage", v.ErrorMessage)
		}
	}
	return nil
}

func validateProblemInput(input ProblemInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return pkgerrors.ValidationError("title", "required")
	}
	if strings.TrimSpace(input.Description) == "" {
		return pkgerrors.ValidationError("description", "required")
	}
	if !validDifficulty(input.Difficulty) {
		return pkgerrors.ValidationError("difficulty", "must be easy, medium or hard")
	}
	if len(input.VisibleTestCases) == 0 {
		return pkgerrors.ValidationError("visibleTestCases", "at least one case is required")
	}
	if len(input.HiddenTestCases) == 0 {
		return pkgerrors.ValidationError("hiddenTestCases", "at least one case is required")
	}
	if len(input.ReferenceSolutions) == 0 {
		return pkgerrors.ValidationError("referenceSolutions", "at least one solution is required")
	}
	for _, snippet := range input.StartCode {
		if _, err := judge0.ResolveLanguage(snippet.Language); err != nil {
			return pkgerrors.ValidationError("startCode", fmt.Sprintf("unsupported language %q", snippet.Language))
		}
	}
	for _, ref := range input.ReferenceSolutions {
		if strings.TrimSpace(ref.Code) == "" {
			return pkgerrors.ValidationError("referenceSolutions", "code is required")
		}
	}
	return nil
}

func validDifficulty(d string) bool {
	switch d {
	case repository.DifficultyEasy, repository.DifficultyMedium, repository.DifficultyHard:
		return true
	}
	return false
}

func toProblem(input ProblemInput) *repository.Problem {
	return &repository.Problem{
		Title:              strings.TrimSpace(input.Title),
		Description:        input.Description,
		Difficulty:         input.Difficulty,
		Tags:               input.Tags,
		VisibleTestCases:   input.VisibleTestCases,
		HiddenTestCases:    input.HiddenTestCases,
		StartCode:          input.StartCode,
		ReferenceSolutions: input.ReferenceSolutions,
	}
}

// judgeError keeps coded judge errors and classifies anything else as the judge being unreachable.
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
