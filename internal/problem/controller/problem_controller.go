package controller

import (
	"strconv"

	"codejudge/internal/common/http/middleware"
	"codejudge/internal/problem/repository"
	"codejudge/internal/problem/service"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ProblemController handles problem HTTP endpoints.
type ProblemController struct {
	problemService *service.ProblemService
}

// NewProblemController creates a new ProblemController.
func NewProblemController(problemService *service.ProblemService) *ProblemController {
	return &ProblemController{problemService: problemService}
}

// Create handles problem creation.
func (h *ProblemController) Create(c *gin.Context) {
	var req ProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	user, _ := middleware.CurrentUser(c)

	id, err := h.problemService.CreateProblem(c.Request.Context(), user.ID, req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, CreateProblemResponse{ID: id})
}

// Update replaces a problem.
func (h *ProblemController) Update(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		return
	}
	var req ProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	if err := h.problemService.UpdateProblem(c.Request.Context(), problemID, req.toInput()); err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, "Update success", nil)
}

// Get returns the public view of a problem.
func (h *ProblemController) Get(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		return
	}

	problem, err := h.problemService.GetPublicProblem(c.Request.Context(), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, problem)
}

// GetFull returns every field, hidden cases and reference solutions included.
func (h *ProblemController) GetFull(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		return
	}

	problem, err := h.problemService.GetProblem(c.Request.Context(), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, problem)
}

// List returns one page of problems.
func (h *ProblemController) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	input := service.ListInput{
		Page:       page,
		PageSize:   pageSize,
		Difficulty: c.Query("difficulty"),
		Tag:        c.Query("tag"),
	}
	input.Normalize()
	items, total, err := h.problemService.ListProblems(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithPagination(c, items, total, input.Page, input.PageSize)
}

// Stats returns submission counters for a problem.
func (h *ProblemController) Stats(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		return
	}

	stats, err := h.problemService.GetStats(c.Request.Context(), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, stats)
}

// Delete handles problem deletion.
func (h *ProblemController) Delete(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		return
	}

	if err := h.problemService.DeleteProblem(c.Request.Context(), problemID); err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, "Delete success", nil)
}

func parseProblemID(c *gin.Context) (int64, bool) {
	problemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || problemID <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return 0, false
	}
	return problemID, true
}

// ProblemRequest defines the create and update payload.
type ProblemRequest struct {
	Title              string                   `json:"title" binding:"required"`
	Description        string                   `json:"description" binding:"required"`
	Difficulty         string                   `json:"difficulty" binding:"required"`
	Tags               []string                 `json:"tags"`
	VisibleTestCases   []repository.TestCase    `json:"visibleTestCases"`
	HiddenTestCases    []repository.TestCase    `json:"hiddenTestCases"`
	StartCode          []repository.CodeSnippet `json:"startCode"`
	ReferenceSolutions []repository.CodeSnippet `json:"referenceSolutions"`
}

func (r ProblemRequest) toInput() service.ProblemInput {
	return service.ProblemInput{
		Title:              r.Title,
		Description:        r.Description,
		Difficulty:         r.Difficulty,
		Tags:               r.Tags,
		VisibleTestCases:   r.VisibleTestCases,
		HiddenTestCases:    r.HiddenTestCases,
		StartCode:          r.StartCode,
		ReferenceSolutions: r.ReferenceSolutions,
	}
}

// CreateProblemResponse defines problem creation response payload.
type CreateProblemResponse struct {
	ID int64 `json:"id"`
}
