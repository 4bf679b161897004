package controller

import (
	"strconv"
	"strings"

	"codejudge/internal/common/http/middleware"
	"codejudge/internal/submission/service"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const idempotencyHeader = "Idempotency-Key"

// SubmissionController handles submission HTTP endpoints.
type SubmissionController struct {
	submitService *service.SubmitService
}

// NewSubmissionController creates a new SubmissionController.
func NewSubmissionController(submitService *service.SubmitService) *SubmissionController {
	return &SubmissionController{submitService: submitService}
}

// CodeRequest is the body of submit and run.
type CodeRequest struct {
	Code     string `json:"code" binding:"required"`
	Language string `json:"language" binding:"required"`
}

// Submit grades code against the hidden cases and records the verdict.
func (h *SubmissionController) Submit(c *gin.Context) {
	input, ok := bindCodeInput(c)
	if !ok {
		return
	}
	input.IdempotencyKey = strings.TrimSpace(c.GetHeader(idempotencyHeader))

	result, err := h.submitService.Submit(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// Run grades code against the visible cases without recording anything.
func (h *SubmissionController) Run(c *gin.Context) {
	input, ok := bindCodeInput(c)
	if !ok {
		return
	}

	result, err := h.submitService.Run(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// History lists the caller's submissions for a problem.
func (h *SubmissionController) History(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		return
	}
	user, _ := middleware.CurrentUser(c)

	items, err := h.submitService.History(c.Request.Context(), user.ID, problemID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, items)
}

// Get returns one of the caller's submissions.
func (h *SubmissionController) Get(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	submission, err := h.submitService.Get(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, submission)
}

func bindCodeInput(c *gin.Context) (service.SubmitInput, bool) {
	problemID, ok := parseProblemID(c)
	if !ok {
		return service.SubmitInput{}, false
	}
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return service.SubmitInput{}, false
	}
	user, _ := middleware.CurrentUser(c)
	return service.SubmitInput{
		ProblemID: problemID,
		UserID:    user.ID,
		Language:  req.Language,
		Code:      req.Code,
		ClientIP:  c.ClientIP(),
	}, true
}

func parseProblemID(c *gin.Context) (int64, bool) {
	problemID, err := strconv.ParseInt(c.Param("problemId"), 10, 64)
	if err != nil || problemID <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return 0, false
	}
	return problemID, true
}
