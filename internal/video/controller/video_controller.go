package controller

import (
	"strconv"

	"codejudge/internal/common/http/middleware"
	"codejudge/internal/video/service"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// VideoController handles solution video endpoints.
type VideoController struct {
	videoService *service.VideoService
}

func NewVideoController(videoService *service.VideoService) *VideoController {
	return &VideoController{videoService: videoService}
}

type UploadURLRequest struct {
	ContentType string `json:"contentType" binding:"required"`
}

type ConfirmRequest struct {
	ObjectKey string `json:"objectKey" binding:"required"`
}

// UploadURL issues a presigned upload URL.
func (h *VideoController) UploadURL(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		return
	}
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	ticket, err := h.videoService.RequestUpload(c.Request.Context(), problemID, req.ContentType)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, ticket)
}

// Confirm records a finished upload.
func (h *VideoController) Confirm(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		return
	}
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	user, _ := middleware.CurrentUser(c)

	video, err := h.videoService.ConfirmUpload(c.Request.Context(), problemID, user.ID, req.ObjectKey)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, video)
}

func (h *VideoController) Get(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		return
	}

	playback, err := h.videoService.Playback(c.Request.Context(), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, playback)
}

func (h *VideoController) Delete(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		return
	}

	if err := h.videoService.Delete(c.Request.Context(), problemID); err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, "Delete success", nil)
}

func parseProblemID(c *gin.Context) (int64, bool) {
	problemID, err := strconv.ParseInt(c.Param("problemId"), 10, 64)
	if err != nil || problemID <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return 0, false
	}
	return problemID, true
}
