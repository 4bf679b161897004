package controller

import (
	"strings"
	"time"

	"codejudge/internal/common/http/middleware"
	"codejudge/internal/user/service"
	pkgerrors "codejudge/pkg/errors"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// AuthController handles auth-related HTTP endpoints.
type AuthController struct {
	authService *service.AuthService
}

// NewAuthController creates a new AuthController.
func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{authService: authService}
}

// Register handles user registration.
func (h *AuthController) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toAuthResponse(result))
}

// Login handles user login.
func (h *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
		IP:       c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, toAuthResponse(result))
}

// Logout revokes the bearer token of the request.
func (h *AuthController) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), middleware.BearerToken(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, "Logout success", nil)
}

// Me returns the caller's profile.
func (h *AuthController) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.ErrorWithCode(c, pkgerrors.Unauthorized, "")
		return
	}

	profile, err := h.authService.Me(c.Request.Context(), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, profile)
}

// RegisterRequest defines registration payload.
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest defines login payload.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse defines auth response payload.
type AuthResponse struct {
	AccessToken     string    `json:"accessToken"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
	User            UserInfo  `json:"user"`
}

// UserInfo defines basic user info payload.
type UserInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func toAuthResponse(result service.AuthResult) AuthResponse {
	return AuthResponse{
		AccessToken:     result.AccessToken,
		AccessExpiresAt: result.AccessExpiresAt,
		User: UserInfo{
			ID:       result.User.ID,
			Username: result.User.Username,
			Role:     string(result.User.Role),
		},
	}
}
