package middleware

import (
	"context"
	"strings"

	pkgerrors "codejudge/pkg/errors"
	"codejudge/pkg/utils/contextkey"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const (
	userIDContextKey   = "user_id"
	userRoleContextKey = "user_role"
)

// Identity is the authenticated caller extracted from an access token.
type Identity struct {
	ID   int64
	Role string
}

// TokenAuthenticator validates a raw bearer token.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, raw string) (Identity, error)
}

// AuthMiddleware enforces JWT validation and, when roles are given, a role check.
func AuthMiddleware(auth TokenAuthenticator, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth == nil {
			response.AbortWithErrorCode(c, pkgerrors.ServiceUnavailable, "auth service unavailable")
			return
		}

		token := BearerToken(c)
		info, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		if len(roles) > 0 && !hasRole(info.Role, roles) {
			response.AbortWithErrorCode(c, pkgerrors.Forbidden, "insufficient role")
			return
		}

		c.Set(userIDContextKey, info.ID)
		c.Set(userRoleContextKey, info.Role)
		ctx := context.WithValue(c.Request.Context(), contextkey.UserID, info.ID)
		ctx = context.WithValue(ctx, contextkey.UserRole, info.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CurrentUser returns the identity set by AuthMiddleware.
func CurrentUser(c *gin.Context) (Identity, bool) {
	id, ok := c.Get(userIDContextKey)
	if !ok {
		return Identity{}, false
	}
	userID, ok := id.(int64)
	if !ok {
		return Identity{}, false
	}
	role, _ := c.Get(userRoleContextKey)
	roleStr, _ := role.(string)
	return Identity{ID: userID, Role: roleStr}, true
}

// BearerToken returns the token from the Authorization header, or "".
func BearerToken(c *gin.Context) string {
	return extractBearerToken(c.GetHeader("Authorization"))
}

func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func hasRole(role string, allowed []string) bool {
	for _, item := range allowed {
		if strings.EqualFold(role, item) {
			return true
		}
	}
	return false
}
