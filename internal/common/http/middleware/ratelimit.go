package middleware

import (
	"fmt"
	"time"

	"codejudge/internal/common/ratelimit"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

type RateLimitPolicy struct {
	Window  time.Duration `yaml:"window"`
	UserMax int           `yaml:"userMax"`
	IPMax   int           `yaml:"ipMax"`
}

// RateLimitMiddleware enforces per-IP and per-user limits on one route.
// It must run after AuthMiddleware for the user limit to apply.
func RateLimitMiddleware(limiter *ratelimit.Service, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		if policy.IPMax > 0 {
			key := fmt.Sprintf("codejudge:rate:ip:%s:%s", c.ClientIP(), routeKey)
			if err := limiter.Allow(ctx, key, policy.IPMax, policy.Window); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		if policy.UserMax > 0 {
			if user, ok := CurrentUser(c); ok {
				key := fmt.Sprintf("codejudge:rate:user:%d:%s", user.ID, routeKey)
				if err := limiter.Allow(ctx, key, policy.UserMax, policy.Window); err != nil {
					response.AbortWithError(c, err)
					return
				}
			}
		}
		c.Next()
	}
}
