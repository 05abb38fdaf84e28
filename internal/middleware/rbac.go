package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-reschedule-api/internal/models"
	appErrors "github.com/noah-isme/sma-reschedule-api/pkg/errors"
	"github.com/noah-isme/sma-reschedule-api/pkg/response"
)

// RBAC enforces role-based access control for routes. The pseudo role SELF
// admits a caller whose user id matches the route's teacherId or id param.
func RBAC(allowed ...string) gin.HandlerFunc {
	allowSelf := false
	allowedRoles := make(map[models.UserRole]struct{})
	for _, a := range allowed {
		if a == "SELF" {
			allowSelf = true
			continue
		}
		allowedRoles[models.UserRole(a)] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		if allowSelf && selfTarget(c) != "" && selfTarget(c) == claims.UserID {
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}

func selfTarget(c *gin.Context) string {
	if id := c.Param("teacherId"); id != "" {
		return id
	}
	return c.Param("id")
}
