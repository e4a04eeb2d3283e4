package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messagehub/internal/auth"
	"messagehub/internal/models"
)

// RolePermission rejects authenticated users whose role is not listed.
// Anonymous requests pass so the auth middleware can answer 401.
func RolePermission(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		if _, ok := auth.UserIDFromContext(c); !ok {
			c.Next()
			return
		}
		role, _ := auth.RoleFromContext(c)
		if !allowed[role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to access this resource."})
			return
		}
		c.Next()
	}
}
