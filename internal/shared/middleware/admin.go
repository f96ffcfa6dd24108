package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminMiddleware requires role=admin (set by AuthMiddleware)
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(ContextKeyRole)
		if r, ok := role.(string); !ok || r != "admin" {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "Access denied: admin role required",
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
