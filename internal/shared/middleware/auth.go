package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"food-ordering-backend/pkg/jwt"
)

// Context keys
const (
	ContextKeyUserID          = "user_id"
	ContextKeyRole            = "role"
	ContextKeyIsAuthenticated = "is_authenticated"
)

// AuthMiddleware rejects requests without a valid access token
func AuthMiddleware(manager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, userID, ok := parseBearer(c, manager)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "missing or invalid access token",
				},
			})
			c.Abort()
			return
		}

		setPrincipal(c, userID, claims.Role)
		c.Next()
	}
}

// OptionalAuthMiddleware lets guests through.
// A valid token sets user_id/role; anything else continues as anonymous.
func OptionalAuthMiddleware(manager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, userID, ok := parseBearer(c, manager)
		if !ok {
			c.Set(ContextKeyIsAuthenticated, false)
			c.Next()
			return
		}

		setPrincipal(c, userID, claims.Role)
		c.Next()
	}
}

func parseBearer(c *gin.Context, manager *jwt.Manager) (*jwt.Claims, uuid.UUID, bool) {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, uuid.Nil, false
	}

	claims, err := manager.ValidateAccessToken(parts[1])
	if err != nil {
		return nil, uuid.Nil, false
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, uuid.Nil, false
	}

	return claims, userID, true
}

func setPrincipal(c *gin.Context, userID uuid.UUID, role string) {
	c.Set(ContextKeyUserID, userID)
	c.Set(ContextKeyRole, role)
	c.Set(ContextKeyIsAuthenticated, true)
}

// GetAuthenticatedUserID returns the principal set by the auth middlewares
func GetAuthenticatedUserID(c *gin.Context) (*uuid.UUID, bool) {
	value, exists := c.Get(ContextKeyUserID)
	if !exists {
		return nil, false
	}

	userID, ok := value.(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return nil, false
	}

	return &userID, true
}
