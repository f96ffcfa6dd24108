package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"food-ordering-backend/pkg/logger"
)

// GuestCartMerger folds a guest session cart into the user's cart
type GuestCartMerger interface {
	MergeGuestCart(ctx context.Context, sessionID string, userID uuid.UUID) error
}

const (
	SessionCookieName   = "session_id"
	SessionHeaderName   = "X-Session-ID"
	SessionMaxAge       = 60 * 60 * 24 * 30 // 30 days
	ContextKeySessionID = "session_id"
)

// CartMiddlewareConfig holds configuration for cart middleware
type CartMiddlewareConfig struct {
	Merger       GuestCartMerger
	CookieDomain string
	CookiePath   string
	CookieSecure bool
}

// DefaultCartMiddlewareConfig returns secure defaults
func DefaultCartMiddlewareConfig(merger GuestCartMerger) CartMiddlewareConfig {
	return CartMiddlewareConfig{
		Merger:       merger,
		CookiePath:   "/",
		CookieSecure: true,
	}
}

// CartMiddleware identifies the cart owner. Runs after OptionalAuthMiddleware.
//
// Flow:
//  1. Authenticated with a leftover guest session -> merge guest cart, drop cookie
//  2. Authenticated -> nothing else to do, the user id owns the cart
//  3. Anonymous -> reuse session id from cookie/header or mint a new one
func CartMiddleware(config CartMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := getSessionID(c)

		if userID, ok := GetAuthenticatedUserID(c); ok {
			if sessionID != "" && config.Merger != nil {
				if err := config.Merger.MergeGuestCart(c.Request.Context(), sessionID, *userID); err != nil {
					logger.ErrorWithFields("Failed to merge guest cart", err, map[string]interface{}{
						"user_id":    userID.String(),
						"session_id": sessionID,
					})
				} else {
					clearSessionCookie(c, config)
				}
			}
			c.Next()
			return
		}

		if sessionID == "" {
			sessionID = uuid.New().String()
			setSessionCookie(c, sessionID, config)
		}

		c.Set(ContextKeySessionID, sessionID)
		c.Next()
	}
}

// getSessionID reads the guest session from cookie, then header.
// Non-UUID values are ignored.
func getSessionID(c *gin.Context) string {
	sessionID, err := c.Cookie(SessionCookieName)
	if err != nil || sessionID == "" {
		sessionID = c.GetHeader(SessionHeaderName)
	}

	if _, err := uuid.Parse(sessionID); err != nil {
		return ""
	}
	return sessionID
}

func setSessionCookie(c *gin.Context, sessionID string, config CartMiddlewareConfig) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, sessionID, SessionMaxAge, config.CookiePath, config.CookieDomain, config.CookieSecure, true)
}

func clearSessionCookie(c *gin.Context, config CartMiddlewareConfig) {
	c.SetCookie(SessionCookieName, "", -1, config.CookiePath, config.CookieDomain, config.CookieSecure, true)
}

// GetSessionID returns the guest session set by CartMiddleware
func GetSessionID(c *gin.Context) string {
	return c.GetString(ContextKeySessionID)
}
