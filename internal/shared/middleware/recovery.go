package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"food-ordering-backend/internal/shared/response"
	"food-ordering-backend/pkg/logger"
)

// Recovery turns a handler panic into a 500 carrying the request id
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			// the client went away; nothing to answer
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			requestID := GetRequestID(c)
			fields := map[string]interface{}{
				"request_id": requestID,
				"method":     c.Request.Method,
				"path":       c.Request.URL.Path,
				"stack":      string(debug.Stack()),
			}
			if userID, ok := GetAuthenticatedUserID(c); ok {
				fields["user_id"] = userID.String()
			}
			logger.ErrorWithFields("Panic recovered", fmt.Errorf("panic: %v", rec), fields)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.ErrorWithDetails(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", gin.H{
				"requestId": requestID,
			})
			c.Abort()
		}()

		c.Next()
	}
}
