package middleware

import (
	"sfucore/pkg/errors"

	"github.com/gin-gonic/gin"
)

// OriginMiddleware rejects any request whose Origin header does not match
// the configured value, the only authentication the broadcaster HTTP
// surface performs (spec.md §6 "All endpoints require Origin equal to the
// configured origin; otherwise 403"). Adapted from auth_middleware.go's
// header-check-then-abort shape; the bearer-token/JWT checks it used for
// per-user authorization have no equivalent here since broadcaster peers
// are automation participants, not end users.
func OriginMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if allowedOrigin == "" {
			c.Next()
			return
		}
		origin := c.GetHeader("Origin")
		if origin != allowedOrigin {
			_ = c.Error(errors.NewForbiddenError("origin not allowed"))
			c.Abort()
			return
		}
		c.Next()
	}
}
