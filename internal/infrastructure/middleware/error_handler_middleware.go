package middleware

import (
	"net/http"

	"sfucore/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware translates the last error attached to the gin
// context into the plain-text, error-kind-prefixed body spec.md §7 requires
// ("Error bodies are plain text with a recognizable error-kind prefix").
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		appErr := errors.GetAppError(err)
		if appErr != nil {
			logger.Errorw("application error",
				"code", appErr.Code,
				"message", appErr.Message,
				"status", appErr.HTTPStatus,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
			c.String(appErr.HTTPStatus, "%s: %s", appErr.Code, appErr.Message)
			return
		}

		logger.Errorw("unhandled error",
			"error", err.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		c.String(http.StatusInternalServerError, "%s: %s", errors.ErrCodeServerError, "internal server error")
	}
}

// RecoveryMiddleware recovers from panics in a broadcaster HTTP handler and
// reports them as a ServerError instead of crashing the listener.
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				c.String(http.StatusInternalServerError, "%s: %s", errors.ErrCodeServerError, "internal server error")
				c.Abort()
			}
		}()

		c.Next()
	}
}

