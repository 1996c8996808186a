package middleware

import (
	"fmt"
	"net/http"

	"murmur/pkg/errors"
	"murmur/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorBody is the failure envelope.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorHandlerMiddleware renders the last error attached to the context.
func ErrorHandlerMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		appErr := errors.GetAppError(err)
		if appErr == nil {
			log.Errorw("unhandled error",
				"error", err.Error(),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"request_id", logger.RequestIDFrom(c.Request.Context()),
			)
			c.JSON(http.StatusInternalServerError, ErrorBody{
				Error:   string(errors.ErrCodeInternal),
				Message: "internal server error",
			})
			return
		}

		fields := []interface{}{
			"code", appErr.Code,
			"status", appErr.HTTPStatus,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"request_id", logger.RequestIDFrom(c.Request.Context()),
		}
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			log.Errorw(appErr.Message, append(fields, "error", appErr.Error())...)
		} else {
			log.Debugw(appErr.Message, fields...)
		}

		c.JSON(appErr.HTTPStatus, ErrorBody{
			Error:   string(appErr.Code),
			Message: appErr.Message,
		})
	}
}

// RecoveryMiddleware turns a panic into a 500 envelope.
func RecoveryMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Errorw("panic recovered",
					"error", fmt.Sprint(rec),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorBody{
					Error:   string(errors.ErrCodeInternal),
					Message: "internal server error",
				})
			}
		}()

		c.Next()
	}
}
