package middleware

import (
	"murmur/pkg/errors"
	"murmur/pkg/tracing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TracingMiddleware opens a server span per request. The span is named after
// the route template so message IDs do not explode span cardinality.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracing.TraceHTTPRequest(c.Request.Context(), c.Request.Method, route)
		defer span.End()

		span.SetAttributes(attribute.String("http.client_ip", c.ClientIP()))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if id, ok := IdentityFromContext(c); ok {
			span.SetAttributes(tracing.UserIDKey.String(string(id.ID)))
		}

		if len(c.Errors) > 0 {
			if appErr := errors.GetAppError(c.Errors.Last().Err); appErr != nil {
				span.SetAttributes(attribute.String("app.error_code", string(appErr.Code)))
			}
		}
		if status >= 500 {
			span.SetStatus(codes.Error, c.Errors.String())
		}
	}
}
