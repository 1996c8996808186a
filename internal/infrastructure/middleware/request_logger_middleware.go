package middleware

import (
	"strconv"
	"time"

	"murmur/pkg/logger"
	"murmur/pkg/tracing"
	"murmur/pkg/utils"

	"github.com/gin-gonic/gin"
)

const requestIDHeader = "X-Request-ID"

type requestObserver interface {
	ObserveHTTPRequest(method, route, status string, d time.Duration)
}

// RequestLoggerMiddleware assigns a request ID, logs each request once it
// completes and feeds the HTTP metrics. observer may be nil.
func RequestLoggerMiddleware(cl *logger.ContextLogger, observer requestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = utils.GenerateRequestID()
		}
		c.Header(requestIDHeader, requestID)

		ctx := logger.WithRequestID(c.Request.Context(), requestID)
		if traceID := tracing.TraceIDFrom(ctx); traceID != "" {
			ctx = logger.WithTraceID(ctx, traceID)
		}
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		cl.LogRequest(c.Request.Context(), c.Request.Method, route, c.Writer.Status(), elapsed.Milliseconds())
		if observer != nil {
			observer.ObserveHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), elapsed)
		}
	}
}
