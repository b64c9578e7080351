package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// RequestIDKey is the gin context key carrying the request id.
const RequestIDKey = "request_id"

// RequestIDMiddleware assigns every request a full UUID, honoring an
// id already supplied by an upstream proxy, and echoes it back in the
// response header so clients can correlate log lines.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set(RequestIDKey, requestID)
		c.Header(requestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID returns the id set by RequestIDMiddleware, or "" when
// the middleware did not run.
func GetRequestID(c *gin.Context) string {
	if id, ok := c.Get(RequestIDKey); ok {
		return id.(string)
	}
	return ""
}
