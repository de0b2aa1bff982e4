package middleware

import (
	"github.com/gin-gonic/gin"

	mwopts "github.com/kart-io/scholar-x/pkg/options/middleware"
	"github.com/kart-io/scholar-x/pkg/utils/id"
)

// requestIDKey is the gin context key under which the request ID is stored.
const requestIDKey = "request_id"

// RequestID returns a middleware that attaches a unique ID to every request.
// An incoming ID in the configured header is reused so IDs propagate across
// services; otherwise a UUID is generated. The ID is stored in the gin
// context and echoed in the response header.
func RequestID(opts mwopts.RequestIDOptions) gin.HandlerFunc {
	header := opts.Header
	if header == "" {
		header = "X-Request-ID"
	}

	return func(c *gin.Context) {
		requestID := c.GetHeader(header)
		if requestID == "" {
			requestID = id.NewUUID()
		}

		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(header, requestID)

		c.Next()
	}
}

// GetRequestID returns the request ID stored by the RequestID middleware,
// or "" when the middleware did not run.
func GetRequestID(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
