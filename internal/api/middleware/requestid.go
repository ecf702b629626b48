package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/packsmith/packsmith/internal/ident"
)

// requestIDHeader carries the correlation ID back to the client.
const requestIDHeader = "X-Request-Id"

// RequestID tags every request with a correlation ID, honoring one
// supplied by a proxy.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = ident.NewRequestID()
		}
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
