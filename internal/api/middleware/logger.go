package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/packsmith/packsmith/internal/logging"
)

// Logger logs one line per request. Probe endpoints are skipped to keep
// the log readable under scraping.
func Logger(log *logging.Logger) gin.HandlerFunc {
	log = log.Named("http")
	skip := map[string]struct{}{
		"/health":  {},
		"/metrics": {},
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if _, ok := skip[c.Request.URL.Path]; ok {
			return
		}

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("requestId", c.Writer.Header().Get(requestIDHeader)),
			zap.String("clientIp", c.ClientIP()))
	}
}
