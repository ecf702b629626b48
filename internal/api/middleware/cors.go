package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows browser-based admin consoles and package browsers to call
// the registry from another origin. Credentials stay enabled so the
// session cookie survives cross-origin requests.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"Accept",
			"Origin",
			"Cache-Control",
			"X-NuGet-ApiKey",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
