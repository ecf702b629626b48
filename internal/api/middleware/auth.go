package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/packsmith/packsmith/internal/auth"
	"github.com/packsmith/packsmith/internal/metrics"
)

// userKey is the gin context key holding the authenticated user.
const userKey = "packsmith.user"

// apiKeyHeader carries "username:secret" API credentials on push requests.
const apiKeyHeader = "X-NuGet-ApiKey"

// Identify resolves the caller's identity from the session cookie, Basic
// auth, or the API key header, in that order, and stashes it in the
// request context. It never rejects: gating is left to Require.
func Identify(users *auth.Users, sessions *auth.Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user, ok := identify(c, users, sessions); ok {
			c.Set(userKey, user)
		}
		c.Next()
	}
}

// CurrentUser returns the identity resolved by Identify, if any.
func CurrentUser(c *gin.Context) (auth.UserInfo, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return auth.UserInfo{}, false
	}
	user, ok := v.(auth.UserInfo)
	return user, ok
}

// Require gates a route at the given role under the configured auth mode.
// Mode none never checks; mode publish checks only routes requiring
// publish or admin; mode full checks everything. With zero users on file
// every gated request fails closed with 401.
func Require(mode auth.Mode, required auth.Role, users *auth.Users, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		gated := false
		switch mode {
		case auth.ModeFull:
			gated = true
		case auth.ModePublish:
			gated = required >= auth.RolePublish
		}
		if !gated {
			c.Next()
			return
		}
		enforce(c, required, users, m)
	}
}

// RequireIdentity gates a route at the given role regardless of mode.
// Used for endpoints that are meaningless without a caller identity, such
// as self-service credential management.
func RequireIdentity(required auth.Role, users *auth.Users, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		enforce(c, required, users, m)
	}
}

func enforce(c *gin.Context, required auth.Role, users *auth.Users, m *metrics.Metrics) {
	// An empty user store can authorize nobody.
	if users.Count() == 0 {
		deny(c, http.StatusUnauthorized, "unauthorized", m)
		return
	}

	user, ok := CurrentUser(c)
	if !ok {
		deny(c, http.StatusUnauthorized, "unauthorized", m)
		return
	}
	if !auth.Authorize(user.Role, required) {
		deny(c, http.StatusForbidden, "forbidden", m)
		return
	}
	c.Next()
}

func deny(c *gin.Context, status int, message string, m *metrics.Metrics) {
	if m != nil {
		m.AuthFailures.Inc()
	}
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}

func identify(c *gin.Context, users *auth.Users, sessions *auth.Sessions) (auth.UserInfo, bool) {
	if token, err := c.Cookie(auth.CookieName); err == nil && token != "" {
		if sess, ok := sessions.Validate(token); ok {
			if user, ok := users.Lookup(sess.Username); ok {
				return user, true
			}
		}
	}

	if username, password, ok := c.Request.BasicAuth(); ok {
		if user, err := users.Authenticate(username, password); err == nil {
			return user, true
		}
		return auth.UserInfo{}, false
	}

	if key := c.GetHeader(apiKeyHeader); key != "" {
		username, secret, ok := strings.Cut(key, ":")
		if !ok {
			return auth.UserInfo{}, false
		}
		if user, err := users.Authenticate(username, secret); err == nil {
			return user, true
		}
	}

	return auth.UserInfo{}, false
}
