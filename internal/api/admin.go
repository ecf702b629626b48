package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/packsmith/packsmith/internal/api/middleware"
	"github.com/packsmith/packsmith/internal/auth"
)

type loginRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"rememberMe"`
}

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

type updateUserRequest struct {
	Password string `json:"password"`
	Role     string `json:"role"`
}

type createCredentialRequest struct {
	Label string `json:"label" binding:"required"`
}

// Login authenticates a username/password pair and issues a session
// cookie. Failures are uniform regardless of cause.
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.users.Authenticate(req.Username, req.Password)
	if err != nil {
		h.metrics.AuthFailures.Inc()
		apiError(c, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
		return
	}

	sess := h.sessions.Issue(user.Username, req.RememberMe)
	maxAge := int(sess.ExpiresAt.Sub(sess.CreatedAt).Seconds())
	c.SetCookie(auth.CookieName, sess.Token, maxAge, "/", "", false, true)

	h.log.Info("user logged in", zap.String("username", user.Username))
	c.JSON(http.StatusOK, user)
}

// Logout revokes the current session and clears the cookie.
func (h *Handlers) Logout(c *gin.Context) {
	if token, err := c.Cookie(auth.CookieName); err == nil {
		h.sessions.Revoke(token)
	}
	c.SetCookie(auth.CookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// SessionStatus reports the caller's identity, if any.
func (h *Handlers) SessionStatus(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"username":      user.Username,
		"role":          user.Role,
	})
}

// ListUsers returns every account without secrets.
func (h *Handlers) ListUsers(c *gin.Context) {
	c.JSON(http.StatusOK, h.users.List())
}

// CreateUser registers a new account.
func (h *Handlers) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "username and password are required")
		return
	}

	role := auth.RoleRead
	if req.Role != "" {
		parsed, err := auth.ParseRole(req.Role)
		if err != nil {
			apiError(c, http.StatusBadRequest, err.Error())
			return
		}
		role = parsed
	}

	if err := h.users.Create(req.Username, req.Password, role); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, auth.ErrUserExists) {
			status = http.StatusConflict
		}
		apiError(c, status, err.Error())
		return
	}

	user, _ := h.users.Lookup(req.Username)
	h.log.Info("user created",
		zap.String("username", user.Username),
		zap.Stringer("role", user.Role))
	c.JSON(http.StatusCreated, user)
}

// UpdateUser changes an account's role and/or password.
func (h *Handlers) UpdateUser(c *gin.Context) {
	username := c.Param("username")

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Password == "" && req.Role == "" {
		apiError(c, http.StatusBadRequest, "nothing to update")
		return
	}

	if req.Role != "" {
		role, err := auth.ParseRole(req.Role)
		if err != nil {
			apiError(c, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.users.SetRole(username, role); err != nil {
			apiError(c, userErrorStatus(err), err.Error())
			return
		}
	}
	if req.Password != "" {
		if err := h.users.SetPassword(username, req.Password); err != nil {
			apiError(c, userErrorStatus(err), err.Error())
			return
		}
	}

	user, _ := h.users.Lookup(username)
	c.JSON(http.StatusOK, user)
}

// DeleteUser removes an account and revokes its sessions.
func (h *Handlers) DeleteUser(c *gin.Context) {
	username := c.Param("username")
	if err := h.users.Delete(username); err != nil {
		apiError(c, userErrorStatus(err), err.Error())
		return
	}
	h.sessions.RevokeUser(username)
	h.log.Info("user deleted", zap.String("username", username))
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

// ListCredentials returns the caller's API credentials without secrets.
func (h *Handlers) ListCredentials(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	creds, err := h.users.Credentials(user.Username)
	if err != nil {
		apiError(c, userErrorStatus(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, creds)
}

// CreateCredential mints a new API credential for the caller. The secret
// is returned exactly once.
func (h *Handlers) CreateCredential(c *gin.Context) {
	var req createCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "label is required")
		return
	}

	user, _ := middleware.CurrentUser(c)
	secret, info, err := h.users.CreateCredential(user.Username, req.Label)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, auth.ErrLabelTaken) {
			status = http.StatusConflict
		}
		apiError(c, status, err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"label":     info.Label,
		"createdAt": info.CreatedAt,
		"secret":    secret,
	})
}

// DeleteCredential revokes one of the caller's API credentials by label.
func (h *Handlers) DeleteCredential(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	if err := h.users.DeleteCredential(user.Username, c.Param("label")); err != nil {
		apiError(c, userErrorStatus(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "credential revoked"})
}

func userErrorStatus(err error) int {
	if errors.Is(err, auth.ErrUserNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}
