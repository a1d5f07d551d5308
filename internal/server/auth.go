package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	appuserdomain "github.com/smallbiznis/posbridge/internal/appuser/domain"
	obscontext "github.com/smallbiznis/posbridge/internal/observability/context"
	"github.com/smallbiznis/posbridge/internal/observability/logger"
	"go.uber.org/zap"
)

const contextUserKey = "app_user"

var ErrPasswordChangeRequired = errors.New("password_change_required")

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Login exchanges operator credentials for a bearer token.
func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := obscontext.WithOperation(c.Request.Context(), logger.OpAuth)
	username := strings.TrimSpace(req.Username)
	user, err := s.users.Authenticate(ctx, username, req.Password)
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("Login failed for user "+username, zap.Error(err))
		AbortWithError(c, err)
		return
	}

	token, expiresAt, err := s.sessions.Issue(user)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	logger.WithContext(ctx, s.log).Info("User "+user.Username+" logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)),
	)

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"access_token":         token,
		"token_type":           "Bearer",
		"expires_at":           expiresAt,
		"must_change_password": user.MustChangePassword,
		"user":                 user,
	}})
}

// Me returns the signed-in user and what the role allows.
func (s *Server) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	perms, err := s.authz.Permissions(c.Request.Context(), user)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"user":        user,
		"permissions": perms,
	}})
}

func (s *Server) ChangePassword(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.CurrentPassword == "" {
		AbortWithError(c, newValidationError("current_password", "required", "current password is required"))
		return
	}
	if err := s.users.ChangePassword(c.Request.Context(), user.ID.String(), req.CurrentPassword, req.NewPassword); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AuthRequired loads the user behind the bearer token. Event streams may
// pass the token as access_token since browsers cannot set headers there.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			raw = strings.TrimSpace(c.Query("access_token"))
		}
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID, err := s.sessions.Parse(raw)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		user, err := s.users.Get(c.Request.Context(), userID.String())
		if err != nil {
			if errors.Is(err, appuserdomain.ErrNotFound) {
				err = ErrUnauthorized
			}
			AbortWithError(c, err)
			return
		}
		if !user.IsActive {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserKey, user)
		c.Next()
	}
}

// authorize gates a route on one permission. Users with a pending forced
// password change are held until they change it.
func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if user.MustChangePassword {
			AbortWithError(c, ErrPasswordChangeRequired)
			return
		}
		if err := s.authz.Authorize(c.Request.Context(), user, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) (appuserdomain.AppUser, bool) {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return appuserdomain.AppUser{}, false
	}
	user, ok := value.(appuserdomain.AppUser)
	return user, ok
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
