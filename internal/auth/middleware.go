package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"messagehub/internal/models"
)

const (
	userIDContextKey    = "auth_user_id"
	userRoleContextKey  = "auth_user_role"
	userEmailContextKey = "auth_user_email"
	authTokenContextKey = "auth_token"
)

// Middleware validates bearer access tokens and stores the authenticated user in the context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authToken := s.extractToken(c)
		if authToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		// OptionalMiddleware earlier in the chain already resolved this token
		if resolved, ok := AuthTokenFromContext(c); ok && resolved == authToken {
			if _, ok := UserIDFromContext(c); ok {
				c.Next()
				return
			}
		}
		user, err := s.authenticate(c, authToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		setUser(c, user, authToken)
		c.Next()
	}
}

// OptionalMiddleware resolves the user when a valid token is present and never aborts.
func (s *Service) OptionalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if authToken := s.extractToken(c); authToken != "" {
			if user, err := s.authenticate(c, authToken); err == nil {
				setUser(c, user, authToken)
			}
		}
		c.Next()
	}
}

func (s *Service) authenticate(c *gin.Context, authToken string) (*models.User, error) {
	ctx := c.Request.Context()
	claims, err := s.Parse(ctx, authToken, TokenAccess)
	if err != nil {
		return nil, err
	}
	if s.users == nil {
		return &models.User{ID: claims.Subject, Email: claims.Email, Role: models.Role(claims.Role)}, nil
	}
	user, err := s.users.GetUser(ctx, claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return user, nil
}

func setUser(c *gin.Context, user *models.User, authToken string) {
	c.Set(userIDContextKey, user.ID)
	c.Set(userRoleContextKey, user.Role)
	c.Set(userEmailContextKey, user.Email)
	c.Set(authTokenContextKey, authToken)
}

// UserIDFromContext retrieves the authenticated user id from the gin context.
func UserIDFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(userIDContextKey)
	if !ok {
		return "", false
	}
	userID, ok := val.(string)
	return userID, ok && userID != ""
}

// RoleFromContext retrieves the authenticated user's role.
func RoleFromContext(c *gin.Context) (models.Role, bool) {
	val, ok := c.Get(userRoleContextKey)
	if !ok {
		return "", false
	}
	role, ok := val.(models.Role)
	return role, ok
}

// EmailFromContext retrieves the authenticated user's email.
func EmailFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(userEmailContextKey)
	if !ok {
		return "", false
	}
	email, ok := val.(string)
	return email, ok
}

// AuthTokenFromContext retrieves the bearer token captured by the middleware.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(authTokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

func (s *Service) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
