package middleware

import (
	"strings"

	"github.com/capstan-io/capstan/internal/auth"
	"github.com/capstan-io/capstan/pkg/types"
	"github.com/gin-gonic/gin"
)

// Auth resolves the request credential into a user and attaches it to the
// gin context. It never rejects: endpoints that require authentication make
// that decision themselves so they control the error body.
func Auth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			credential := strings.TrimPrefix(authHeader, "Bearer ")
			ctx := c.Request.Context()

			// A credential is either a session JWT or a registry access token
			if user, err := authService.ValidateToken(ctx, credential); err == nil {
				c.Set("user", user)
			} else if user, err := authService.ValidateAccessToken(ctx, credential); err == nil {
				c.Set("user", user)
			}
		}

		c.Next()
	}
}

// GetUserFromContext extracts the authenticated user from gin context.
// Returns nil when the request carried no valid credential.
func GetUserFromContext(c *gin.Context) *types.User {
	user, exists := c.Get("user")
	if !exists {
		return nil
	}
	typedUser, ok := user.(*types.User)
	if !ok {
		return nil
	}
	return typedUser
}
