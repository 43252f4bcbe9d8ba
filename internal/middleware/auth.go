package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"queuemedix-server/internal/config"
	"queuemedix-server/internal/models"
	"queuemedix-server/internal/utils"
)

const (
	contextUserID   = "userID"
	contextUserRole = "userRole"
)

// AuthMiddleware creates a middleware for JWT authentication.
// Browsers cannot set headers on a websocket handshake, so a "token" query parameter is
// accepted as well.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			utils.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(tokenString, cfg.JWTSecret)
		if err != nil {
			utils.Unauthorized(c, "Invalid token: "+err.Error())
			c.Abort()
			return
		}

		// Set user information in context for downstream handlers
		c.Set(contextUserID, claims.UserID)
		c.Set(contextUserRole, claims.Role)

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		token := c.Query("token")
		return token, token != ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// GetUserIDFromContext returns the authenticated user's ID.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID, exists := c.Get(contextUserID)
	if !exists {
		return "", false
	}
	idStr, ok := userID.(string)
	return idStr, ok
}

// GetUserRoleFromContext returns the authenticated user's role.
func GetUserRoleFromContext(c *gin.Context) (models.Role, bool) {
	userRole, exists := c.Get(contextUserRole)
	if !exists {
		return "", false
	}
	role, ok := userRole.(models.Role)
	return role, ok
}
