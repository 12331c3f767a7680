package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/access"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
)

const (
	// ContextKeyUserID is the key for user ID in gin context
	ContextKeyUserID = "user_id"
	// ContextKeyUser is the key for the loaded *models.User in gin context
	ContextKeyUser = "user"
)

// AuthMiddleware validates JWT tokens, loads the user and sets it in context.
// Role and tenant always come from the database row, not the token, so role
// changes and deactivation take effect immediately.
func AuthMiddleware(tokens *TokenManager, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		// Expect "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := tokens.Validate(parts[1])
		if err != nil {
			if err == ErrExpiredToken {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has expired"})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			c.Abort()
			return
		}

		var user models.User
		if err := db.First(&user, claims.UserID).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}
		if !user.IsActive {
			c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
			c.Abort()
			return
		}

		c.Set(ContextKeyUser, &user)
		c.Set(ContextKeyUserID, user.ID)

		c.Next()
	}
}

// requireRole aborts unless the current user satisfies allowed.
func requireRole(allowed func(models.Role) bool, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		if !allowed(user.Role) {
			c.JSON(http.StatusForbidden, gin.H{"error": message})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireStaff allows staff, admin and super_admin
func RequireStaff() gin.HandlerFunc {
	return requireRole(access.IsStaffTier, "Staff access required")
}

// RequireAdmin allows admin and super_admin
func RequireAdmin() gin.HandlerFunc {
	return requireRole(access.IsAdminTier, "Admin access required")
}

// RequireSuperAdmin allows super_admin only
func RequireSuperAdmin() gin.HandlerFunc {
	return requireRole(func(r models.Role) bool { return r == models.RoleSuperAdmin }, "Super admin access required")
}

// CurrentUser returns the authenticated user from the gin context
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, exists := c.Get(ContextKeyUser)
	if !exists {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

// GetUserID returns the user ID from the gin context
func GetUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	return userID.(uint), true
}
