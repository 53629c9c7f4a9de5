package middleware

import (
	"net/http"

	"datalabel-backend/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminAuthMiddleware admin token authentication
type AdminAuthMiddleware struct {
	tokens *auth.TokenIssuer
	logger *logrus.Logger
}

// NewAdminAuthMiddleware create admin middleware; tokens must be the admin issuer
func NewAdminAuthMiddleware(tokens *auth.TokenIssuer, logger *logrus.Logger) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{
		tokens: tokens,
		logger: logger,
	}
}

// RequireAdminAuth requires a valid admin token
func (a *AdminAuthMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, code := bearerToken(c)
		if code != "" {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"code":   code,
			}).Warn("Admin auth failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Unauthorized",
				"message": "Authentication required",
				"code":    code,
			})
			return
		}

		claims, err := a.tokens.ValidateAdmin(token)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"error":  err.Error(),
			}).Warn("Admin auth failed - invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Unauthorized",
				"message": "Invalid or expired token",
				"code":    "INVALID_TOKEN",
			})
			return
		}

		c.Set("admin_username", claims.Username)
		c.Set("admin_role", claims.Role)
		c.Next()
	}
}
