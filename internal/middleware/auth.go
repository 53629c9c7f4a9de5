package middleware

import (
	"net/http"
	"strings"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/auth"
	"datalabel-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const principalKey = "principal"

// PrincipalFrom principal stored by RequireAuth or OptionalAuth
func PrincipalFrom(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}

// bearerToken token from "Authorization: Bearer <token>"
func bearerToken(c *gin.Context) (string, string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", "MISSING_AUTH_HEADER"
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", "INVALID_AUTH_FORMAT"
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", "EMPTY_TOKEN"
	}
	return token, ""
}

// AuthMiddleware wallet session authentication
type AuthMiddleware struct {
	auth   *services.AuthService
	logger *logrus.Logger
}

// NewAuthMiddleware create session middleware
func NewAuthMiddleware(authService *services.AuthService, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		auth:   authService,
		logger: logger,
	}
}

// RequireAuth rejects the request unless it carries a valid session token
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, code := bearerToken(c)
		if code != "" {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"code":   code,
			}).Warn("Session auth failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   string(apperrors.KindUnauthorized),
				"message": "Authorization header must be in format: Bearer <token>",
				"code":    code,
			})
			return
		}

		p, err := a.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"error":  err.Error(),
			}).Warn("Session auth failed - invalid token")
			status := apperrors.HTTPStatus(apperrors.KindOf(err))
			c.AbortWithStatusJSON(status, gin.H{
				"success": false,
				"error":   string(apperrors.KindOf(err)),
				"message": "Invalid or expired token",
				"code":    "INVALID_TOKEN",
			})
			return
		}

		c.Set(principalKey, p)
		a.logger.WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"wallet": p.WalletAddress,
			"role":   p.Role,
		}).Debug("Session auth success")
		c.Next()
	}
}

// OptionalAuth attaches the principal when a valid token is present and
// otherwise lets the request through anonymously
func (a *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, code := bearerToken(c)
		if code != "" {
			c.Next()
			return
		}
		p, err := a.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			}).Debug("Ignoring invalid optional session token")
			c.Next()
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}
