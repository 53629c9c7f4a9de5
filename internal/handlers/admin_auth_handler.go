package handlers

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"datalabel-backend/internal/auth"
	"datalabel-backend/internal/config"
	"datalabel-backend/internal/dto"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
)

// AdminAuthHandler administrator login with password and TOTP
type AdminAuthHandler struct {
	cfg    config.AdminConfig
	tokens *auth.TokenIssuer
	logger *logrus.Logger
}

// NewAdminAuthHandler tokens must be the admin issuer
func NewAdminAuthHandler(cfg config.AdminConfig, tokens *auth.TokenIssuer, logger *logrus.Logger) *AdminAuthHandler {
	if cfg.TOTPSecret == "" || cfg.Password == "" {
		logger.Warn("⚠️ admin.password or admin.totpSecret not configured, admin login is disabled")
	}
	if cfg.Username == "" {
		cfg.Username = "admin"
	}
	return &AdminAuthHandler{
		cfg:    cfg,
		tokens: tokens,
		logger: logger,
	}
}

// AdminLoginHandler admin login
// POST /api/admin/login
func (h *AdminAuthHandler) AdminLoginHandler(c *gin.Context) {
	if h.cfg.TOTPSecret == "" || h.cfg.Password == "" {
		c.JSON(http.StatusServiceUnavailable, dto.AdminLoginResponse{
			Success: false,
			Message: "Admin login is not configured",
		})
		return
	}

	var req dto.AdminLoginRequest
	if !bindJSON(c, &req) {
		return
	}

	// same message for every credential failure
	if !equalSecret(req.Username, h.cfg.Username) || !equalSecret(req.Password, h.cfg.Password) {
		h.logger.WithFields(logrus.Fields{
			"username":  req.Username,
			"client_ip": c.ClientIP(),
		}).Warn("⚠️ Admin login rejected")
		c.JSON(http.StatusUnauthorized, dto.AdminLoginResponse{
			Success: false,
			Message: "Invalid credentials",
		})
		return
	}

	if !totp.Validate(req.TOTPCode, h.cfg.TOTPSecret) {
		h.logger.WithField("username", req.Username).Warn("⚠️ Admin login rejected: bad TOTP code")
		c.JSON(http.StatusUnauthorized, dto.AdminLoginResponse{
			Success: false,
			Message: "Invalid TOTP code",
		})
		return
	}

	token, err := h.tokens.IssueAdmin(req.Username)
	if err != nil {
		h.logger.WithError(err).Error("❌ Failed to issue admin token")
		c.JSON(http.StatusInternalServerError, dto.AdminLoginResponse{
			Success: false,
			Message: "Failed to generate token",
		})
		return
	}

	h.logger.WithField("username", req.Username).Info("🔐 Admin logged in")
	c.JSON(http.StatusOK, dto.AdminLoginResponse{
		Success: true,
		Token:   token,
		Message: "Login successful",
	})
}

// GenerateTOTPSecretHandler generates a TOTP secret, only until one is configured
// GET /api/admin/totp/generate
func (h *AdminAuthHandler) GenerateTOTPSecretHandler(c *gin.Context) {
	if h.cfg.TOTPSecret != "" {
		respondWithError(c, http.StatusForbidden, "Forbidden", "TOTP secret already configured", nil)
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "DataLabel Admin",
		AccountName: h.cfg.Username,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		h.logger.WithError(err).Error("❌ Failed to generate TOTP secret")
		respondWithError(c, http.StatusInternalServerError, "Internal", "Failed to generate TOTP secret", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"secret":  key.Secret(),
		"url":     key.URL(),
		"message": "Save this secret to admin.totpSecret (ADMIN_TOTP_SECRET) and use it to generate TOTP codes.",
	})
}

// equalSecret constant-time comparison of equal-length digests
func equalSecret(given, expected string) bool {
	a := sha256.Sum256([]byte(given))
	b := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
