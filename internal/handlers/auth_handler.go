package handlers

import (
	"net/http"

	"datalabel-backend/internal/dto"
	"datalabel-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuthHandler wallet sign-in
type AuthHandler struct {
	auth   *services.AuthService
	logger *logrus.Logger
}

// NewAuthHandler create auth handler
func NewAuthHandler(authService *services.AuthService, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   authService,
		logger: logger,
	}
}

// NonceHandler issues a sign-in message
// GET /api/auth/nonce?publicKey=<wallet>
func (h *AuthHandler) NonceHandler(c *gin.Context) {
	wallet := c.Query("publicKey")
	if wallet == "" {
		respondWithError(c, http.StatusBadRequest, "ValidationError", "publicKey query parameter is required",
			map[string]string{"publicKey": "required"})
		return
	}

	ch, message, err := h.auth.Nonce(wallet)
	if err != nil {
		respondWithAppError(c, h.logger, "nonce", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": dto.NonceResponse{
			Nonce:     ch.Message.Nonce,
			Message:   message,
			ExpiresAt: ch.ExpiresAt,
		},
	})
}

// LoginHandler verifies the signed message and issues a session token
// POST /api/auth/login
func (h *AuthHandler) LoginHandler(c *gin.Context) {
	var req dto.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.PublicKey, req.Message, req.Signature)
	if err != nil {
		respondWithAppError(c, h.logger, "login", err)
		return
	}

	c.JSON(http.StatusOK, dto.LoginResponse{
		Success:   true,
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      result.User,
	})
}
