package handlers

import (
	"net/http"

	"datalabel-backend/internal/dto"
	"datalabel-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// UserHandler wallet registration and role selection
type UserHandler struct {
	users  *services.UserService
	logger *logrus.Logger
}

func NewUserHandler(users *services.UserService, logger *logrus.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger,
	}
}

// CreateUserHandler registers the caller's wallet
// POST /api/users
func (h *UserHandler) CreateUserHandler(c *gin.Context) {
	var req dto.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.CreateUser(c.Request.Context(), currentPrincipal(c), req.WalletAddress, req.Role)
	if err != nil {
		respondWithAppError(c, h.logger, "create user", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    user,
	})
}

// GetUserHandler looks up ?walletAddress=, defaulting to the caller
// GET /api/users
func (h *UserHandler) GetUserHandler(c *gin.Context) {
	wallet := c.Query("walletAddress")
	if wallet == "" {
		wallet = currentPrincipal(c).WalletAddress
	}
	user, err := h.users.GetUser(c.Request.Context(), wallet)
	if err != nil {
		respondWithAppError(c, h.logger, "get user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    user,
	})
}

// SelectRoleHandler one-time role choice for the caller
// PUT /api/users/role
func (h *UserHandler) SelectRoleHandler(c *gin.Context) {
	var req dto.SetRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.SelectRole(c.Request.Context(), currentPrincipal(c), req.Role)
	if err != nil {
		respondWithAppError(c, h.logger, "select role", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    user,
	})
}
