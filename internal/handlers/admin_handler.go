package handlers

import (
	"net/http"

	"datalabel-backend/internal/dto"
	"datalabel-backend/internal/repository"
	"datalabel-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminHandler administrative views over users and in-flight settlements
type AdminHandler struct {
	users    *services.UserService
	attempts repository.SettlementAttemptRepository
	logger   *logrus.Logger
}

func NewAdminHandler(users *services.UserService, attempts repository.SettlementAttemptRepository, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		users:    users,
		attempts: attempts,
		logger:   logger,
	}
}

// ListUsersHandler GET /api/admin/users
func (h *AdminHandler) ListUsersHandler(c *gin.Context) {
	limit, offset := pagination(c, 50, 500)
	users, err := h.users.ListUsers(c.Request.Context(), limit, offset)
	if err != nil {
		respondWithAppError(c, h.logger, "list users", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    users,
		"limit":   limit,
		"offset":  offset,
	})
}

// SetUserRoleHandler PUT /api/admin/users/:wallet/role
func (h *AdminHandler) SetUserRoleHandler(c *gin.Context) {
	var req dto.AdminSetRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.SetRole(c.Request.Context(), c.Param("wallet"), req.Role)
	if err != nil {
		respondWithAppError(c, h.logger, "set role", err)
		return
	}
	h.logger.WithFields(logrus.Fields{
		"admin":  c.GetString("admin_username"),
		"wallet": user.WalletAddress,
		"role":   user.Role,
	}).Info("🔧 Admin changed user role")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    user,
	})
}

// ListSettlementsHandler open custody transfers
// GET /api/admin/settlements
func (h *AdminHandler) ListSettlementsHandler(c *gin.Context) {
	attempts, err := h.attempts.ListSettlementAttempts(c.Request.Context())
	if err != nil {
		respondWithAppError(c, h.logger, "list settlements", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    attempts,
		"count":   len(attempts),
	})
}
