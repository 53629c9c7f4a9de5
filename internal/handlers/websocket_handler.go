package handlers

import (
	"net/http"
	"strings"

	"datalabel-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// WebSocketHandler authenticates and hands the connection to the push service
type WebSocketHandler struct {
	push   *services.WebSocketPushService
	auth   *services.AuthService
	logger *logrus.Logger
}

func NewWebSocketHandler(push *services.WebSocketPushService, authService *services.AuthService, logger *logrus.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		push:   push,
		auth:   authService,
		logger: logger,
	}
}

// HandleWebSocket GET /ws?token=<session token>
// Browsers cannot set headers on the upgrade request, so the token may come
// from the query string.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	}
	if token == "" {
		respondWithError(c, http.StatusUnauthorized, "Unauthorized", "session token required", nil)
		return
	}

	p, err := h.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"client_ip": c.ClientIP(),
			"error":     err.Error(),
		}).Warn("WebSocket auth failed")
		respondWithAppError(c, h.logger, "websocket", err)
		return
	}

	h.push.HandleWebSocket(c.Writer, c.Request, p.WalletAddress)
}
