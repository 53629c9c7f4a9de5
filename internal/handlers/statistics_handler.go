package handlers

import (
	"context"
	"net/http"

	"datalabel-backend/internal/models"
	"datalabel-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StatisticsSource aggregate read used by the overview endpoint
type StatisticsSource interface {
	Statistics(ctx context.Context) (*models.MarketplaceStatistics, error)
}

// StatisticsHandler handles statistics-related requests
type StatisticsHandler struct {
	source StatisticsSource
	logger *logrus.Logger
}

// NewStatisticsHandler creates a new StatisticsHandler
func NewStatisticsHandler(source StatisticsSource, logger *logrus.Logger) *StatisticsHandler {
	return &StatisticsHandler{source: source, logger: logger}
}

// StatisticsResponse represents the statistics response
type StatisticsResponse struct {
	TasksByStatus     map[models.TaskLifecycleStatus]int64 `json:"tasks_by_status"`
	TotalTasks        int64                                `json:"total_tasks"`
	OpenTasks         int64                                `json:"open_tasks"`
	Payments          int64                                `json:"payments"`
	TotalPaidLamports int64                                `json:"total_paid_lamports"`
	TotalPaid         string                               `json:"total_paid"` // SOL, exact decimal
	Users             int64                                `json:"users"`
}

// GetStatisticsHandler handles GET /api/statistics/overview
func (h *StatisticsHandler) GetStatisticsHandler(c *gin.Context) {
	stats, err := h.source.Statistics(c.Request.Context())
	if err != nil {
		respondWithAppError(c, h.logger, "load statistics", err)
		return
	}

	resp := StatisticsResponse{
		TasksByStatus:     stats.TasksByStatus,
		OpenTasks:         stats.TasksByStatus[models.TaskAvailable],
		Payments:          stats.Payments,
		TotalPaidLamports: stats.TotalPaidLamports,
		TotalPaid:         utils.FromLamports(stats.TotalPaidLamports).String(),
		Users:             stats.Users,
	}
	for _, n := range stats.TasksByStatus {
		resp.TotalTasks += n
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    resp,
	})
}
