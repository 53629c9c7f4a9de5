package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/dto"
	"datalabel-backend/internal/models"
	"datalabel-backend/internal/repository"
	"datalabel-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TaskHandler task lifecycle endpoints
type TaskHandler struct {
	tasks  *services.TaskService
	users  *services.UserService
	logger *logrus.Logger
}

func NewTaskHandler(tasks *services.TaskService, users *services.UserService, logger *logrus.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:  tasks,
		users:  users,
		logger: logger,
	}
}

// ListTasksHandler GET /api/tasks?status=&provider=&worker=&mine=&limit=&offset=
// mine=true lists the caller's own tasks: posted ones for providers, taken ones for workers.
func (h *TaskHandler) ListTasksHandler(c *gin.Context) {
	limit, offset := pagination(c, 50, 200)
	filter := repository.TaskFilter{
		Status:     models.TaskLifecycleStatus(strings.ToUpper(c.Query("status"))),
		ProviderID: c.Query("provider"),
		WorkerID:   c.Query("worker"),
		Limit:      limit,
		Offset:     offset,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		respondWithError(c, http.StatusBadRequest, string(apperrors.KindValidation), "invalid status filter",
			map[string]string{"status": "must be AVAILABLE, IN_PROGRESS, PENDING_APPROVAL or COMPLETED"})
		return
	}
	if c.Query("mine") == "true" {
		p, err := h.users.Principal(c.Request.Context(), currentPrincipal(c).WalletAddress)
		if err != nil {
			respondWithAppError(c, h.logger, "list own tasks", err)
			return
		}
		if p.IsWorker() {
			filter.WorkerID = p.WalletAddress
		} else {
			filter.ProviderID = p.WalletAddress
		}
	}

	tasks, err := h.tasks.ListTasks(c.Request.Context(), filter)
	if err != nil {
		respondWithAppError(c, h.logger, "list tasks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    dto.NewTaskResponses(tasks),
		"limit":   limit,
		"offset":  offset,
	})
}

// CreateTaskHandler POST /api/tasks
func (h *TaskHandler) CreateTaskHandler(c *gin.Context) {
	var req dto.CreateTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	task, err := h.tasks.CreateTask(c.Request.Context(), currentPrincipal(c), services.CreateTaskInput{
		Title:             req.Title,
		Description:       req.Description,
		Reward:            req.Reward,
		ImageBase64:       req.ImageBase64,
		ArtifactReference: req.ArtifactReference,
	})
	if err != nil {
		respondWithAppError(c, h.logger, "create task", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    dto.NewTaskResponse(task),
	})
}

// GetTaskHandler GET /api/tasks/:id
func (h *TaskHandler) GetTaskHandler(c *gin.Context) {
	task, err := h.tasks.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithAppError(c, h.logger, "get task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    dto.NewTaskResponse(task),
	})
}

// UpdateTaskHandler PATCH /api/tasks/:id
// Workers may only move the status of their own task; everyone else is
// treated as the owning provider and checked by the service.
func (h *TaskHandler) UpdateTaskHandler(c *gin.Context) {
	var req dto.UpdateTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	p, err := h.users.Principal(ctx, currentPrincipal(c).WalletAddress)
	if err != nil {
		respondWithAppError(c, h.logger, "update task", err)
		return
	}

	var cmd services.UpdateCommand
	if p.IsWorker() {
		if !req.OnlyStatus() {
			respondWithError(c, http.StatusForbidden, string(apperrors.KindForbidden),
				"workers may only change the status of their task", nil)
			return
		}
		cmd = services.WorkerStatusEdit{Status: *req.Status}
	} else {
		cmd = services.ProviderEdit{
			Title:       req.Title,
			Description: req.Description,
			Reward:      req.Reward,
			Status:      req.Status,
			WorkerID:    req.WorkerID,
		}
	}

	task, err := h.tasks.UpdateTask(ctx, p, c.Param("id"), cmd)
	if err != nil {
		respondWithAppError(c, h.logger, "update task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    dto.NewTaskResponse(task),
	})
}

// DeleteTaskHandler DELETE /api/tasks/:id
func (h *TaskHandler) DeleteTaskHandler(c *gin.Context) {
	id := c.Param("id")
	if err := h.tasks.DeleteTask(c.Request.Context(), currentPrincipal(c), id); err != nil {
		respondWithAppError(c, h.logger, "delete task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "task deleted",
		"id":      id,
	})
}

// AcceptTaskHandler POST /api/tasks/:id/accept
func (h *TaskHandler) AcceptTaskHandler(c *gin.Context) {
	task, err := h.tasks.AcceptTask(c.Request.Context(), currentPrincipal(c), c.Param("id"))
	if err != nil {
		respondWithAppError(c, h.logger, "accept task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    dto.NewTaskResponse(task),
	})
}

// SubmitWorkHandler POST /api/tasks/:id/submissions
func (h *TaskHandler) SubmitWorkHandler(c *gin.Context) {
	var req dto.SubmitWorkRequest
	if !bindJSON(c, &req) {
		return
	}
	task, sub, err := h.tasks.SubmitTask(c.Request.Context(), currentPrincipal(c), c.Param("id"), services.SubmitInput{
		Annotations:       req.Annotations,
		Notes:             req.Notes,
		ResultImageBase64: req.ResultImage,
	})
	if err != nil {
		respondWithAppError(c, h.logger, "submit work", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"task":       dto.NewTaskResponse(task),
			"submission": sub,
		},
	})
}

// GetSubmissionHandler GET /api/tasks/:id/submissions
func (h *TaskHandler) GetSubmissionHandler(c *gin.Context) {
	sub, err := h.tasks.GetSubmission(c.Request.Context(), currentPrincipal(c), c.Param("id"))
	if err != nil {
		respondWithAppError(c, h.logger, "get submission", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    sub,
	})
}

// ApproveTaskHandler POST /api/tasks/:id/approve
// The body is optional; it carries the signature of a transfer the provider
// already submitted when settlement is external.
func (h *TaskHandler) ApproveTaskHandler(c *gin.Context) {
	var req dto.ApproveTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithBindError(c, err)
		return
	}

	task, tx, err := h.tasks.ApproveTask(c.Request.Context(), currentPrincipal(c), c.Param("id"), req.TransactionSignature)
	if err != nil {
		respondWithAppError(c, h.logger, "approve task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"task":        dto.NewTaskResponse(task),
			"transaction": dto.NewTransactionResponse(tx),
		},
	})
}

// RejectTaskHandler POST /api/tasks/:id/reject
func (h *TaskHandler) RejectTaskHandler(c *gin.Context) {
	var req dto.RejectTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	task, err := h.tasks.RejectTask(c.Request.Context(), currentPrincipal(c), c.Param("id"), req.Reason)
	if err != nil {
		respondWithAppError(c, h.logger, "reject task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    dto.NewTaskResponse(task),
	})
}

// InstructionHandler unsigned program instruction for the caller to sign
// GET /api/tasks/:id/instructions/:kind?reason=
func (h *TaskHandler) InstructionHandler(c *gin.Context) {
	kind := services.InstructionKind(strings.ToLower(c.Param("kind")))
	ix, err := h.tasks.BuildInstruction(c.Request.Context(), currentPrincipal(c), c.Param("id"), kind, c.Query("reason"))
	if err != nil {
		respondWithAppError(c, h.logger, "build instruction", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    ix,
	})
}
