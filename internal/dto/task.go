package dto

import (
	"datalabel-backend/internal/models"
	"datalabel-backend/internal/utils"

	"github.com/shopspring/decimal"
)

// ==================== Task DTOs ====================

// CreateTaskRequest new task. Reward is in whole tokens, up to 9 decimals.
type CreateTaskRequest struct {
	Title             string          `json:"title" binding:"required,max=100"`
	Description       string          `json:"description" binding:"required,max=5000"`
	Reward            decimal.Decimal `json:"reward"`
	ImageBase64       string          `json:"image_base64,omitempty"`       // raw base64 or data URL
	ArtifactReference string          `json:"artifact_reference,omitempty"` // used when no image is sent
}

// UpdateTaskRequest partial task edit. Workers may only send status.
type UpdateTaskRequest struct {
	Title       *string                     `json:"title,omitempty"`
	Description *string                     `json:"description,omitempty"`
	Reward      *decimal.Decimal            `json:"reward,omitempty"`
	Status      *models.TaskLifecycleStatus `json:"status,omitempty"`
	WorkerID    *string                     `json:"worker_id,omitempty"` // "" unassigns
}

// OnlyStatus reports whether status is the only field set
func (r UpdateTaskRequest) OnlyStatus() bool {
	return r.Status != nil && r.Title == nil && r.Description == nil && r.Reward == nil && r.WorkerID == nil
}

// SubmitWorkRequest worker submission
type SubmitWorkRequest struct {
	Annotations []models.Annotation `json:"annotations" binding:"required,max=1000"`
	Notes       string              `json:"notes,omitempty" binding:"max=4000"`
	ResultImage string              `json:"result_image,omitempty"` // raw base64 or data URL
}

// ApproveTaskRequest optional reference to a transfer the provider already submitted
type ApproveTaskRequest struct {
	TransactionSignature string `json:"transaction_signature,omitempty"`
}

// RejectTaskRequest rejection reason shown to the worker
type RejectTaskRequest struct {
	Reason string `json:"reason" binding:"required,max=255"`
}

// TaskResponse task with the reward rendered in tokens
type TaskResponse struct {
	*models.Task
	Reward string `json:"reward"`
}

func NewTaskResponse(task *models.Task) TaskResponse {
	return TaskResponse{Task: task, Reward: utils.FromLamports(task.Reward).String()}
}

func NewTaskResponses(tasks []*models.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, NewTaskResponse(t))
	}
	return out
}

// TransactionResponse ledger transaction with the amount rendered in tokens
type TransactionResponse struct {
	*models.LedgerTransaction
	Amount string `json:"amount"`
}

func NewTransactionResponse(tx *models.LedgerTransaction) TransactionResponse {
	return TransactionResponse{LedgerTransaction: tx, Amount: utils.FromLamports(tx.Amount).String()}
}

func NewTransactionResponses(txs []*models.LedgerTransaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, NewTransactionResponse(tx))
	}
	return out
}
