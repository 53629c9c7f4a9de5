// Package events carries task lifecycle notifications out of the engine
// (NATS, websocket push) and ledger confirmation notices back into it.
package events

import (
	"context"
	"time"

	"datalabel-backend/internal/models"
)

// TaskEventType lifecycle event name, also the last NATS subject token
type TaskEventType string

const (
	TaskCreated   TaskEventType = "created"
	TaskUpdated   TaskEventType = "updated"
	TaskAccepted  TaskEventType = "accepted"
	TaskSubmitted TaskEventType = "submitted"
	TaskWithdrawn TaskEventType = "withdrawn"
	TaskApproved  TaskEventType = "approved"
	TaskRejected  TaskEventType = "rejected"
	TaskDeleted   TaskEventType = "deleted"
)

// TaskEvent emitted after a task change has been committed
type TaskEvent struct {
	Type           TaskEventType              `json:"type"`
	TaskID         string                     `json:"task_id"`
	Status         models.TaskLifecycleStatus `json:"status"`
	PreviousStatus models.TaskLifecycleStatus `json:"previous_status,omitempty"`
	ProviderID     string                     `json:"provider_id"`
	WorkerID       string                     `json:"worker_id,omitempty"`
	// PreviousWorkerID worker that lost the task on reject or provider edit
	PreviousWorkerID string    `json:"previous_worker_id,omitempty"`
	Signature        string    `json:"signature,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// NewTaskEvent event for the committed state of task
func NewTaskEvent(eventType TaskEventType, task *models.Task, previous models.TaskLifecycleStatus) TaskEvent {
	return TaskEvent{
		Type:           eventType,
		TaskID:         task.ID,
		Status:         task.Status,
		PreviousStatus: previous,
		ProviderID:     task.ProviderID,
		WorkerID:       task.WorkerAddress(),
		OccurredAt:     time.Now().UTC(),
	}
}

// Recipients wallets that should be told about the event
func (e TaskEvent) Recipients() []string {
	seen := make(map[string]bool, 3)
	var out []string
	for _, addr := range []string{e.ProviderID, e.WorkerID, e.PreviousWorkerID} {
		if addr != "" && !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}

// Publisher best-effort event sink; delivery failures never undo a committed change
type Publisher interface {
	PublishTaskEvent(ctx context.Context, event TaskEvent)
}

// MultiPublisher fans an event out to several sinks
type MultiPublisher []Publisher

func (m MultiPublisher) PublishTaskEvent(ctx context.Context, event TaskEvent) {
	for _, p := range m {
		if p != nil {
			p.PublishTaskEvent(ctx, event)
		}
	}
}

// NopPublisher discards events
type NopPublisher struct{}

func (NopPublisher) PublishTaskEvent(context.Context, TaskEvent) {}

// LedgerConfirmation notice that a transfer reached a final status
type LedgerConfirmation struct {
	TaskID    string `json:"task_id"`
	Signature string `json:"signature"`
	Status    string `json:"status"`
}
