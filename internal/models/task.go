package models

import (
	"time"
)

// TaskLifecycleStatus task state machine status
type TaskLifecycleStatus string

const (
	TaskAvailable       TaskLifecycleStatus = "AVAILABLE"        // open for workers
	TaskInProgress      TaskLifecycleStatus = "IN_PROGRESS"      // engaged by a worker
	TaskPendingApproval TaskLifecycleStatus = "PENDING_APPROVAL" // submission waiting for the provider
	TaskCompleted       TaskLifecycleStatus = "COMPLETED"        // approved and paid, terminal
)

// Valid reports whether s is a known status
func (s TaskLifecycleStatus) Valid() bool {
	switch s {
	case TaskAvailable, TaskInProgress, TaskPendingApproval, TaskCompleted:
		return true
	}
	return false
}

// RequiresWorker reports whether a task in this status must have a worker assigned
func (s TaskLifecycleStatus) RequiresWorker() bool {
	return s == TaskInProgress || s == TaskPendingApproval || s == TaskCompleted
}

// Task labeling task
type Task struct {
	ID          string              `json:"id" gorm:"primaryKey;size:36"`
	Title       string              `json:"title" gorm:"size:100;not null"`
	Description string              `json:"description" gorm:"type:text;not null"`
	Reward      int64               `json:"reward_lamports" gorm:"not null"` // lamports, fixed point 1e-9
	Status      TaskLifecycleStatus `json:"status" gorm:"size:32;index;not null;default:AVAILABLE"`
	ProviderID  string              `json:"provider_id" gorm:"size:64;index;not null"`
	WorkerID    *string             `json:"worker_id,omitempty" gorm:"size:64;index"`
	// ArtifactReference content address of the source image
	ArtifactReference string    `json:"artifact_reference" gorm:"size:128"`
	CreatedAt         time.Time `json:"created_at" gorm:"index"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName specifies the table name for Task
func (Task) TableName() string {
	return "tasks"
}

// WorkerAddress worker wallet or empty string
func (t *Task) WorkerAddress() string {
	if t.WorkerID == nil {
		return ""
	}
	return *t.WorkerID
}

// WorkerConsistent reports whether workerId presence matches the status
func (t *Task) WorkerConsistent() bool {
	return (t.WorkerID != nil) == t.Status.RequiresWorker()
}

// Clone returns a deep copy
func (t *Task) Clone() *Task {
	c := *t
	if t.WorkerID != nil {
		w := *t.WorkerID
		c.WorkerID = &w
	}
	return &c
}
