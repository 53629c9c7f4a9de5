// Package repository provides data access interfaces and implementations
package repository

import (
	"context"
	"time"

	"datalabel-backend/internal/metrics"
	"datalabel-backend/internal/models"
)

// TaskFilter list query; empty fields match everything
type TaskFilter struct {
	Status     models.TaskLifecycleStatus
	ProviderID string
	WorkerID   string
	Limit      int
	Offset     int
}

// TransactionFilter ledger transaction query
type TransactionFilter struct {
	// Wallet matches either side of the transfer
	Wallet    string
	Type      models.LedgerTransactionType
	TaskID    string
	Signature string
	Limit     int
}

// TaskRepository task records. Writes are compare-and-swap on the status the
// caller observed: when the stored status differs the write fails with
// InvalidState, and with NotFound when the task is gone.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task, expected models.TaskLifecycleStatus) error
	DeleteTask(ctx context.Context, id string, expected models.TaskLifecycleStatus) error
}

// SubmissionRepository submission records, one per task
type SubmissionRepository interface {
	CreateSubmission(ctx context.Context, sub *models.Submission) error
	GetSubmission(ctx context.Context, taskID string) (*models.Submission, error)
	// DeleteSubmission is idempotent
	DeleteSubmission(ctx context.Context, taskID string) error
	AttachSettlement(ctx context.Context, taskID, signature string) error
}

// LedgerTransactionRepository append-only, records are never updated or deleted
type LedgerTransactionRepository interface {
	AppendTransaction(ctx context.Context, tx *models.LedgerTransaction) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*models.LedgerTransaction, error)
}

// SettlementAttemptRepository in-flight custody transfers
type SettlementAttemptRepository interface {
	SaveSettlementAttempt(ctx context.Context, attempt *models.SettlementAttempt) error
	GetSettlementAttempt(ctx context.Context, taskID string) (*models.SettlementAttempt, error)
	DeleteSettlementAttempt(ctx context.Context, taskID string) error
	ListSettlementAttempts(ctx context.Context) ([]*models.SettlementAttempt, error)
}

// UserRepository wallet identities and roles
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, wallet string) (*models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	// SetRole creates the user when missing
	SetRole(ctx context.Context, wallet string, role models.Role) (*models.User, error)
}

// Store everything the engine persists, plus the multi-record writes that
// must commit together
type Store interface {
	TaskRepository
	SubmissionRepository
	LedgerTransactionRepository
	SettlementAttemptRepository
	UserRepository

	// SubmitWork stores sub and moves task out of expected in one transaction
	SubmitWork(ctx context.Context, task *models.Task, expected models.TaskLifecycleStatus, sub *models.Submission) error
	// DiscardSubmission deletes the task's submission and moves task out of expected
	DiscardSubmission(ctx context.Context, task *models.Task, expected models.TaskLifecycleStatus) error
	// CompleteTask moves task out of expected, attaches signature to its
	// submission, appends tx and clears any settlement attempt
	CompleteTask(ctx context.Context, task *models.Task, expected models.TaskLifecycleStatus, signature string, tx *models.LedgerTransaction) error

	// Statistics aggregate counters over tasks, payments and users
	Statistics(ctx context.Context) (*models.MarketplaceStatistics, error)

	Ping(ctx context.Context) error
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func observe(operation string) func() {
	start := time.Now()
	return func() {
		metrics.StoreOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
