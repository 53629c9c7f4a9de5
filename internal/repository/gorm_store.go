package repository

import (
	"context"
	"errors"
	"time"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/models"
	"datalabel-backend/internal/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore Store backed by gorm (Postgres in production)
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new Store instance
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func dbError(err error, op string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Internal(err, "%s", op)
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ---- tasks ----

// CreateTask creates a new task
func (s *GormStore) CreateTask(ctx context.Context, task *models.Task) error {
	defer observe("create_task")()
	return dbError(s.db.WithContext(ctx).Create(task).Error, "create task")
}

// GetTask retrieves a task by ID
func (s *GormStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	defer observe("get_task")()
	var task models.Task
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("task %s not found", id)
	}
	if err != nil {
		return nil, dbError(err, "get task")
	}
	return &task, nil
}

// ListTasks newest first
func (s *GormStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*models.Task, error) {
	defer observe("list_tasks")()
	query := s.db.WithContext(ctx).Model(&models.Task{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ProviderID != "" {
		query = query.Where("provider_id = ?", filter.ProviderID)
	}
	if filter.WorkerID != "" {
		query = query.Where("worker_id = ?", filter.WorkerID)
	}
	var tasks []*models.Task
	err := query.
		Order("created_at DESC").
		Limit(utils.ClampLimit(filter.Limit, defaultListLimit, maxListLimit)).
		Offset(filter.Offset).
		Find(&tasks).Error
	return tasks, dbError(err, "list tasks")
}

// casUpdate writes the mutable task columns if the stored status is still expected
func casUpdate(tx *gorm.DB, task *models.Task, expected models.TaskLifecycleStatus) error {
	task.UpdatedAt = time.Now().UTC()
	result := tx.Model(&models.Task{}).
		Where("id = ? AND status = ?", task.ID, expected).
		Updates(map[string]interface{}{
			"title":              task.Title,
			"description":        task.Description,
			"reward":             task.Reward,
			"status":             task.Status,
			"worker_id":          task.WorkerID,
			"artifact_reference": task.ArtifactReference,
			"updated_at":         task.UpdatedAt,
		})
	if result.Error != nil {
		return dbError(result.Error, "update task")
	}
	if result.RowsAffected == 1 {
		return nil
	}
	return casMiss(tx, task.ID, expected)
}

// casMiss explains why a conditional write touched no row
func casMiss(tx *gorm.DB, id string, expected models.TaskLifecycleStatus) error {
	var current models.Task
	err := tx.Select("id", "status").Where("id = ?", id).First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound("task %s not found", id)
	}
	if err != nil {
		return dbError(err, "load task")
	}
	return apperrors.InvalidState("task %s is %s, expected %s", id, current.Status, expected)
}

// UpdateTask compare-and-swap update
func (s *GormStore) UpdateTask(ctx context.Context, task *models.Task, expected models.TaskLifecycleStatus) error {
	defer observe("update_task")()
	return casUpdate(s.db.WithContext(ctx), task, expected)
}

// DeleteTask compare-and-swap delete
func (s *GormStore) DeleteTask(ctx context.Context, id string, expected models.TaskLifecycleStatus) error {
	defer observe("delete_task")()
	db := s.db.WithContext(ctx)
	result := db.Where("id = ? AND status = ?", id, expected).Delete(&models.Task{})
	if result.Error != nil {
		return dbError(result.Error, "delete task")
	}
	if result.RowsAffected == 1 {
		return nil
	}
	return casMiss(db, id, expected)
}

// ---- submissions ----

func createSubmission(tx *gorm.DB, sub *models.Submission) error {
	var count int64
	if err := tx.Model(&models.Submission{}).Where("task_id = ?", sub.TaskID).Count(&count).Error; err != nil {
		return dbError(err, "check submission")
	}
	if count > 0 {
		return apperrors.InvalidState("task %s already has a submission", sub.TaskID)
	}
	err := tx.Create(sub).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.InvalidState("task %s already has a submission", sub.TaskID)
	}
	return dbError(err, "create submission")
}

// CreateSubmission fails with InvalidState when the task already has one
func (s *GormStore) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	defer observe("create_submission")()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createSubmission(tx, sub)
	})
}

func (s *GormStore) GetSubmission(ctx context.Context, taskID string) (*models.Submission, error) {
	defer observe("get_submission")()
	var sub models.Submission
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("submission for task %s not found", taskID)
	}
	if err != nil {
		return nil, dbError(err, "get submission")
	}
	return &sub, nil
}

func (s *GormStore) DeleteSubmission(ctx context.Context, taskID string) error {
	defer observe("delete_submission")()
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&models.Submission{}).Error
	return dbError(err, "delete submission")
}

func attachSettlement(tx *gorm.DB, taskID, signature string) error {
	result := tx.Model(&models.Submission{}).
		Where("task_id = ?", taskID).
		Update("settlement_signature", signature)
	if result.Error != nil {
		return dbError(result.Error, "attach settlement")
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("submission for task %s not found", taskID)
	}
	return nil
}

func (s *GormStore) AttachSettlement(ctx context.Context, taskID, signature string) error {
	defer observe("attach_settlement")()
	return attachSettlement(s.db.WithContext(ctx), taskID, signature)
}

// ---- composites ----

func (s *GormStore) SubmitWork(ctx context.Context, task *models.Task, expected models.TaskLifecycleStatus, sub *models.Submission) error {
	defer observe("submit_work")()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := casUpdate(tx, task, expected); err != nil {
			return err
		}
		return createSubmission(tx, sub)
	})
}

func (s *GormStore) DiscardSubmission(ctx context.Context, task *models.Task, expected models.TaskLifecycleStatus) error {
	defer observe("discard_submission")()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := casUpdate(tx, task, expected); err != nil {
			return err
		}
		return dbError(tx.Where("task_id = ?", task.ID).Delete(&models.Submission{}).Error, "delete submission")
	})
}

func (s *GormStore) CompleteTask(ctx context.Context, task *models.Task, expected models.TaskLifecycleStatus, signature string, ltx *models.LedgerTransaction) error {
	defer observe("complete_task")()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := casUpdate(tx, task, expected); err != nil {
			return err
		}
		if err := attachSettlement(tx, task.ID, signature); err != nil {
			return err
		}
		if ltx.Signature != models.ManualApprovalSignature {
			var used int64
			if err := tx.Model(&models.LedgerTransaction{}).Where("signature = ?", ltx.Signature).Count(&used).Error; err != nil {
				return dbError(err, "check ledger signature")
			}
			if used > 0 {
				return signatureReused(ltx.Signature)
			}
		}
		if err := tx.Create(ltx).Error; err != nil {
			// the unique signature index catches a concurrent insert the count missed
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return signatureReused(ltx.Signature)
			}
			return dbError(err, "append ledger transaction")
		}
		return dbError(tx.Where("task_id = ?", task.ID).Delete(&models.SettlementAttempt{}).Error, "clear settlement attempt")
	})
}

func signatureReused(signature string) error {
	return apperrors.Conflict("signature %s already settled a payment", signature)
}

// ---- ledger transactions ----

func (s *GormStore) AppendTransaction(ctx context.Context, tx *models.LedgerTransaction) error {
	defer observe("append_transaction")()
	return dbError(s.db.WithContext(ctx).Create(tx).Error, "append ledger transaction")
}

// ListTransactions newest first
func (s *GormStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]*models.LedgerTransaction, error) {
	defer observe("list_transactions")()
	query := s.db.WithContext(ctx).Model(&models.LedgerTransaction{})
	if filter.Wallet != "" {
		query = query.Where("from_address = ? OR to_address = ?", filter.Wallet, filter.Wallet)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.TaskID != "" {
		query = query.Where("task_id = ?", filter.TaskID)
	}
	if filter.Signature != "" {
		query = query.Where("signature = ?", filter.Signature)
	}
	var txs []*models.LedgerTransaction
	err := query.
		Order("created_at DESC").
		Limit(utils.ClampLimit(filter.Limit, 10, maxListLimit)).
		Find(&txs).Error
	return txs, dbError(err, "list ledger transactions")
}

// ---- settlement attempts ----

// SaveSettlementAttempt insert or replace the attempt for a task
func (s *GormStore) SaveSettlementAttempt(ctx context.Context, attempt *models.SettlementAttempt) error {
	defer observe("save_settlement_attempt")()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}},
		UpdateAll: true,
	}).Create(attempt).Error
	return dbError(err, "save settlement attempt")
}

func (s *GormStore) GetSettlementAttempt(ctx context.Context, taskID string) (*models.SettlementAttempt, error) {
	defer observe("get_settlement_attempt")()
	var attempt models.SettlementAttempt
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("no settlement attempt for task %s", taskID)
	}
	if err != nil {
		return nil, dbError(err, "get settlement attempt")
	}
	return &attempt, nil
}

func (s *GormStore) DeleteSettlementAttempt(ctx context.Context, taskID string) error {
	defer observe("delete_settlement_attempt")()
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&models.SettlementAttempt{}).Error
	return dbError(err, "delete settlement attempt")
}

func (s *GormStore) ListSettlementAttempts(ctx context.Context) ([]*models.SettlementAttempt, error) {
	defer observe("list_settlement_attempts")()
	var attempts []*models.SettlementAttempt
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&attempts).Error
	return attempts, dbError(err, "list settlement attempts")
}

// ---- users ----

// CreateUser fails with Conflict when the wallet is already registered
func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	defer observe("create_user")()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("wallet_address = ?", user.WalletAddress).Count(&count).Error; err != nil {
			return dbError(err, "check user")
		}
		if count > 0 {
			return apperrors.Conflict("user %s already exists", user.WalletAddress)
		}
		err := tx.Create(user).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Conflict("user %s already exists", user.WalletAddress)
		}
		return dbError(err, "create user")
	})
}

func (s *GormStore) GetUser(ctx context.Context, wallet string) (*models.User, error) {
	defer observe("get_user")()
	var user models.User
	err := s.db.WithContext(ctx).Where("wallet_address = ?", wallet).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("user %s not found", wallet)
	}
	if err != nil {
		return nil, dbError(err, "get user")
	}
	return &user, nil
}

func (s *GormStore) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	defer observe("list_users")()
	var users []*models.User
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(utils.ClampLimit(limit, defaultListLimit, maxListLimit)).
		Offset(offset).
		Find(&users).Error
	return users, dbError(err, "list users")
}

func (s *GormStore) SetRole(ctx context.Context, wallet string, role models.Role) (*models.User, error) {
	defer observe("set_role")()
	now := time.Now().UTC()
	user := &models.User{WalletAddress: wallet, Role: role, CreatedAt: now, UpdatedAt: now}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet_address"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return nil, dbError(err, "set role")
	}
	return s.GetUser(ctx, wallet)
}

// ---- statistics ----

func (s *GormStore) Statistics(ctx context.Context) (*models.MarketplaceStatistics, error) {
	defer observe("statistics")()
	conn := s.db.WithContext(ctx)
	stats := &models.MarketplaceStatistics{TasksByStatus: make(map[models.TaskLifecycleStatus]int64)}

	var byStatus []struct {
		Status models.TaskLifecycleStatus
		Count  int64
	}
	if err := conn.Model(&models.Task{}).Select("status, COUNT(*) AS count").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, dbError(err, "count tasks")
	}
	for _, row := range byStatus {
		stats.TasksByStatus[row.Status] = row.Count
	}

	var paid struct {
		Count int64
		Total int64
	}
	if err := conn.Model(&models.LedgerTransaction{}).
		Where("type = ?", models.TransactionTaskPayment).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Scan(&paid).Error; err != nil {
		return nil, dbError(err, "sum payments")
	}
	stats.Payments = paid.Count
	stats.TotalPaidLamports = paid.Total

	if err := conn.Model(&models.User{}).Count(&stats.Users).Error; err != nil {
		return nil, dbError(err, "count users")
	}
	return stats, nil
}
