package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/models"
	"datalabel-backend/internal/utils"
)

// MemoryStore in-process Store for development and tests. A single mutex
// makes every composite write atomic.
type MemoryStore struct {
	mu           sync.RWMutex
	tasks        map[string]*models.Task
	submissions  map[string]*models.Submission
	transactions []*models.LedgerTransaction
	attempts     map[string]*models.SettlementAttempt
	users        map[string]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:       make(map[string]*models.Task),
		submissions: make(map[string]*models.Submission),
		attempts:    make(map[string]*models.SettlementAttempt),
		users:       make(map[string]*models.User),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func cloneSubmission(sub *models.Submission) *models.Submission {
	c := *sub
	c.Annotations = append([]models.Annotation(nil), sub.Annotations...)
	if sub.SettlementSignature != nil {
		sig := *sub.SettlementSignature
		c.SettlementSignature = &sig
	}
	return &c
}

// ---- tasks ----

func (s *MemoryStore) CreateTask(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return apperrors.Conflict("task %s already exists", task.ID)
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}
	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *MemoryStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, apperrors.NotFound("task %s not found", id)
	}
	return task.Clone(), nil
}

func (s *MemoryStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Task
	for _, t := range s.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.ProviderID != "" && t.ProviderID != filter.ProviderID {
			continue
		}
		if filter.WorkerID != "" && t.WorkerAddress() != filter.WorkerID {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, filter.Offset, utils.ClampLimit(filter.Limit, defaultListLimit, maxListLimit)), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	if offset > 0 {
		items = items[offset:]
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// casLocked caller holds s.mu
func (s *MemoryStore) casLocked(task *models.Task, expected models.TaskLifecycleStatus) error {
	current, ok := s.tasks[task.ID]
	if !ok {
		return apperrors.NotFound("task %s not found", task.ID)
	}
	if current.Status != expected {
		return apperrors.InvalidState("task %s is %s, expected %s", task.ID, current.Status, expected)
	}
	return nil
}

func (s *MemoryStore) writeLocked(task *models.Task) {
	task.UpdatedAt = time.Now().UTC()
	stored := task.Clone()
	stored.CreatedAt = s.tasks[task.ID].CreatedAt
	stored.ProviderID = s.tasks[task.ID].ProviderID
	s.tasks[task.ID] = stored
}

func (s *MemoryStore) UpdateTask(ctx context.Context, task *models.Task, expected models.TaskLifecycleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.casLocked(task, expected); err != nil {
		return err
	}
	s.writeLocked(task)
	return nil
}

func (s *MemoryStore) DeleteTask(ctx context.Context, id string, expected models.TaskLifecycleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.casLocked(&models.Task{ID: id}, expected); err != nil {
		return err
	}
	delete(s.tasks, id)
	return nil
}

// ---- submissions ----

func (s *MemoryStore) createSubmissionLocked(sub *models.Submission) error {
	if _, ok := s.submissions[sub.TaskID]; ok {
		return apperrors.InvalidState("task %s already has a submission", sub.TaskID)
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	s.submissions[sub.TaskID] = cloneSubmission(sub)
	return nil
}

func (s *MemoryStore) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSubmissionLocked(sub)
}

func (s *MemoryStore) GetSubmission(ctx context.Context, taskID string) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[taskID]
	if !ok {
		return nil, apperrors.NotFound("submission for task %s not found", taskID)
	}
	return cloneSubmission(sub), nil
}

func (s *MemoryStore) DeleteSubmission(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.submissions, taskID)
	return nil
}

func (s *MemoryStore) attachLocked(taskID, signature string) error {
	sub, ok := s.submissions[taskID]
	if !ok {
		return apperrors.NotFound("submission for task %s not found", taskID)
	}
	sig := signature
	sub.SettlementSignature = &sig
	return nil
}

func (s *MemoryStore) AttachSettlement(ctx context.Context, taskID, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachLocked(taskID, signature)
}

// ---- composites ----

func (s *MemoryStore) SubmitWork(ctx context.Context, task *models.Task, expected models.TaskLifecycleStatus, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.casLocked(task, expected); err != nil {
		return err
	}
	if err := s.createSubmissionLocked(sub); err != nil {
		return err
	}
	s.writeLocked(task)
	return nil
}

func (s *MemoryStore) DiscardSubmission(ctx context.Context, task *models.Task, expected models.TaskLifecycleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.casLocked(task, expected); err != nil {
		return err
	}
	delete(s.submissions, task.ID)
	s.writeLocked(task)
	return nil
}

func (s *MemoryStore) CompleteTask(ctx context.Context, task *models.Task, expected models.TaskLifecycleStatus, signature string, tx *models.LedgerTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.casLocked(task, expected); err != nil {
		return err
	}
	if _, ok := s.submissions[task.ID]; !ok {
		return apperrors.NotFound("submission for task %s not found", task.ID)
	}
	if tx.Signature != models.ManualApprovalSignature {
		for _, existing := range s.transactions {
			if existing.Signature == tx.Signature {
				return signatureReused(tx.Signature)
			}
		}
	}
	_ = s.attachLocked(task.ID, signature)
	s.appendLocked(tx)
	delete(s.attempts, task.ID)
	s.writeLocked(task)
	return nil
}

// ---- ledger transactions ----

func (s *MemoryStore) appendLocked(tx *models.LedgerTransaction) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	c := *tx
	s.transactions = append(s.transactions, &c)
}

func (s *MemoryStore) AppendTransaction(ctx context.Context, tx *models.LedgerTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(tx)
	return nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]*models.LedgerTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.LedgerTransaction
	// newest first
	for i := len(s.transactions) - 1; i >= 0; i-- {
		tx := s.transactions[i]
		if filter.Wallet != "" && tx.FromAddress != filter.Wallet && tx.ToAddress != filter.Wallet {
			continue
		}
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		if filter.TaskID != "" && tx.TaskID != filter.TaskID {
			continue
		}
		if filter.Signature != "" && tx.Signature != filter.Signature {
			continue
		}
		c := *tx
		out = append(out, &c)
	}
	return page(out, 0, utils.ClampLimit(filter.Limit, 10, maxListLimit)), nil
}

// ---- settlement attempts ----

func (s *MemoryStore) SaveSettlementAttempt(ctx context.Context, attempt *models.SettlementAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	c := *attempt
	s.attempts[attempt.TaskID] = &c
	return nil
}

func (s *MemoryStore) GetSettlementAttempt(ctx context.Context, taskID string) (*models.SettlementAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[taskID]
	if !ok {
		return nil, apperrors.NotFound("no settlement attempt for task %s", taskID)
	}
	c := *a
	return &c, nil
}

func (s *MemoryStore) DeleteSettlementAttempt(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, taskID)
	return nil
}

func (s *MemoryStore) ListSettlementAttempts(ctx context.Context) ([]*models.SettlementAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.SettlementAttempt, 0, len(s.attempts))
	for _, a := range s.attempts {
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---- users ----

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.WalletAddress]; ok {
		return apperrors.Conflict("user %s already exists", user.WalletAddress)
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	c := *user
	s.users[user.WalletAddress] = &c
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, wallet string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[wallet]
	if !ok {
		return nil, apperrors.NotFound("user %s not found", wallet)
	}
	c := *u
	return &c, nil
}

func (s *MemoryStore) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].WalletAddress < out[j].WalletAddress
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, offset, utils.ClampLimit(limit, defaultListLimit, maxListLimit)), nil
}

func (s *MemoryStore) SetRole(ctx context.Context, wallet string, role models.Role) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	u, ok := s.users[wallet]
	if !ok {
		u = &models.User{WalletAddress: wallet, CreatedAt: now}
		s.users[wallet] = u
	}
	u.Role = role
	u.UpdatedAt = now
	c := *u
	return &c, nil
}

// ---- statistics ----

func (s *MemoryStore) Statistics(ctx context.Context) (*models.MarketplaceStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &models.MarketplaceStatistics{
		TasksByStatus: make(map[models.TaskLifecycleStatus]int64),
		Users:         int64(len(s.users)),
	}
	for _, task := range s.tasks {
		stats.TasksByStatus[task.Status]++
	}
	for _, tx := range s.transactions {
		if tx.Type == models.TransactionTaskPayment {
			stats.Payments++
			stats.TotalPaidLamports += tx.Amount
		}
	}
	return stats, nil
}
