package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/db"
	"datalabel-backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newGormStore(t *testing.T) Store {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), db.GormConfig())
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(conn))
	return NewGormStore(conn)
}

func newMemoryStore(t *testing.T) Store {
	return NewMemoryStore()
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range map[string]func(*testing.T) Store{
		"memory": newMemoryStore,
		"gorm":   newGormStore,
	} {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func strPtr(s string) *string { return &s }

func newTask(provider string, created time.Time) *models.Task {
	return &models.Task{
		ID:          uuid.NewString(),
		Title:       "Label cars",
		Description: "Draw a box around every car",
		Reward:      10_000_000,
		Status:      models.TaskAvailable,
		ProviderID:  provider,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestTaskCRUDAndFilters(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		a := newTask("P1", base)
		b := newTask("P1", base.Add(time.Minute))
		c := newTask("P2", base.Add(2*time.Minute))
		c.Status = models.TaskInProgress
		c.WorkerID = strPtr("W1")
		for _, task := range []*models.Task{a, b, c} {
			require.NoError(t, s.CreateTask(ctx, task))
		}

		got, err := s.GetTask(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.Title, got.Title)
		assert.Nil(t, got.WorkerID)

		_, err = s.GetTask(ctx, "missing")
		assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

		all, err := s.ListTasks(ctx, TaskFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{c.ID, b.ID, a.ID}, []string{all[0].ID, all[1].ID, all[2].ID}, "newest first")

		byProvider, err := s.ListTasks(ctx, TaskFilter{ProviderID: "P1"})
		require.NoError(t, err)
		assert.Len(t, byProvider, 2)

		byWorker, err := s.ListTasks(ctx, TaskFilter{WorkerID: "W1"})
		require.NoError(t, err)
		require.Len(t, byWorker, 1)
		assert.Equal(t, "W1", byWorker[0].WorkerAddress())

		byStatus, err := s.ListTasks(ctx, TaskFilter{Status: models.TaskAvailable, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, byStatus, 1)
	})
}

func TestUpdateTaskCompareAndSwap(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		task := newTask("P1", time.Now().UTC())
		require.NoError(t, s.CreateTask(ctx, task))

		task.Status = models.TaskInProgress
		task.WorkerID = strPtr("W1")
		require.NoError(t, s.UpdateTask(ctx, task, models.TaskAvailable))

		// a second writer that still believes the task is AVAILABLE loses
		stale := task.Clone()
		stale.WorkerID = strPtr("W2")
		err := s.UpdateTask(ctx, stale, models.TaskAvailable)
		assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))

		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, "W1", got.WorkerAddress())

		// clearing the worker writes NULL
		task.Status = models.TaskAvailable
		task.WorkerID = nil
		require.NoError(t, s.UpdateTask(ctx, task, models.TaskInProgress))
		got, err = s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Nil(t, got.WorkerID)

		missing := newTask("P1", time.Now())
		err = s.UpdateTask(ctx, missing, models.TaskAvailable)
		assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	})
}

func TestDeleteTask(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		task := newTask("P1", time.Now().UTC())
		require.NoError(t, s.CreateTask(ctx, task))

		err := s.DeleteTask(ctx, task.ID, models.TaskInProgress)
		assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))

		require.NoError(t, s.DeleteTask(ctx, task.ID, models.TaskAvailable))
		err = s.DeleteTask(ctx, task.ID, models.TaskAvailable)
		assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	})
}

func submissionFor(task *models.Task, worker string, labels ...string) *models.Submission {
	sub := &models.Submission{TaskID: task.ID, WorkerID: worker, ArtifactReference: "sha256://" + task.ID}
	for i, l := range labels {
		sub.Annotations = append(sub.Annotations, models.Annotation{ID: fmt.Sprint(i), X: 1, Y: 2, Width: 3, Height: 4, Label: l})
	}
	return sub
}

func TestSubmissionLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		task := newTask("P1", time.Now().UTC())
		require.NoError(t, s.CreateTask(ctx, task))

		task.Status = models.TaskPendingApproval
		task.WorkerID = strPtr("W1")
		require.NoError(t, s.SubmitWork(ctx, task, models.TaskAvailable, submissionFor(task, "W1", "car", "bus")))

		sub, err := s.GetSubmission(ctx, task.ID)
		require.NoError(t, err)
		require.Len(t, sub.Annotations, 2)
		assert.Equal(t, "bus", sub.Annotations[1].Label)
		assert.Nil(t, sub.SettlementSignature)

		err = s.CreateSubmission(ctx, submissionFor(task, "W1", "again"))
		assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))

		// reject path
		task.Status = models.TaskAvailable
		task.WorkerID = nil
		require.NoError(t, s.DiscardSubmission(ctx, task, models.TaskPendingApproval))
		_, err = s.GetSubmission(ctx, task.ID)
		assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

		require.NoError(t, s.DeleteSubmission(ctx, task.ID), "idempotent")
		err = s.AttachSettlement(ctx, task.ID, "sig")
		assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	})
}

func TestSubmitWorkIsAtomic(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		task := newTask("P1", time.Now().UTC())
		require.NoError(t, s.CreateTask(ctx, task))
		require.NoError(t, s.CreateSubmission(ctx, submissionFor(task, "W0", "stale")))

		task.Status = models.TaskPendingApproval
		task.WorkerID = strPtr("W1")
		err := s.SubmitWork(ctx, task, models.TaskAvailable, submissionFor(task, "W1", "car"))
		assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))

		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskAvailable, got.Status, "task update rolled back")
		assert.Nil(t, got.WorkerID)
	})
}

func TestCompleteTask(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		task := newTask("P1", time.Now().UTC())
		require.NoError(t, s.CreateTask(ctx, task))
		task.Status = models.TaskPendingApproval
		task.WorkerID = strPtr("W1")
		require.NoError(t, s.SubmitWork(ctx, task, models.TaskAvailable, submissionFor(task, "W1", "car")))
		require.NoError(t, s.SaveSettlementAttempt(ctx, &models.SettlementAttempt{TaskID: task.ID, Signature: "sig", Amount: task.Reward, FromAddress: "C", ToAddress: "W1"}))

		task.Status = models.TaskCompleted
		ltx := &models.LedgerTransaction{
			ID: uuid.NewString(), Type: models.TransactionTaskPayment, Amount: task.Reward,
			Status: models.TransactionConfirmed, FromAddress: "P1", ToAddress: "W1", Signature: "sig", TaskID: task.ID,
		}
		require.NoError(t, s.CompleteTask(ctx, task, models.TaskPendingApproval, "sig", ltx))

		sub, err := s.GetSubmission(ctx, task.ID)
		require.NoError(t, err)
		require.NotNil(t, sub.SettlementSignature)
		assert.Equal(t, "sig", *sub.SettlementSignature)

		_, err = s.GetSettlementAttempt(ctx, task.ID)
		assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

		txs, err := s.ListTransactions(ctx, TransactionFilter{TaskID: task.ID})
		require.NoError(t, err)
		require.Len(t, txs, 1)

		// replay loses the CAS and appends nothing
		replay := *ltx
		replay.ID = uuid.NewString()
		err = s.CompleteTask(ctx, task, models.TaskPendingApproval, "sig", &replay)
		assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))
		txs, err = s.ListTransactions(ctx, TransactionFilter{TaskID: task.ID})
		require.NoError(t, err)
		assert.Len(t, txs, 1)
	})
}

func TestCompleteTaskRejectsReusedSignature(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		pending := func(worker string) *models.Task {
			task := newTask("P1", time.Now().UTC())
			require.NoError(t, s.CreateTask(ctx, task))
			task.Status = models.TaskPendingApproval
			task.WorkerID = strPtr(worker)
			require.NoError(t, s.SubmitWork(ctx, task, models.TaskAvailable, submissionFor(task, worker, "car")))
			return task
		}
		complete := func(task *models.Task, signature string) error {
			task.Status = models.TaskCompleted
			return s.CompleteTask(ctx, task, models.TaskPendingApproval, signature, &models.LedgerTransaction{
				ID: uuid.NewString(), Type: models.TransactionTaskPayment, Amount: task.Reward,
				Status: models.TransactionConfirmed, FromAddress: "P1", ToAddress: *task.WorkerID,
				Signature: signature, TaskID: task.ID,
			})
		}

		first, second := pending("W1"), pending("W2")
		require.NoError(t, complete(first, "shared-sig"))
		err := complete(second, "shared-sig")
		assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

		got, err := s.GetTask(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskPendingApproval, got.Status, "rejected completion rolls back")
		txs, err := s.ListTransactions(ctx, TransactionFilter{Signature: "shared-sig"})
		require.NoError(t, err)
		assert.Len(t, txs, 1)

		// the manual sentinel is shared by every off-ledger payment
		third, fourth := pending("W3"), pending("W4")
		require.NoError(t, complete(third, models.ManualApprovalSignature))
		require.NoError(t, complete(fourth, models.ManualApprovalSignature))
	})
}

func TestListTransactions(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		add := func(typ models.LedgerTransactionType, from, to string, at time.Duration) {
			require.NoError(t, s.AppendTransaction(ctx, &models.LedgerTransaction{
				ID: uuid.NewString(), Type: typ, Amount: 1, Status: models.TransactionConfirmed,
				FromAddress: from, ToAddress: to, Signature: "s", CreatedAt: base.Add(at),
			}))
		}
		add(models.TransactionTaskPayment, "P1", "W1", 0)
		add(models.TransactionDeposit, "X", "P1", time.Minute)
		add(models.TransactionTaskPayment, "P2", "W2", 2*time.Minute)

		txs, err := s.ListTransactions(ctx, TransactionFilter{Wallet: "P1"})
		require.NoError(t, err)
		require.Len(t, txs, 2, "matches from or to")
		assert.Equal(t, models.TransactionDeposit, txs[0].Type)

		txs, err = s.ListTransactions(ctx, TransactionFilter{Type: models.TransactionTaskPayment})
		require.NoError(t, err)
		assert.Len(t, txs, 2)

		txs, err = s.ListTransactions(ctx, TransactionFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, "W2", txs[0].ToAddress)
	})
}

func TestSettlementAttempts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := &models.SettlementAttempt{TaskID: "t1", Signature: "s1", Amount: 5, FromAddress: "C", ToAddress: "W", LastValidBlockHeight: 10}
		require.NoError(t, s.SaveSettlementAttempt(ctx, a))
		a2 := *a
		a2.Signature = "s2"
		require.NoError(t, s.SaveSettlementAttempt(ctx, &a2), "replace")

		got, err := s.GetSettlementAttempt(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "s2", got.Signature)

		list, err := s.ListSettlementAttempts(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, s.DeleteSettlementAttempt(ctx, "t1"))
		require.NoError(t, s.DeleteSettlementAttempt(ctx, "t1"))
		list, err = s.ListSettlementAttempts(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestUsers(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateUser(ctx, &models.User{WalletAddress: "A", Role: models.RoleProvider}))
		err := s.CreateUser(ctx, &models.User{WalletAddress: "A", Role: models.RoleWorker})
		assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

		u, err := s.GetUser(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, models.RoleProvider, u.Role)

		u, err = s.SetRole(ctx, "A", models.RoleWorker)
		require.NoError(t, err)
		assert.Equal(t, models.RoleWorker, u.Role)

		u, err = s.SetRole(ctx, "B", models.RoleUnselected)
		require.NoError(t, err)
		assert.Equal(t, "B", u.WalletAddress)

		users, err := s.ListUsers(ctx, 0, 0)
		require.NoError(t, err)
		assert.Len(t, users, 2)

		_, err = s.GetUser(ctx, "C")
		assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	})
}

func TestConcurrentCompareAndSwap(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		task := newTask("P1", time.Now().UTC())
		require.NoError(t, s.CreateTask(ctx, task))

		const workers = 8
		var wg sync.WaitGroup
		results := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				mine := task.Clone()
				mine.Status = models.TaskInProgress
				mine.WorkerID = strPtr(fmt.Sprintf("W%d", i))
				results <- s.UpdateTask(ctx, mine, models.TaskAvailable)
			}(i)
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			if err == nil {
				wins++
				continue
			}
			assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))
		}
		assert.Equal(t, 1, wins)
	})
}

func TestStatistics(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		stats, err := s.Statistics(ctx)
		require.NoError(t, err)
		assert.Empty(t, stats.TasksByStatus)
		assert.Zero(t, stats.TotalPaidLamports)

		now := time.Now().UTC()
		require.NoError(t, s.CreateTask(ctx, newTask("P1", now)))
		require.NoError(t, s.CreateTask(ctx, newTask("P1", now.Add(time.Second))))
		taken := newTask("P1", now.Add(2*time.Second))
		taken.Status = models.TaskInProgress
		taken.WorkerID = strPtr("W1")
		require.NoError(t, s.CreateTask(ctx, taken))

		require.NoError(t, s.CreateUser(ctx, &models.User{WalletAddress: "P1", Role: models.RoleProvider}))
		for i, amount := range []int64{250, 750} {
			require.NoError(t, s.AppendTransaction(ctx, &models.LedgerTransaction{
				ID: uuid.NewString(), Type: models.TransactionTaskPayment, Amount: amount,
				Status: models.TransactionConfirmed, FromAddress: "P1", ToAddress: "W1",
				Signature: fmt.Sprintf("sig-%d", i), TaskID: fmt.Sprintf("T%d", i),
			}))
		}
		require.NoError(t, s.AppendTransaction(ctx, &models.LedgerTransaction{
			ID: uuid.NewString(), Type: models.TransactionDeposit, Amount: 10_000,
			Status: models.TransactionConfirmed, FromAddress: "X", ToAddress: "P1", Signature: "dep",
		}))

		stats, err = s.Statistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.TasksByStatus[models.TaskAvailable])
		assert.Equal(t, int64(1), stats.TasksByStatus[models.TaskInProgress])
		assert.Equal(t, int64(2), stats.Payments)
		assert.Equal(t, int64(1000), stats.TotalPaidLamports)
		assert.Equal(t, int64(1), stats.Users)
	})
}
