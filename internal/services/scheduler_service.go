// Scheduler Service
// Runs the periodic jobs: settlement reconciliation and sign-in challenge cleanup
package services

import (
	"context"
	"sync"
	"time"

	"datalabel-backend/internal/metrics"
	"datalabel-backend/internal/models"
	"datalabel-backend/internal/repository"

	"github.com/sirupsen/logrus"
)

// SchedulerService manages periodic background tasks
type SchedulerService struct {
	tasks             *TaskService
	auth              *AuthService
	attempts          repository.SettlementAttemptRepository
	reconcileInterval time.Duration
	sweepInterval     time.Duration
	stopChan          chan struct{}
	stopOnce          sync.Once
	wg                sync.WaitGroup
	logger            *logrus.Logger
}

// NewSchedulerService a zero reconcileInterval disables the settlement reconciler
func NewSchedulerService(tasks *TaskService, authService *AuthService, attempts repository.SettlementAttemptRepository, reconcileInterval time.Duration, logger *logrus.Logger) *SchedulerService {
	return &SchedulerService{
		tasks:             tasks,
		auth:              authService,
		attempts:          attempts,
		reconcileInterval: reconcileInterval,
		sweepInterval:     time.Minute,
		stopChan:          make(chan struct{}),
		logger:            logger,
	}
}

// Start begins all scheduled tasks
func (s *SchedulerService) Start() {
	s.logger.Info("🚀 Scheduler service starting...")

	if s.reconcileInterval > 0 {
		s.logger.WithField("interval", s.reconcileInterval.String()).Info("📅 Settlement reconciler enabled")
		s.every(s.reconcileInterval, func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.reconcileInterval)
			defer cancel()
			if _, err := s.ReconcileSettlements(ctx); err != nil {
				s.logger.WithError(err).Warn("❌ Scheduled settlement reconciliation failed")
			}
		})
	} else {
		s.logger.Info("⚠️ Settlement reconciler disabled")
	}

	if s.auth != nil {
		s.every(s.sweepInterval, func() {
			if n := s.auth.SweepChallenges(); n > 0 {
				s.logger.WithField("removed", n).Debug("Expired sign-in challenges removed")
			}
		})
	}

	s.logger.Info("✅ Scheduler service started")
}

// Stop gracefully stops all scheduled tasks
func (s *SchedulerService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("🛑 Stopping scheduler service...")
		close(s.stopChan)
		s.wg.Wait()
		s.logger.Info("✅ Scheduler service stopped")
	})
}

func (s *SchedulerService) every(interval time.Duration, job func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				job()
			case <-s.stopChan:
				return
			}
		}
	}()
}

// ReconcileSettlements re-checks every open settlement attempt and returns the
// number of tasks it completed
func (s *SchedulerService) ReconcileSettlements(ctx context.Context) (int, error) {
	attempts, err := s.attempts.ListSettlementAttempts(ctx)
	if err != nil {
		return 0, err
	}
	metrics.SettlementAttemptsOpen.Set(float64(len(attempts)))

	completed := 0
	for _, attempt := range attempts {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}
		task, err := s.tasks.ReconcileSettlement(ctx, attempt.TaskID)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"task_id":   attempt.TaskID,
				"signature": attempt.Signature,
				"error":     err.Error(),
			}).Warn("Settlement attempt still open")
			continue
		}
		if task.Status == models.TaskCompleted {
			completed++
		}
	}
	if completed > 0 {
		s.logger.WithField("completed", completed).Info("✅ Reconciled late settlements")
	}
	return completed, nil
}
