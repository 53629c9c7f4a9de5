package services

import (
	"context"
	"sync"
	"time"

	"datalabel-backend/internal/metrics"
	"datalabel-backend/internal/repository"
	"datalabel-backend/internal/utils"

	"github.com/sirupsen/logrus"
)

// MonitoringService keeps the storage and custody gauges current and warns
// when the custody payer runs low
type MonitoringService struct {
	store                repository.Store
	settlement           *SettlementService
	poolStats            func()
	minCustodyBalance    uint64
	storeCheckInterval   time.Duration
	balanceCheckInterval time.Duration
	stopCh               chan struct{}
	stopOnce             sync.Once
	wg                   sync.WaitGroup
	logger               *logrus.Logger
}

// NewMonitoringService poolStats may be nil when the store has no connection pool
func NewMonitoringService(store repository.Store, settlement *SettlementService, poolStats func(), minCustodyBalance uint64, logger *logrus.Logger) *MonitoringService {
	return &MonitoringService{
		store:                store,
		settlement:           settlement,
		poolStats:            poolStats,
		minCustodyBalance:    minCustodyBalance,
		storeCheckInterval:   10 * time.Second,
		balanceCheckInterval: 60 * time.Second,
		stopCh:               make(chan struct{}),
		logger:               logger,
	}
}

// Start starts the monitoring loops
func (m *MonitoringService) Start() {
	m.logger.Info("🚀 Starting monitoring service...")

	m.wg.Add(1)
	go m.loop(m.storeCheckInterval, m.CheckStore)

	if m.settlement.CustodyAddress() != "" {
		m.wg.Add(1)
		go m.loop(m.balanceCheckInterval, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			m.CheckCustodyBalance(ctx)
		})
	}

	m.logger.Info("✅ Monitoring service started")
}

// Stop stops the monitoring loops
func (m *MonitoringService) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
		m.logger.Info("✅ Monitoring service stopped")
	})
}

// loop runs job immediately, then on every tick
func (m *MonitoringService) loop(interval time.Duration, job func()) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	job()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			job()
		}
	}
}

// CheckStore updates the storage health gauges
func (m *MonitoringService) CheckStore() {
	if m.poolStats != nil {
		m.poolStats()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Ping(ctx); err != nil {
		metrics.DBConnectionStatus.Set(0)
		m.logger.WithError(err).Warn("⚠️ Store ping failed")
		return
	}
	metrics.DBConnectionStatus.Set(1)
}

// CheckCustodyBalance refreshes the custody balance gauge and reports whether
// the balance is at or above the configured minimum
func (m *MonitoringService) CheckCustodyBalance(ctx context.Context) bool {
	address := m.settlement.CustodyAddress()
	if address == "" {
		return true
	}
	balance, err := m.settlement.Balance(ctx, address)
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err.Error(),
		}).Warn("⚠️ [Monitor] Failed to fetch custody balance")
		return false
	}
	if balance < m.minCustodyBalance {
		m.logger.WithFields(logrus.Fields{
			"address": address,
			"balance": utils.FromLamports(int64(balance)).String(),
			"minimum": utils.FromLamports(int64(m.minCustodyBalance)).String(),
		}).Warn("⚠️ [Monitor] Custody balance below minimum, payouts may fail")
		return false
	}
	return true
}
