package services

import (
	"context"
	"testing"

	"datalabel-backend/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestCustodyBalanceCheck(t *testing.T) {
	h := newHarness(t, config.SettlementCustody)
	ctx := context.Background()

	healthy := NewMonitoringService(h.store, h.settlement, nil, 500_000_000, quietLogger())
	assert.True(t, healthy.CheckCustodyBalance(ctx))

	low := NewMonitoringService(h.store, h.settlement, nil, 2_000_000_000, quietLogger())
	assert.False(t, low.CheckCustodyBalance(ctx))

	// outside custody mode there is nothing to watch
	external := newHarness(t, config.SettlementExternal)
	m := NewMonitoringService(external.store, external.settlement, nil, 2_000_000_000, quietLogger())
	assert.True(t, m.CheckCustodyBalance(ctx))
}

func TestMonitoringStartStop(t *testing.T) {
	h := newHarness(t, config.SettlementCustody)
	calls := 0
	m := NewMonitoringService(h.store, h.settlement, func() { calls++ }, 0, quietLogger())
	m.Start()
	m.Stop()
	m.Stop()
	assert.GreaterOrEqual(t, calls, 1)
}
