package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"datalabel-backend/internal/config"
	"datalabel-backend/internal/events"
	"datalabel-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileSettlements(t *testing.T) {
	h := newHarness(t, config.SettlementCustody)
	ctx := context.Background()
	scheduler := NewSchedulerService(h.tasks, nil, h.store, 0, quietLogger())

	landed := h.createTask(t, "0.01")
	h.submit(t, h.worker, landed.ID, "car")
	stuck := h.createTask(t, "0.02")
	h.submit(t, h.worker2, stuck.ID, "bus")

	h.ledger.Drop = true
	for _, id := range []string{landed.ID, stuck.ID} {
		_, _, err := h.tasks.ApproveTask(ctx, h.provider.principal(), id, "")
		require.Error(t, err)
	}

	completed, err := scheduler.ReconcileSettlements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, completed)

	attempt, err := h.store.GetSettlementAttempt(ctx, landed.ID)
	require.NoError(t, err)
	h.ledger.Land(attempt.Signature)

	completed, err = scheduler.ReconcileSettlements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)

	got, err := h.store.GetTask(ctx, landed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, got.Status)
	got, err = h.store.GetTask(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPendingApproval, got.Status)

	open, err := h.store.ListSettlementAttempts(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, stuck.ID, open[0].TaskID)
}

func TestSchedulerStartStop(t *testing.T) {
	h := newHarness(t, config.SettlementManual)
	authService, _ := newAuthService(t)
	scheduler := NewSchedulerService(h.tasks, authService, h.store, 10*time.Millisecond, quietLogger())
	scheduler.Start()
	time.Sleep(30 * time.Millisecond)
	scheduler.Stop()
	scheduler.Stop()
}

func TestPushServiceDeliversTaskEvents(t *testing.T) {
	push := NewWebSocketPushService(quietLogger())
	provider := &Connection{ID: "p1", UserAddress: "provider", Send: make(chan []byte, 8)}
	worker := &Connection{ID: "w1", UserAddress: "worker", Send: make(chan []byte, 8)}
	push.RegisterConnection(provider)
	push.RegisterConnection(worker)

	receive := func(c *Connection) PushMessage {
		t.Helper()
		select {
		case raw := <-c.Send:
			var msg PushMessage
			require.NoError(t, json.Unmarshal(raw, &msg))
			return msg
		case <-time.After(time.Second):
			t.Fatalf("no message for %s", c.UserAddress)
		}
		return PushMessage{}
	}
	assert.Equal(t, "connection_established", receive(provider).Type)
	assert.Equal(t, "connection_established", receive(worker).Type)
	assert.Equal(t, 2, push.GetActiveConnections())

	task := &models.Task{ID: "t1", ProviderID: "provider", Status: models.TaskAvailable}
	push.PublishTaskEvent(context.Background(), events.TaskEvent{
		Type:             events.TaskRejected,
		TaskID:           task.ID,
		Status:           task.Status,
		ProviderID:       task.ProviderID,
		PreviousWorkerID: "worker",
		Reason:           "blurry",
		OccurredAt:       time.Now(),
	})

	for _, c := range []*Connection{provider, worker} {
		msg := receive(c)
		assert.Equal(t, "task_rejected", msg.Type)
		assert.Equal(t, c.UserAddress, msg.UserAddress)
		data, ok := msg.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "t1", data["task_id"])
		assert.Equal(t, "blurry", data["reason"])
	}

	push.UnregisterConnection(worker)
	push.UnregisterConnection(worker)
	_, open := <-worker.Send
	assert.False(t, open)
	assert.Equal(t, 0, push.GetUserConnections("worker"))
	assert.Equal(t, 1, push.GetUserConnections("provider"))
}

func TestPushServiceStop(t *testing.T) {
	push := NewWebSocketPushService(quietLogger())
	provider := &Connection{ID: generateConnectionID(), UserAddress: "provider", Send: make(chan []byte, 8)}
	require.True(t, push.RegisterConnection(provider))
	hello := <-provider.Send

	push.PublishTaskEvent(context.Background(), events.TaskEvent{
		Type: events.TaskCreated, TaskID: "t1", ProviderID: "provider", OccurredAt: time.Now(),
	})
	var first, second PushMessage
	require.NoError(t, json.Unmarshal(hello, &first))
	select {
	case raw := <-provider.Send:
		require.NoError(t, json.Unmarshal(raw, &second))
	case <-time.After(time.Second):
		t.Fatal("no task event delivered")
	}
	assert.NotEqual(t, first.MessageID, second.MessageID, "messages sent in the same instant keep distinct ids")
	assert.NotEqual(t, generateConnectionID(), generateConnectionID())

	done := make(chan struct{})
	go func() {
		push.Stop()
		push.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}

	_, open := <-provider.Send
	assert.False(t, open, "stop closes open connections")
	assert.Equal(t, 0, push.GetActiveConnections())

	late := &Connection{ID: generateConnectionID(), UserAddress: "worker", Send: make(chan []byte, 1)}
	assert.False(t, push.RegisterConnection(late))
	push.UnregisterConnection(late)
}
