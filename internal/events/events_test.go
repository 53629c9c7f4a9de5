package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"datalabel-backend/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	mu        sync.Mutex
	published map[string][]interface{}
	fail      error
	handler   func([]byte)
}

func (b *fakeBus) Publish(subject string, v interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	if b.published == nil {
		b.published = map[string][]interface{}{}
	}
	b.published[subject] = append(b.published[subject], v)
	return nil
}

func (b *fakeBus) TaskEventSubject(eventType string) string {
	return "datalabel.tasks." + eventType
}

func (b *fakeBus) SubscribeLedgerConfirmations(handler func([]byte)) error {
	b.handler = handler
	return nil
}

type recordingHandler struct {
	notices []LedgerConfirmation
	err     error
}

func (h *recordingHandler) HandleLedgerConfirmation(ctx context.Context, notice LedgerConfirmation) error {
	h.notices = append(h.notices, notice)
	return h.err
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestTaskEventRecipients(t *testing.T) {
	worker := "W1"
	task := &models.Task{ID: "t1", ProviderID: "P1", WorkerID: &worker, Status: models.TaskPendingApproval}
	ev := NewTaskEvent(TaskSubmitted, task, models.TaskInProgress)
	assert.Equal(t, []string{"P1", "W1"}, ev.Recipients())

	ev = NewTaskEvent(TaskRejected, &models.Task{ID: "t1", ProviderID: "P1", Status: models.TaskAvailable}, models.TaskPendingApproval)
	ev.PreviousWorkerID = "W1"
	assert.Equal(t, []string{"P1", "W1"}, ev.Recipients())
	assert.Empty(t, ev.WorkerID)
}

func TestNATSPublisher(t *testing.T) {
	bus := &fakeBus{}
	p := NewNATSPublisher(bus, quietLogger())
	p.PublishTaskEvent(context.Background(), TaskEvent{Type: TaskApproved, TaskID: "t1"})
	require.Len(t, bus.published["datalabel.tasks.approved"], 1)

	bus.fail = errors.New("down")
	assert.NotPanics(t, func() {
		p.PublishTaskEvent(context.Background(), TaskEvent{Type: TaskApproved, TaskID: "t2"})
	})
}

func TestMultiPublisher(t *testing.T) {
	a, b := &fakeBus{}, &fakeBus{}
	m := MultiPublisher{NewNATSPublisher(a, quietLogger()), nil, NewNATSPublisher(b, quietLogger()), NopPublisher{}}
	m.PublishTaskEvent(context.Background(), TaskEvent{Type: TaskCreated, TaskID: "t"})
	assert.Len(t, a.published["datalabel.tasks.created"], 1)
	assert.Len(t, b.published["datalabel.tasks.created"], 1)
}

func TestSubscribeConfirmations(t *testing.T) {
	bus := &fakeBus{}
	h := &recordingHandler{}
	require.NoError(t, SubscribeConfirmations(bus, h, 0, quietLogger()))
	require.NotNil(t, bus.handler)

	bus.handler([]byte(`{"task_id":"t1","signature":"sig","status":"Confirmed"}`))
	bus.handler([]byte(`not json`))
	bus.handler([]byte(`{"signature":"no task"}`))
	h.err = errors.New("still pending")
	bus.handler([]byte(`{"task_id":"t2","signature":"sig2"}`))

	require.Len(t, h.notices, 2)
	assert.Equal(t, LedgerConfirmation{TaskID: "t1", Signature: "sig", Status: "Confirmed"}, h.notices[0])
	assert.Equal(t, "t2", h.notices[1].TaskID)
}
