package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

// Bus subset of the NATS client the event bridge needs
type Bus interface {
	Publish(subject string, v interface{}) error
	TaskEventSubject(eventType string) string
	SubscribeLedgerConfirmations(handler func(data []byte)) error
}

// ConfirmationHandler consumes ledger confirmation notices
type ConfirmationHandler interface {
	HandleLedgerConfirmation(ctx context.Context, notice LedgerConfirmation) error
}

// NATSPublisher publishes task events on <taskEvents>.<type>
type NATSPublisher struct {
	bus    Bus
	logger *logrus.Logger
}

func NewNATSPublisher(bus Bus, logger *logrus.Logger) *NATSPublisher {
	return &NATSPublisher{bus: bus, logger: logger}
}

func (p *NATSPublisher) PublishTaskEvent(ctx context.Context, event TaskEvent) {
	subject := p.bus.TaskEventSubject(string(event.Type))
	if err := p.bus.Publish(subject, event); err != nil {
		p.logger.WithFields(logrus.Fields{
			"subject": subject,
			"task_id": event.TaskID,
			"error":   err.Error(),
		}).Warn("Failed to publish task event")
	}
}

// SubscribeConfirmations route ledger confirmation notices to handler.
// Each notice is handled with its own timeout so a slow ledger cannot stall the subscription.
func SubscribeConfirmations(bus Bus, handler ConfirmationHandler, timeout time.Duration, logger *logrus.Logger) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return bus.SubscribeLedgerConfirmations(func(data []byte) {
		var notice LedgerConfirmation
		if err := json.Unmarshal(data, &notice); err != nil || notice.TaskID == "" {
			logger.WithField("payload", string(data)).Warn("Ignoring malformed ledger confirmation")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := handler.HandleLedgerConfirmation(ctx, notice); err != nil {
			logger.WithFields(logrus.Fields{
				"task_id":   notice.TaskID,
				"signature": notice.Signature,
				"error":     err.Error(),
			}).Warn("Ledger confirmation not applied")
		}
	})
}
