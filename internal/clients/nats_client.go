package clients

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"datalabel-backend/internal/config"
	"datalabel-backend/internal/metrics"

	"github.com/nats-io/nats.go"
)

// NATSClient NATS client
type NATSClient struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	subjects   config.NATSSubjects
	streamName string
}

// NewNATSClient connect to NATS and open a JetStream context
func NewNATSClient(cfg config.NATSConfig) (*NATSClient, error) {
	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	log.Printf("🔌 Connecting to NATS %s (timeout %v)", cfg.URL, connectTimeout)

	conn, err := nats.Connect(cfg.URL,
		nats.Name("datalabel-backend"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("⚠️ NATS disconnected: %v", err)
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("✅ NATS reconnected: %s", nc.ConnectedUrl())
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	client := &NATSClient{
		conn:       conn,
		js:         js,
		subjects:   cfg.Subjects.WithDefaults(),
		streamName: cfg.StreamName,
	}
	if cfg.StreamName != "" {
		if err := client.ensureStream(); err != nil {
			log.Printf("⚠️ JetStream stream unavailable, publishing with core NATS: %v", err)
		}
	}
	return client, nil
}

// ensureStream create the task event stream when missing
func (c *NATSClient) ensureStream() error {
	if _, err := c.js.StreamInfo(c.streamName); err == nil {
		log.Printf("Stream %s already exists", c.streamName)
		return nil
	}
	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:      c.streamName,
		Subjects:  []string{c.subjects.TaskEvents + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", c.streamName, err)
	}
	log.Printf("✅ Stream %s created", c.streamName)
	return nil
}

// Publish JSON-encode v and publish it on subject, through JetStream when available
func (c *NATSClient) Publish(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode NATS message: %w", err)
	}
	if c.streamName != "" {
		if _, err = c.js.Publish(subject, data); err == nil {
			metrics.NATSMessagesPublished.WithLabelValues(subject, "success").Inc()
			return nil
		}
	}
	if err = c.conn.Publish(subject, data); err != nil {
		metrics.NATSMessagesPublished.WithLabelValues(subject, "error").Inc()
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	metrics.NATSMessagesPublished.WithLabelValues(subject, "success").Inc()
	return nil
}

// TaskEventSubject subject for a task lifecycle event
func (c *NATSClient) TaskEventSubject(eventType string) string {
	return c.subjects.TaskEvents + "." + eventType
}

// SubscribeLedgerConfirmations deliver ledger confirmation notices to handler
func (c *NATSClient) SubscribeLedgerConfirmations(handler func(data []byte)) error {
	subject := c.subjects.LedgerConfirmations
	return c.subscribe(subject, func(msg *nats.Msg) {
		metrics.NATSMessagesReceived.WithLabelValues("ledger_confirmation").Inc()
		handler(msg.Data)
		// no-op error for core NATS messages
		_ = msg.Ack()
	})
}

func (c *NATSClient) subscribe(subject string, handler nats.MsgHandler) error {
	log.Printf("🔍 Subscribing to NATS subject: %s", subject)
	_, err := c.conn.Subscribe(subject, handler)
	if err == nil {
		metrics.NATSSubscriptionStatus.WithLabelValues(subject).Set(1)
		log.Printf("✅ NATS subscription active: %s", subject)
		return nil
	}

	log.Printf("⚠️ NATS subscription failed, trying JetStream: %v", err)
	if _, err = c.js.Subscribe(subject, handler); err != nil {
		metrics.NATSSubscriptionStatus.WithLabelValues(subject).Set(0)
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	metrics.NATSSubscriptionStatus.WithLabelValues(subject).Set(1)
	log.Printf("✅ JetStream subscription active: %s", subject)
	return nil
}

// Close connection
func (c *NATSClient) Close() {
	if c.conn != nil {
		c.conn.Close()
		metrics.NATSConnectionStatus.Set(0)
	}
}

// IsConnected whether the connection is currently up
func (c *NATSClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}
