package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Database
	// ============================================
	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	DBConnectionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_active",
		Help: "Number of active database connections",
	})

	DBConnectionIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_idle",
		Help: "Number of idle database connections",
	})

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_store_operation_duration_seconds",
			Help:    "Store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// ============================================
	// Task lifecycle
	// ============================================
	TaskTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_task_transitions_total",
			Help: "Total number of task state transitions",
		},
		[]string{"from", "to"},
	)

	TaskOperationRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_task_operation_rejected_total",
			Help: "Total number of rejected task operations by error kind",
		},
		[]string{"operation", "kind"},
	)

	// ============================================
	// Settlement
	// ============================================
	SettlementOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_settlement_outcomes_total",
			Help: "Total number of settlement attempts by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	SettlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_settlement_duration_seconds",
			Help:    "Settlement duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	SettlementAttemptsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_settlement_attempts_open",
		Help: "Settlement attempts awaiting reconciliation",
	})

	LedgerRPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_ledger_rpc_duration_seconds",
			Help:    "Ledger JSON-RPC call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "outcome"},
	)

	CustodyBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backend_custody_balance_lamports",
			Help: "Balance of the custody payer address in lamports",
		},
		[]string{"address"},
	)

	// ============================================
	// Artifact store
	// ============================================
	ArtifactUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_artifact_uploads_total",
			Help: "Total number of artifact uploads",
		},
		[]string{"store", "outcome"},
	)

	// ============================================
	// NATS and websocket
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_nats_messages_published_total",
			Help: "Total number of NATS messages published",
		},
		[]string{"subject", "outcome"},
	)

	NATSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_nats_messages_received_total",
			Help: "Total number of NATS messages received",
		},
		[]string{"event_type"},
	)

	NATSSubscriptionStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backend_nats_subscription_status",
			Help: "NATS subscription status (1=active, 0=inactive)",
		},
		[]string{"subject"},
	)

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_websocket_connections",
		Help: "Number of open websocket connections",
	})
)
