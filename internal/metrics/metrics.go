package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventOperations tracks API operations by HTTP status
	EventOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_event_operations_total",
			Help: "The total number of event API operations",
		},
		[]string{"operation", "status"},
	)

	// EventOperationDuration tracks the duration of API operations
	EventOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "app_event_operation_duration_seconds",
			Help:    "The duration of event API operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// IngestedEvents tracks ingestion outcomes per candidate event
	IngestedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_ingested_events_total",
			Help: "Candidate events by ingestion outcome",
		},
		[]string{"status"},
	)

	// LedgerCleanups tracks completed idempotency ledger cleanup runs
	LedgerCleanups = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "app_ledger_cleanups_total",
			Help: "The total number of completed idempotency ledger cleanups",
		},
	)

	// LedgerKeysDeleted tracks keys removed by ledger cleanups
	LedgerKeysDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "app_ledger_keys_deleted_total",
			Help: "The total number of idempotency keys deleted by cleanups",
		},
	)

	// ActiveEventStreams tracks the number of active live event streams
	ActiveEventStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_active_event_streams",
			Help: "The number of currently active event streams",
		},
	)
)

// Ingestion outcome labels for IngestedEvents.
const (
	StatusAppended     = "appended"
	StatusDuplicate    = "duplicate"
	StatusRejected     = "rejected"
	StatusUnregistered = "unregistered"
)
