package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for Interactions.
const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeRejected    = "rejected"
	OutcomeFailed      = "failed"
)

// Flush trigger labels for BatchFlushes.
const (
	TriggerSize     = "size"
	TriggerTimer    = "timer"
	TriggerManual   = "manual"
	TriggerShutdown = "shutdown"
)

var (
	// Interactions counts inbound commands by type and outcome
	Interactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_interactions_total",
			Help: "Total number of inbound interaction commands by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// InteractionLatency tracks command handling time
	InteractionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engage_interaction_latency_seconds",
			Help:    "Latency of interaction command handling",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	// RateLimitDecisions counts limiter decisions; fail_open marks cache errors
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_rate_limit_decisions_total",
			Help: "Rate limiter decisions by interaction type and decision",
		},
		[]string{"type", "decision"},
	)

	// BatchFlushes counts dispatcher flushes by event type and trigger
	BatchFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_batch_flushes_total",
			Help: "Dispatcher flushes by event type and trigger",
		},
		[]string{"type", "trigger"},
	)

	// BatchSize observes the number of events per flushed batch
	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engage_batch_size",
			Help:    "Number of events per flushed batch",
			Buckets: []float64{1, 2, 5, 10, 20, 50},
		},
		[]string{"type"},
	)

	// BatchDiscarded counts buffered events dropped by the sweep
	BatchDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_batch_discarded_total",
			Help: "Buffered events discarded by the dispatcher sweep for age",
		},
		[]string{"type"},
	)

	// DispatcherKeys tracks live (room, type) dispatcher buffers
	DispatcherKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engage_dispatcher_keys",
			Help: "Number of live dispatcher buffers",
		},
	)

	// BroadcastDeliveries counts frames handed to sockets
	BroadcastDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_broadcast_deliveries_total",
			Help: "Frames delivered to room sockets by event",
		},
		[]string{"event"},
	)

	// BroadcastDrops counts frames dropped because a socket buffer was full
	BroadcastDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engage_broadcast_dropped_frames_total",
			Help: "Frames dropped for slow sockets",
		},
	)

	// ConnectedSockets tracks open room sockets
	ConnectedSockets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engage_connected_sockets",
			Help: "Number of connected room sockets",
		},
	)

	// LockAcquisitions counts lock attempts by name and result
	LockAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_lock_acquisitions_total",
			Help: "Distributed lock acquisition attempts by lock and result",
		},
		[]string{"lock", "result"},
	)

	// PollsFinalized counts polls ended by reason
	PollsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_polls_finalized_total",
			Help: "Polls deactivated by reason",
		},
		[]string{"reason"},
	)

	// DLQWrites counts batches recorded on the dead-letter stream
	DLQWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engage_dlq_writes_total",
			Help: "Undeliverable batches recorded on the dead-letter stream",
		},
	)

	// SettlementPublishes counts gift hand-offs to the settlement topic
	SettlementPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_settlement_publishes_total",
			Help: "Gift settlement messages by status",
		},
		[]string{"status"},
	)
)
