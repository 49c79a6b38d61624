package redis

import "time"

// Redis namespaces defines the top-level key prefixes for different types of data
const (
	NamespaceCache = "cache" // For general caching
	NamespaceQueue = "queue" // For priority work queues
	NamespaceLock  = "lock"  // For distributed locks
	NamespaceRate  = "rate"  // For rate limiting
)

// Redis contexts defines the second-level key prefixes for specific domains
const (
	ContextEngage      = "engage"      // Polls, Q&A, batches, background work
	ContextInteraction = "interaction" // Per-sender interaction counters
)

// ChannelRoomPrefix prefixes the Pub/Sub channel of each room.
const ChannelRoomPrefix = "engage:room:"

// DLQStream is the stream failed deliveries are recorded on.
const DLQStream = "event_dlq"

// TTL constants defines the time-to-live durations for different types of data
const (
	TTLLock        = 30 * time.Second // Lock TTL
	TTLRateLimit   = 1 * time.Minute  // Rate limit window
	TTLPollResults = 1 * time.Hour    // Cached poll result snapshot
	TTLBatch       = 1 * time.Minute  // Last flushed batch per room/type
)
