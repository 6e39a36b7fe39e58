// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for production observability:
// - Session poll cycles against the media server
// - Playback state transitions and history writes
// - Database query performance (DuckDB)
// - API endpoint latency and throughput
// - Notification delivery and the outbox journal
// - NATS event pipeline
// All metrics register on the default registry and are served at /metrics.

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	DBConnectionPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duckdb_connection_pool_size",
			Help: "Current number of database connections in use",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Session Poller Metrics
	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "poll_duration_seconds",
			Help:    "Duration of session poll cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_cycles_total",
			Help: "Total number of session poll cycles",
		},
		[]string{"result"}, // "success", "failure"
	)

	PollErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_errors_total",
			Help: "Total number of poll errors by category",
		},
		[]string{"error_type"}, // "unreachable", "timeout", "ratelimited", "auth", "parse", "other"
	)

	PollLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poll_last_success_timestamp",
			Help: "Unix timestamp of last successful poll",
		},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_streams",
			Help: "Current number of active playback sessions",
		},
	)

	ActiveTranscodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_transcodes",
			Help: "Current number of sessions being transcoded",
		},
	)

	StreamBandwidthKbps = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stream_bandwidth_kbps",
			Help: "Aggregate stream bandwidth in kilobits per second",
		},
		[]string{"location"}, // "lan", "wan"
	)

	// Session Transition Metrics
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_transitions_total",
			Help: "Total number of playback state transitions",
		},
		[]string{"transition"}, // "play", "pause", "resume", "buffer", "progress", "watched", "stop", "concurrent", "newdevice"
	)

	HistoryWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "history_writes_total",
			Help: "Total number of history record writes",
		},
		[]string{"result"}, // "inserted", "updated", "duplicate", "error"
	)

	// Recently Added Watcher Metrics
	RecentlyAddedSeen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recently_added_items_total",
			Help: "Total number of new library items detected",
		},
	)

	RecentlyAddedCheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recently_added_check_duration_seconds",
			Help:    "Duration of recently-added checks in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Notification Metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notification deliveries",
		},
		[]string{"trigger", "channel", "result"}, // result: "success", "failure"
	)

	NotificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_duration_seconds",
			Help:    "Duration of notification deliveries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	NotificationDedupeSkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_dedupe_skips_total",
			Help: "Total number of notifications suppressed by deduplication",
		},
	)

	// Outbox Journal Metrics
	OutboxQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_queue_depth",
			Help: "Current number of pending entries in the notification outbox",
		},
	)

	OutboxEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_enqueued_total",
			Help: "Total number of notifications journaled to the outbox",
		},
	)

	OutboxReplayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_replayed_total",
			Help: "Total number of outbox entries successfully replayed",
		},
	)

	OutboxDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_dropped_total",
			Help: "Total number of outbox entries dropped",
		},
		[]string{"reason"}, // "max_attempts", "max_age", "corrupt"
	)

	OutboxOldestAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_oldest_entry_age_seconds",
			Help: "Age of the oldest pending outbox entry in seconds",
		},
	)

	// Newsletter Metrics
	NewsletterRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_runs_total",
			Help: "Total number of newsletter executions",
		},
		[]string{"result"}, // "success", "failure", "empty"
	)

	NewsletterDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newsletter_duration_seconds",
			Help:    "Duration of newsletter generation and delivery in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	NewsletterItems = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newsletter_items",
			Help:    "Number of recently-added items per newsletter",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // "stats", "seen_sessions", "notify_dedupe"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of cached entries",
		},
		[]string{"cache_type"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of cache evictions (TTL expiry)",
		},
		[]string{"cache_type"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// NATS Event Pipeline Metrics
	NATSMessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_published_total",
			Help: "Total number of messages published to NATS",
		},
	)

	NATSMessagesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_consumed_total",
			Help: "Total number of messages consumed from NATS",
		},
	)

	NATSMessagesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_processed_total",
			Help: "Total number of messages successfully processed",
		},
	)

	NATSMessagesDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_deduplicated_total",
			Help: "Total number of messages skipped due to deduplication",
		},
	)

	NATSMessagesParseFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_parse_failed_total",
			Help: "Total number of messages that failed to parse",
		},
	)

	NATSProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nats_processing_duration_seconds",
			Help:    "Duration of NATS message processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	NATSQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nats_queue_depth",
			Help: "Current depth of the NATS message queue",
		},
	)

	NATSConsumerLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nats_consumer_lag",
			Help: "Number of pending messages in NATS consumer",
		},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	ServerReachable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_server_reachable",
			Help: "Whether the media server responded to the last poll (1=up, 0=down)",
		},
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		// Truncate long error messages
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordPollCycle records one poll cycle against the media server.
func RecordPollCycle(duration time.Duration, err error) {
	PollDuration.Observe(duration.Seconds())
	if err != nil {
		PollCycles.WithLabelValues("failure").Inc()
		PollErrors.WithLabelValues(categorizePollError(err)).Inc()
		return
	}
	PollCycles.WithLabelValues("success").Inc()
	PollLastSuccess.Set(float64(time.Now().Unix()))
}

// categorizePollError maps a poll failure to a bounded label set so the
// error_type cardinality stays small.
func categorizePollError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"), strings.Contains(msg, "unreachable"):
		return "unreachable"
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"):
		return "ratelimited"
	case strings.Contains(msg, "401"), strings.Contains(msg, "unauthorized"):
		return "auth"
	case strings.Contains(msg, "unmarshal"), strings.Contains(msg, "decode"), strings.Contains(msg, "parse"):
		return "parse"
	default:
		return "other"
	}
}

// UpdateActivityGauges sets the session gauges after a successful poll.
func UpdateActivityGauges(streams, transcodes int, lanKbps, wanKbps int64) {
	ActiveStreams.Set(float64(streams))
	ActiveTranscodes.Set(float64(transcodes))
	StreamBandwidthKbps.WithLabelValues("lan").Set(float64(lanKbps))
	StreamBandwidthKbps.WithLabelValues("wan").Set(float64(wanKbps))
}

// RecordTransition records a playback state transition.
func RecordTransition(transition string) {
	SessionTransitions.WithLabelValues(transition).Inc()
}

// RecordHistoryWrite records the outcome of a history write.
func RecordHistoryWrite(result string) {
	HistoryWrites.WithLabelValues(result).Inc()
}

// RecordNotification records a notification delivery attempt.
func RecordNotification(trigger, channel string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	NotificationsTotal.WithLabelValues(trigger, channel, result).Inc()
	NotificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// UpdateOutboxGauges updates outbox gauges with current journal stats.
func UpdateOutboxGauges(depth int64, oldestAge float64) {
	OutboxQueueDepth.Set(float64(depth))
	OutboxOldestAge.Set(oldestAge)
}

// RecordOutboxDrop records an entry dropped from the outbox.
func RecordOutboxDrop(reason string) {
	OutboxDropped.WithLabelValues(reason).Inc()
}

// RecordNewsletterRun records one newsletter execution.
func RecordNewsletterRun(duration time.Duration, itemCount int, err error) {
	NewsletterDuration.Observe(duration.Seconds())
	NewsletterItems.Observe(float64(itemCount))
	switch {
	case err != nil:
		NewsletterRuns.WithLabelValues("failure").Inc()
	case itemCount == 0:
		NewsletterRuns.WithLabelValues("empty").Inc()
	default:
		NewsletterRuns.WithLabelValues("success").Inc()
	}
}

// RecordNATSPublish records a message being published to NATS
func RecordNATSPublish() {
	NATSMessagesPublished.Inc()
}

// RecordNATSConsume records a message being consumed from NATS
func RecordNATSConsume() {
	NATSMessagesConsumed.Inc()
}

// RecordNATSProcessed records a message being successfully processed
func RecordNATSProcessed() {
	NATSMessagesProcessed.Inc()
}

// RecordNATSDeduplicated records a message being skipped due to deduplication
func RecordNATSDeduplicated() {
	NATSMessagesDeduplicated.Inc()
}

// RecordNATSParseFailed records a message that failed to parse
func RecordNATSParseFailed() {
	NATSMessagesParseFailed.Inc()
}

// RecordNATSProcessingDuration records the duration of message processing
func RecordNATSProcessingDuration(duration time.Duration) {
	NATSProcessingDuration.Observe(duration.Seconds())
}

// UpdateNATSQueueDepth updates the NATS queue depth gauge
func UpdateNATSQueueDepth(depth int64) {
	NATSQueueDepth.Set(float64(depth))
}

// UpdateNATSConsumerLag updates the NATS consumer lag gauge
func UpdateNATSConsumerLag(lag int64) {
	NATSConsumerLag.Set(float64(lag))
}

// SetBreakerState sets the circuit breaker state gauge.
func SetBreakerState(name string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
}

// RecordBreakerRequest records a request routed through a circuit breaker.
func RecordBreakerRequest(name, result string) {
	CircuitBreakerRequests.WithLabelValues(name, result).Inc()
}

// RecordBreakerTransition records a circuit breaker state change.
func RecordBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

// SetServerReachable flips the media server reachability gauge.
func SetServerReachable(up bool) {
	if up {
		ServerReachable.Set(1)
	} else {
		ServerReachable.Set(0)
	}
}
