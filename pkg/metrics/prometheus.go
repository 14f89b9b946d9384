package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label names.
const (
	labelDraft = "draft_id"
)

// Manager manages all Prometheus metrics for the draft engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Ingestion
	polls          *prometheus.CounterVec
	pollErrors     *prometheus.CounterVec
	sourceRetries  *prometheus.CounterVec
	picksApplied   *prometheus.CounterVec
	picksDuplicate *prometheus.CounterVec
	appendErrors   *prometheus.CounterVec
	halts          *prometheus.CounterVec
	lastPick       *prometheus.GaugeVec
	activeDrafts   prometheus.Gauge

	// Recompute
	recomputeLatency *prometheus.HistogramVec
	recomputeErrors  *prometheus.CounterVec
	staleResults     *prometheus.CounterVec
	queueDepth       *prometheus.GaugeVec
	queueCoalesced   *prometheus.CounterVec

	// Persistence
	cacheWrites  *prometheus.CounterVec
	cachedPick   *prometheus.GaugeVec
	snapshots    *prometheus.CounterVec
	checkpoints  *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "livedraft",
		subsystem:        "engine",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		enabled:          true,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.polls = m.counterVec("polls_total", "Total number of draft source polls", labelDraft)
	m.pollErrors = m.counterVec("poll_errors_total", "Total number of failed draft source polls", labelDraft)
	m.sourceRetries = m.counterVec("source_retries_total", "Total number of retried source requests", "source")
	m.picksApplied = m.counterVec("picks_applied_total", "Total number of picks appended and folded into state", labelDraft)
	m.picksDuplicate = m.counterVec("picks_duplicate_total", "Total number of already recorded picks seen again", labelDraft)
	m.appendErrors = m.counterVec("append_errors_total", "Total number of failed event log appends", labelDraft)
	m.halts = m.counterVec("halts_total", "Total number of drafts halted on a fatal error", labelDraft, "reason")
	m.lastPick = m.gaugeVec("last_pick", "Last pick folded into the authoritative state", labelDraft)
	m.activeDrafts = promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "active_drafts",
		Help:        "Number of drafts currently tracked",
		ConstLabels: m.customLabels,
	})

	m.recomputeLatency = m.histogramVec("recompute_latency_milliseconds", "Valuation recompute latency in milliseconds", labelDraft)
	m.recomputeErrors = m.counterVec("recompute_errors_total", "Total number of failed or timed out recomputes", labelDraft, "kind")
	m.staleResults = m.counterVec("stale_results_total", "Total number of recompute results discarded as stale", labelDraft)
	m.queueDepth = m.gaugeVec("queue_depth", "Pending recompute requests", labelDraft)
	m.queueCoalesced = m.counterVec("queue_coalesced_total", "Recompute requests superseded by a newer request", labelDraft)

	m.cacheWrites = m.counterVec("cache_writes_total", "Total number of latest valuation writes", labelDraft)
	m.cachedPick = m.gaugeVec("cached_pick", "Pick number of the cached latest valuation", labelDraft)
	m.snapshots = m.counterVec("snapshots_total", "Total number of historical snapshots written", labelDraft)
	m.checkpoints = m.counterVec("checkpoints_total", "Total number of state checkpoints written", labelDraft)
	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Durable write latency in milliseconds", "store")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component",
		"component", "error_type")
}

func (m *Manager) RecordPoll(draftID string) {
	if m.enabled {
		m.polls.WithLabelValues(draftID).Inc()
	}
}

func (m *Manager) RecordPollError(draftID string) {
	if m.enabled {
		m.pollErrors.WithLabelValues(draftID).Inc()
	}
}

func (m *Manager) RecordSourceRetry(source string) {
	if m.enabled {
		m.sourceRetries.WithLabelValues(source).Inc()
	}
}

func (m *Manager) RecordPickApplied(draftID string, pick int) {
	if m.enabled {
		m.picksApplied.WithLabelValues(draftID).Inc()
		m.lastPick.WithLabelValues(draftID).Set(float64(pick))
	}
}

func (m *Manager) RecordPickDuplicate(draftID string) {
	if m.enabled {
		m.picksDuplicate.WithLabelValues(draftID).Inc()
	}
}

func (m *Manager) RecordAppendError(draftID string) {
	if m.enabled {
		m.appendErrors.WithLabelValues(draftID).Inc()
	}
}

func (m *Manager) RecordHalt(draftID, reason string) {
	if m.enabled {
		m.halts.WithLabelValues(draftID, reason).Inc()
	}
}

func (m *Manager) UpdateLastPick(draftID string, pick int) {
	if m.enabled {
		m.lastPick.WithLabelValues(draftID).Set(float64(pick))
	}
}

func (m *Manager) UpdateActiveDrafts(n int) {
	if m.enabled {
		m.activeDrafts.Set(float64(n))
	}
}

func (m *Manager) RecordRecomputeLatency(draftID string, latencyMs float64) {
	if m.enabled {
		m.recomputeLatency.WithLabelValues(draftID).Observe(latencyMs)
	}
}

func (m *Manager) RecordRecomputeError(draftID, kind string) {
	if m.enabled {
		m.recomputeErrors.WithLabelValues(draftID, kind).Inc()
	}
}

func (m *Manager) RecordStaleResult(draftID string) {
	if m.enabled {
		m.staleResults.WithLabelValues(draftID).Inc()
	}
}

func (m *Manager) UpdateQueueDepth(draftID string, depth int) {
	if m.enabled {
		m.queueDepth.WithLabelValues(draftID).Set(float64(depth))
	}
}

func (m *Manager) RecordQueueCoalesced(draftID string, n int) {
	if m.enabled && n > 0 {
		m.queueCoalesced.WithLabelValues(draftID).Add(float64(n))
	}
}

func (m *Manager) RecordCacheWrite(draftID string, pick int) {
	if m.enabled {
		m.cacheWrites.WithLabelValues(draftID).Inc()
		m.cachedPick.WithLabelValues(draftID).Set(float64(pick))
	}
}

func (m *Manager) RecordSnapshot(draftID string) {
	if m.enabled {
		m.snapshots.WithLabelValues(draftID).Inc()
	}
}

func (m *Manager) RecordCheckpoint(draftID string) {
	if m.enabled {
		m.checkpoints.WithLabelValues(draftID).Inc()
	}
}

func (m *Manager) RecordStoreLatency(store string, latencyMs float64) {
	if m.enabled {
		m.storeLatency.WithLabelValues(store).Observe(latencyMs)
	}
}

func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string) {
	if m.enabled {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

func (m *Manager) RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	if m.enabled {
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

func (m *Manager) RecordErrorByComponent(component, errorType string) {
	if m.enabled {
		m.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// Package-level helpers operating on the global manager.

// RecordPoll increments the poll counter for a draft.
func RecordPoll(draftID string) { globalManager.RecordPoll(draftID) }

// RecordPollError increments the failed poll counter for a draft.
func RecordPollError(draftID string) { globalManager.RecordPollError(draftID) }

// RecordSourceRetry increments the retry counter for a source kind.
func RecordSourceRetry(source string) { globalManager.RecordSourceRetry(source) }

// RecordPickApplied counts an applied pick and moves the last pick gauge.
func RecordPickApplied(draftID string, pick int) { globalManager.RecordPickApplied(draftID, pick) }

// RecordPickDuplicate counts a re-reported pick that matched history.
func RecordPickDuplicate(draftID string) { globalManager.RecordPickDuplicate(draftID) }

// RecordAppendError counts a failed durable append.
func RecordAppendError(draftID string) { globalManager.RecordAppendError(draftID) }

// RecordHalt counts a fatal halt with a short reason label.
func RecordHalt(draftID, reason string) { globalManager.RecordHalt(draftID, reason) }

// UpdateLastPick sets the last pick gauge.
func UpdateLastPick(draftID string, pick int) { globalManager.UpdateLastPick(draftID, pick) }

// UpdateActiveDrafts sets the number of tracked drafts.
func UpdateActiveDrafts(n int) { globalManager.UpdateActiveDrafts(n) }

// RecordRecomputeLatency records recompute latency in milliseconds.
func RecordRecomputeLatency(draftID string, latencyMs float64) {
	globalManager.RecordRecomputeLatency(draftID, latencyMs)
}

// RecordRecomputeError counts a failed recompute; kind is "timeout" or "error".
func RecordRecomputeError(draftID, kind string) { globalManager.RecordRecomputeError(draftID, kind) }

// RecordStaleResult counts a discarded recompute result.
func RecordStaleResult(draftID string) { globalManager.RecordStaleResult(draftID) }

// UpdateQueueDepth sets the pending recompute request gauge.
func UpdateQueueDepth(draftID string, depth int) { globalManager.UpdateQueueDepth(draftID, depth) }

// RecordQueueCoalesced adds n superseded requests.
func RecordQueueCoalesced(draftID string, n int) { globalManager.RecordQueueCoalesced(draftID, n) }

// RecordCacheWrite counts a latest valuation write and moves the cached pick gauge.
func RecordCacheWrite(draftID string, pick int) { globalManager.RecordCacheWrite(draftID, pick) }

// RecordSnapshot counts a historical snapshot write.
func RecordSnapshot(draftID string) { globalManager.RecordSnapshot(draftID) }

// RecordCheckpoint counts a checkpoint write.
func RecordCheckpoint(draftID string) { globalManager.RecordCheckpoint(draftID) }

// RecordStoreLatency records a durable write latency for a store
// ("eventlog", "cache", "snapshot", "checkpoint").
func RecordStoreLatency(store string, latencyMs float64) {
	globalManager.RecordStoreLatency(store, latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode)
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.RecordHTTPRequestDuration(endpoint, method, statusCode, durationMs)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.RecordErrorByComponent(component, errorType)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
