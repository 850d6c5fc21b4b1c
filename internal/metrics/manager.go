package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sealbox"

// Manager owns the Prometheus registry and every metric the server emits.
type Manager struct {
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Object lifecycle
	objectsCreated   prometheus.Counter
	objectsOpened    prometheus.Counter
	objectsDestroyed prometheus.Counter
	objectsLive      prometheus.Gauge
	bytesStored      prometheus.Gauge

	// Upload sessions
	uploadsStarted   prometheus.Counter
	uploadsCompleted prometheus.Counter
	uploadsAborted   prometheus.Counter

	// Download tokens
	tokensIssued   prometheus.Counter
	tokensRedeemed prometheus.Counter

	// Sweeper
	sweepIterations     prometheus.Counter
	sweepObjectsPurged  prometheus.Counter
	sweepLinksPurged    prometheus.Counter
	sweepSessionsPurged prometheus.Counter
	sweepBytesReclaimed prometheus.Counter
}

// NewManager creates a metrics manager with an isolated registry.
func NewManager() *Manager {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Manager{registry: registry}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.objectsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "objects",
		Name:      "created_total",
		Help:      "Total number of objects created",
	})
	m.objectsOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "objects",
		Name:      "opened_total",
		Help:      "Total number of successful object opens",
	})
	m.objectsDestroyed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "objects",
		Name:      "destroyed_total",
		Help:      "Total number of objects destroyed on request",
	})
	m.objectsLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "objects",
		Name:      "live",
		Help:      "Number of live objects",
	})
	m.bytesStored = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "objects",
		Name:      "bytes_stored",
		Help:      "Total bytes across live objects",
	})

	m.uploadsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "uploads",
		Name:      "started_total",
		Help:      "Total number of upload sessions started",
	})
	m.uploadsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "uploads",
		Name:      "completed_total",
		Help:      "Total number of upload sessions completed",
	})
	m.uploadsAborted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "uploads",
		Name:      "aborted_total",
		Help:      "Total number of upload sessions aborted",
	})

	m.tokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "downloads",
		Name:      "tokens_issued_total",
		Help:      "Total number of download tokens issued",
	})
	m.tokensRedeemed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "downloads",
		Name:      "tokens_redeemed_total",
		Help:      "Total number of download tokens redeemed",
	})

	m.sweepIterations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "iterations_total",
		Help:      "Total number of sweep iterations",
	})
	m.sweepObjectsPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "objects_purged_total",
		Help:      "Total number of expired objects purged by the sweeper",
	})
	m.sweepLinksPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "links_purged_total",
		Help:      "Total number of expired invite links purged by the sweeper",
	})
	m.sweepSessionsPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "sessions_purged_total",
		Help:      "Total number of stale upload sessions purged by the sweeper",
	})
	m.sweepBytesReclaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "bytes_reclaimed_total",
		Help:      "Total bytes reclaimed from stale upload sessions",
	})

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.objectsCreated,
		m.objectsOpened,
		m.objectsDestroyed,
		m.objectsLive,
		m.bytesStored,
		m.uploadsStarted,
		m.uploadsCompleted,
		m.uploadsAborted,
		m.tokensIssued,
		m.tokensRedeemed,
		m.sweepIterations,
		m.sweepObjectsPurged,
		m.sweepLinksPurged,
		m.sweepSessionsPurged,
		m.sweepBytesReclaimed,
	)
}

// Handler returns the scrape endpoint handler.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request. path should be the route
// template, not the raw URL, to bound cardinality.
func (m *Manager) RecordHTTPRequest(method, path, status string, seconds float64) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

func (m *Manager) ObjectCreated()   { m.objectsCreated.Inc() }
func (m *Manager) ObjectOpened()    { m.objectsOpened.Inc() }
func (m *Manager) ObjectDestroyed() { m.objectsDestroyed.Inc() }

// SetInventory updates the live object gauges.
func (m *Manager) SetInventory(objects int, bytes int64) {
	m.objectsLive.Set(float64(objects))
	m.bytesStored.Set(float64(bytes))
}

func (m *Manager) UploadStarted()   { m.uploadsStarted.Inc() }
func (m *Manager) UploadCompleted() { m.uploadsCompleted.Inc() }
func (m *Manager) UploadAborted()   { m.uploadsAborted.Inc() }

func (m *Manager) TokenIssued()   { m.tokensIssued.Inc() }
func (m *Manager) TokenRedeemed() { m.tokensRedeemed.Inc() }

// RecordSweep folds one sweep iteration into the counters.
func (m *Manager) RecordSweep(objects int, links int64, sessions int, bytes int64) {
	m.sweepIterations.Inc()
	m.sweepObjectsPurged.Add(float64(objects))
	m.sweepLinksPurged.Add(float64(links))
	m.sweepSessionsPurged.Add(float64(sessions))
	m.sweepBytesReclaimed.Add(float64(bytes))
}
