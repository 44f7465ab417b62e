package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Pipeline metrics
	Loads           *prometheus.CounterVec
	LoadDuration    *prometheus.HistogramVec
	SchemeFallbacks *prometheus.CounterVec
	Rewritten       *prometheus.CounterVec
	Stylesheets     *prometheus.CounterVec
	StaleWrites     prometheus.Counter

	// Relay metrics
	RelayCalls    *prometheus.CounterVec
	RelayDuration *prometheus.HistogramVec
	RelayProbes   *prometheus.CounterVec

	// Tab metrics
	TabsActive prometheus.Gauge
	TabsTotal  prometheus.Counter

	// Blob metrics
	BlobsStored prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64
	TotalErrors       int64
	TotalLoads        int64
	FailedLoads       int64
	ActiveTabs        int64
	ActiveConnections int64
	TotalDuration     float64 // sum of all request durations
	RequestCount      int64   // count for averaging
}

// NewMetrics creates a metrics collector on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurora_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aurora_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aurora_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aurora_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Pipeline metrics
		Loads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurora_pipeline_loads_total",
				Help: "Total number of page loads by relay and outcome",
			},
			[]string{"relay", "outcome"},
		),
		LoadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aurora_pipeline_load_duration_seconds",
				Help:    "Page load duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"relay"},
		),
		SchemeFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurora_pipeline_scheme_fallbacks_total",
				Help: "Total number of https to http retries",
			},
			[]string{"relay", "outcome"},
		),
		Rewritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurora_rewrite_references_total",
				Help: "Total number of rewritten resource references",
			},
			[]string{"kind"},
		),
		Stylesheets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurora_rewrite_stylesheets_total",
				Help: "Total number of linked stylesheets processed",
			},
			[]string{"outcome"},
		),
		StaleWrites: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aurora_pipeline_stale_writes_total",
				Help: "Total number of results dropped for a superseded navigation",
			},
		),

		// Relay metrics
		RelayCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurora_relay_calls_total",
				Help: "Total number of upstream fetches",
			},
			[]string{"relay", "status"},
		),
		RelayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aurora_relay_duration_seconds",
				Help:    "Upstream fetch duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"relay"},
		),
		RelayProbes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurora_relay_probes_total",
				Help: "Total number of relay probes by result",
			},
			[]string{"relay", "result"},
		),

		// Tab metrics
		TabsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "aurora_tabs_open",
				Help: "Number of open tabs",
			},
		),
		TabsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aurora_tabs_total",
				Help: "Total number of tabs created",
			},
		),

		BlobsStored: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "aurora_blobs_stored",
				Help: "Number of rewritten stylesheets held in the blob store",
			},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "aurora_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurora_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	// System metrics
	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "aurora_uptime_seconds",
			Help: "Gateway uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry all metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordLoad records the outcome of one pipeline load
func (m *Metrics) RecordLoad(relay, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Loads.WithLabelValues(relay, outcome).Inc()
	m.LoadDuration.WithLabelValues(relay).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalLoads++
	if outcome != "ok" {
		m.snapshot.FailedLoads++
	}
	m.mu.Unlock()
}

// RecordSchemeFallback records an https to http retry
func (m *Metrics) RecordSchemeFallback(relay string, ok bool) {
	if m == nil {
		return
	}
	m.SchemeFallbacks.WithLabelValues(relay, outcome(ok)).Inc()
}

// AddRewritten counts rewritten references of one kind
func (m *Metrics) AddRewritten(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Rewritten.WithLabelValues(kind).Add(float64(n))
}

// RecordStylesheet records a linked stylesheet fetch
func (m *Metrics) RecordStylesheet(ok bool) {
	if m == nil {
		return
	}
	m.Stylesheets.WithLabelValues(outcome(ok)).Inc()
}

// IncStaleWrites counts a result dropped by the generation guard
func (m *Metrics) IncStaleWrites() {
	if m == nil {
		return
	}
	m.StaleWrites.Inc()
}

// RecordRelayCall records an upstream fetch
func (m *Metrics) RecordRelayCall(relay, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RelayCalls.WithLabelValues(relay, status).Inc()
	m.RelayDuration.WithLabelValues(relay).Observe(duration.Seconds())
}

// RecordProbe records a relay probe result
func (m *Metrics) RecordProbe(relay string, online bool) {
	if m == nil {
		return
	}
	result := "offline"
	if online {
		result = "online"
	}
	m.RelayProbes.WithLabelValues(relay, result).Inc()
}

// SetTabsActive sets the number of open tabs
func (m *Metrics) SetTabsActive(count int) {
	if m == nil {
		return
	}
	m.TabsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveTabs = int64(count)
	m.mu.Unlock()
}

// IncTabsTotal increments the total tabs counter
func (m *Metrics) IncTabsTotal() {
	if m == nil {
		return
	}
	m.TabsTotal.Inc()
}

// SetBlobsStored sets the blob store size
func (m *Metrics) SetBlobsStored(count int) {
	if m == nil {
		return
	}
	m.BlobsStored.Set(float64(count))
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns the current values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// StartTime returns when the collector was created
func (m *Metrics) StartTime() time.Time {
	if m == nil {
		return time.Time{}
	}
	return m.startTime
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
