package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records hook events as Prometheus collectors on its own registry.
// It implements [RunHooks], [CacheHooks] and [HTTPHooks].
//
// A prefetch run is a batch job, so the registry is written to a textfile
// for node_exporter rather than served.
type Metrics struct {
	registry *prometheus.Registry

	parseTotal    *prometheus.CounterVec
	parseErrors   *prometheus.CounterVec
	parseRecords  *prometheus.CounterVec
	fetchTotal    *prometheus.CounterVec
	fetchBytes    prometheus.Counter
	fetchDuration prometheus.Histogram
	cacheEvents   *prometheus.CounterVec
	httpResponses *prometheus.CounterVec
	httpErrors    *prometheus.CounterVec
	httpDuration  prometheus.Histogram
	components    prometheus.Gauge
}

// NewMetrics creates collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		parseTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prefetch_lockfiles_parsed_total",
				Help: "Number of lockfiles parsed by ecosystem.",
			},
			[]string{"ecosystem"},
		),
		parseErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prefetch_lockfile_errors_total",
				Help: "Number of lockfiles that failed to parse by ecosystem.",
			},
			[]string{"ecosystem"},
		),
		parseRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prefetch_lockfile_records_total",
				Help: "Number of records read from lockfiles by ecosystem.",
			},
			[]string{"ecosystem"},
		),
		fetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prefetch_fetch_total",
				Help: "Number of artifact fetches by result.",
			},
			[]string{"result"},
		),
		fetchBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "prefetch_fetch_bytes_total",
				Help: "Bytes written to the artifact store.",
			},
		),
		fetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "prefetch_fetch_duration_seconds",
				Help:    "Time taken to fetch and verify one artifact.",
				Buckets: prometheus.DefBuckets,
			},
		),
		cacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prefetch_cache_events_total",
				Help: "Cache events by key type and event.",
			},
			[]string{"type", "event"},
		),
		httpResponses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prefetch_http_responses_total",
				Help: "HTTP responses by host and status code.",
			},
			[]string{"host", "code"},
		),
		httpErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prefetch_http_errors_total",
				Help: "HTTP transport errors by host.",
			},
			[]string{"host"},
		),
		httpDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "prefetch_http_duration_seconds",
				Help:    "Time taken by HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
		),
		components: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "prefetch_sbom_components",
				Help: "Number of components in the last written SBOM.",
			},
		),
	}
	m.registry.MustRegister(
		m.parseTotal,
		m.parseErrors,
		m.parseRecords,
		m.fetchTotal,
		m.fetchBytes,
		m.fetchDuration,
		m.cacheEvents,
		m.httpResponses,
		m.httpErrors,
		m.httpDuration,
		m.components,
	)
	return m
}

// Registry exposes the underlying registry, for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile writes the current metrics in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) OnParseStart(context.Context, string, string) {}

func (m *Metrics) OnParseComplete(_ context.Context, ecosystem, _ string, records int, _ time.Duration, err error) {
	m.parseTotal.WithLabelValues(ecosystem).Inc()
	if err != nil {
		m.parseErrors.WithLabelValues(ecosystem).Inc()
		return
	}
	m.parseRecords.WithLabelValues(ecosystem).Add(float64(records))
}

func (m *Metrics) OnFetchStart(context.Context, string) {}

func (m *Metrics) OnFetchComplete(_ context.Context, _ string, size int64, duration time.Duration, err error) {
	if err != nil {
		m.fetchTotal.WithLabelValues("error").Inc()
		return
	}
	m.fetchTotal.WithLabelValues("ok").Inc()
	m.fetchBytes.Add(float64(size))
	m.fetchDuration.Observe(duration.Seconds())
}

func (m *Metrics) OnReportComplete(_ context.Context, components int, _ time.Duration, err error) {
	if err == nil {
		m.components.Set(float64(components))
	}
}

func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.cacheEvents.WithLabelValues(keyType, "hit").Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.cacheEvents.WithLabelValues(keyType, "miss").Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, _ int) {
	m.cacheEvents.WithLabelValues(keyType, "set").Inc()
}

func (m *Metrics) OnCacheCorrupt(_ context.Context, keyType string) {
	m.cacheEvents.WithLabelValues(keyType, "corrupt").Inc()
}

func (m *Metrics) OnRequest(context.Context, string, string, string) {}

func (m *Metrics) OnResponse(_ context.Context, _, host, _ string, statusCode int, duration time.Duration) {
	m.httpResponses.WithLabelValues(host, strconv.Itoa(statusCode)).Inc()
	m.httpDuration.Observe(duration.Seconds())
}

func (m *Metrics) OnError(_ context.Context, _, host, _ string, _ error) {
	m.httpErrors.WithLabelValues(host).Inc()
}

var (
	_ RunHooks   = (*Metrics)(nil)
	_ CacheHooks = (*Metrics)(nil)
	_ HTTPHooks  = (*Metrics)(nil)
)
