// Package metrics holds the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so components can be built without it in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "claramente"

type Metrics struct {
	registry *prometheus.Registry

	eventsRecorded  *prometheus.CounterVec
	recordFailures  prometheus.Counter
	crisisTriggers  prometheus.Counter
	summaryDuration prometheus.Histogram
	cacheResults    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.eventsRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "risk_events_recorded_total",
		Help:      "Risk events committed, by source and severity.",
	}, []string{"source", "severity"})
	m.recordFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "risk_event_record_failures_total",
		Help:      "Risk event writes that failed and were rolled back.",
	})
	m.crisisTriggers = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "crisis_triggers_total",
		Help:      "Detections that asked the caller to start the crisis flow.",
	})
	m.summaryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "risk_summary_duration_seconds",
		Help:      "Time spent building a risk summary from the store.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})
	m.cacheResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "risk_summary_cache_total",
		Help:      "Summary cache lookups by result (hit, miss, error).",
	}, []string{"result"})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route template and status.",
	}, []string{"method", "route", "status"})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventsRecorded,
		m.recordFailures,
		m.crisisTriggers,
		m.summaryDuration,
		m.cacheResults,
		m.httpRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) EventRecorded(source, severity string) {
	if m == nil {
		return
	}
	m.eventsRecorded.WithLabelValues(source, severity).Inc()
}

func (m *Metrics) RecordFailed() {
	if m == nil {
		return
	}
	m.recordFailures.Inc()
}

func (m *Metrics) CrisisTriggered() {
	if m == nil {
		return
	}
	m.crisisTriggers.Inc()
}

func (m *Metrics) SummaryObserved(d time.Duration) {
	if m == nil {
		return
	}
	m.summaryDuration.Observe(d.Seconds())
}

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheResults.WithLabelValues(result).Inc()
}

// HTTPRequest counts a request. route is the matched template, never the raw
// path, so patient ids stay out of label values.
func (m *Metrics) HTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
