// Package metrics defines the Prometheus collectors used across the service and exposes
// an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kham"

// Metrics holds all collectors. It implements the recorder interfaces of the segmenter,
// query processor, enhancer, MeiliSearch client and task queue.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SegmentationDuration *prometheus.HistogramVec
	SegmentationFallback *prometheus.CounterVec
	QueriesTotal         *prometheus.CounterVec
	QueryVariants        *prometheus.HistogramVec
	PartialTokensTotal   prometheus.Counter
	EnhancedHitsTotal    prometheus.Counter
	EnhanceFailuresTotal prometheus.Counter
	EnhanceDuration      prometheus.Histogram
	BackendCallsTotal    *prometheus.CounterVec
	BackendCallDuration  *prometheus.HistogramVec
	TasksTotal           *prometheus.CounterVec
	TaskDuration         *prometheus.HistogramVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DictionaryWords      prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go and process
// collectors, in a dedicated registry.
func New() *Metrics {
	latency := []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   latency,
		}, []string{"method", "route"}),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed.",
		}),
		SegmentationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segmentation_duration_seconds",
			Help:      "Time spent segmenting one text, by engine that produced the result.",
			Buckets:   latency,
		}, []string{"engine"}),
		SegmentationFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segmentation_fallback_total",
			Help:      "Segmentations served by the fallback engine.",
		}, []string{"engine"}),
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_processed_total",
			Help:      "Processed queries by mode.",
		}, []string{"mode"}),
		QueryVariants: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_variants",
			Help:      "Number of search variants generated per query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}, []string{"mode"}),
		PartialTokensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_partial_tokens_total",
			Help:      "Query tokens recognized as partial compounds.",
		}),
		EnhancedHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enhanced_hits_total",
			Help:      "Search hits passed through the result enhancer.",
		}),
		EnhanceFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enhance_failures_total",
			Help:      "Hits returned unenhanced because enhancement failed.",
		}),
		EnhanceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enhance_duration_seconds",
			Help:      "Time spent enhancing one result set.",
			Buckets:   latency,
		}),
		BackendCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Calls to the search engine by operation and outcome.",
		}, []string{"operation", "outcome"}),
		BackendCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Search engine call latency including retries.",
			Buckets:   latency,
		}, []string{"operation"}),
		TasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Finished background tasks by type and status.",
		}, []string{"type", "status"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Background task run time.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"type"}),
		SearchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_latency_seconds",
			Help:      "End-to-end search latency by query cache status.",
			Buckets:   latency,
		}, []string{"cache_status"}),
		SearchResultsCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results_count",
			Help:      "Number of hits returned per search.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_hits_total",
			Help:      "Processed-query cache hits.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_misses_total",
			Help:      "Processed-query cache misses.",
		}),
		DictionaryWords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dictionary_words",
			Help:      "Words in the active dictionary snapshot.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SegmentationDuration,
		m.SegmentationFallback,
		m.QueriesTotal,
		m.QueryVariants,
		m.PartialTokensTotal,
		m.EnhancedHitsTotal,
		m.EnhanceFailuresTotal,
		m.EnhanceDuration,
		m.BackendCallsTotal,
		m.BackendCallDuration,
		m.TasksTotal,
		m.TaskDuration,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DictionaryWords,
	)
	return m
}

// Registry returns the registry the collectors are registered in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveSegmentation(engine string, seconds float64, fallback bool) {
	m.SegmentationDuration.WithLabelValues(engine).Observe(seconds)
	if fallback {
		m.SegmentationFallback.WithLabelValues(engine).Inc()
	}
}

func (m *Metrics) ObserveQuery(mode string, variants int, partialTokens int) {
	m.QueriesTotal.WithLabelValues(mode).Inc()
	m.QueryVariants.WithLabelValues(mode).Observe(float64(variants))
	m.PartialTokensTotal.Add(float64(partialTokens))
}

func (m *Metrics) ObserveEnhancement(hits, failed int, seconds float64) {
	m.EnhancedHitsTotal.Add(float64(hits))
	m.EnhanceFailuresTotal.Add(float64(failed))
	m.EnhanceDuration.Observe(seconds)
}

func (m *Metrics) ObserveBackendCall(operation, outcome string, seconds float64) {
	m.BackendCallsTotal.WithLabelValues(operation, outcome).Inc()
	m.BackendCallDuration.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) ObserveTask(taskType string, status string, seconds float64) {
	m.TasksTotal.WithLabelValues(taskType, status).Inc()
	m.TaskDuration.WithLabelValues(taskType).Observe(seconds)
}

// ObserveSearch records one end-to-end search.
func (m *Metrics) ObserveSearch(cacheHit bool, hits int, seconds float64) {
	status := "miss"
	if cacheHit {
		status = "hit"
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
	m.SearchLatency.WithLabelValues(status).Observe(seconds)
	m.SearchResultsCount.Observe(float64(hits))
}

// SetDictionaryWords records the size of the active dictionary.
func (m *Metrics) SetDictionaryWords(n int) { m.DictionaryWords.Set(float64(n)) }

func (m *Metrics) observeHTTP(method, route string, status int, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}
