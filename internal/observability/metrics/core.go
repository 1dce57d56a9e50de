package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

const namespace = "knowledge_core"

// CoreMetrics implements ports.Telemetry on a private Prometheus registry.
type CoreMetrics struct {
	registry *prometheus.Registry
	service  string

	searchTotal     *prometheus.CounterVec
	searchDuration  *prometheus.HistogramVec
	searchResults   *prometheus.HistogramVec
	rerankTotal     *prometheus.CounterVec
	guardrailTotal  *prometheus.CounterVec
	queryCacheTotal *prometheus.CounterVec
	ingestTotal     *prometheus.CounterVec
	ingestDuration  *prometheus.HistogramVec
	ingestChunks    *prometheus.HistogramVec
}

func NewCoreMetrics(service string) *CoreMetrics {
	registry := prometheus.NewRegistry()

	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total search requests by retrieval mode and degradation.",
		},
		[]string{"service", "mode", "degraded"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "mode"},
	)
	searchResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "results",
			Help:      "Distribution of results returned per search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "mode"},
	)
	rerankTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rerank",
			Name:      "total",
			Help:      "Rerank attempts by outcome.",
		},
		[]string{"service", "outcome"},
	)
	guardrailTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guardrail",
			Name:      "decisions_total",
			Help:      "Guardrail decisions by stage, action and detection method.",
		},
		[]string{"service", "stage", "action", "method"},
	)
	queryCacheTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query_cache",
			Name:      "lookups_total",
			Help:      "Query cache lookups by result.",
		},
		[]string{"service", "result"},
	)
	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Processed documents by final status.",
		},
		[]string{"service", "status"},
	)
	ingestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Document processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	ingestChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunks",
			Help:      "Chunks produced per ingested document.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		searchTotal, searchDuration, searchResults,
		rerankTotal, guardrailTotal, queryCacheTotal,
		ingestTotal, ingestDuration, ingestChunks,
	)

	return &CoreMetrics{
		registry:        registry,
		service:         service,
		searchTotal:     searchTotal,
		searchDuration:  searchDuration,
		searchResults:   searchResults,
		rerankTotal:     rerankTotal,
		guardrailTotal:  guardrailTotal,
		queryCacheTotal: queryCacheTotal,
		ingestTotal:     ingestTotal,
		ingestDuration:  ingestDuration,
		ingestChunks:    ingestChunks,
	}
}

// Registry lets other collectors share the /metrics endpoint.
func (m *CoreMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *CoreMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *CoreMetrics) ObserveSearch(mode string, degraded bool, results int, seconds float64) {
	if mode == "" {
		mode = "unknown"
	}
	m.searchTotal.WithLabelValues(m.service, mode, strconv.FormatBool(degraded)).Inc()
	m.searchDuration.WithLabelValues(m.service, mode).Observe(seconds)
	m.searchResults.WithLabelValues(m.service, mode).Observe(float64(results))
}

func (m *CoreMetrics) ObserveRerank(outcome string) {
	m.rerankTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *CoreMetrics) ObserveGuardrail(stage string, action domain.GuardAction, method string) {
	if method == "" {
		method = "none"
	}
	m.guardrailTotal.WithLabelValues(m.service, stage, string(action), method).Inc()
}

func (m *CoreMetrics) ObserveQueryCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.queryCacheTotal.WithLabelValues(m.service, result).Inc()
}

func (m *CoreMetrics) ObserveIngest(status string, chunks int, seconds float64) {
	m.ingestTotal.WithLabelValues(m.service, status).Inc()
	m.ingestDuration.WithLabelValues(m.service, status).Observe(seconds)
	if chunks > 0 {
		m.ingestChunks.WithLabelValues(m.service).Observe(float64(chunks))
	}
}
