// Package observability holds the Prometheus metrics for the tracker.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics holds all Prometheus metrics for the tracker.
type Metrics struct {
	// Registry owns these metrics; /metrics serves it.
	Registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	transactions     *prometheus.CounterVec
	totalSpending    prometheus.Gauge
	alerts           *prometheus.CounterVec
	extractions      *prometheus.CounterVec
	extractDuration  prometheus.Histogram
	tokensUsed       *prometheus.CounterVec
	externalErrors   *prometheus.CounterVec
	ledgerRecoveries *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	jobs             *prometheus.CounterVec
}

// NewMetrics creates a private registry so repeated construction in tests
// never hits duplicate-collector panics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "expense_http_request_duration_seconds",
				Help:    "Duration of HTTP requests by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		transactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expense_transactions_total",
				Help: "Transactions recorded or removed.",
			},
			[]string{"op"},
		),
		totalSpending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "expense_total_spending",
				Help: "Current sum of all recorded amounts.",
			},
		),
		alerts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expense_alerts_total",
				Help: "Threshold alerts by delivery outcome.",
			},
			[]string{"outcome"},
		),
		extractions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expense_extractions_total",
				Help: "Receipt extractions by result.",
			},
			[]string{"result"},
		),
		extractDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "expense_extraction_duration_seconds",
				Help:    "Duration of vision model calls.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
			},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expense_llm_tokens_total",
				Help: "Total LLM tokens consumed.",
			},
			[]string{"type"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expense_external_errors_total",
				Help: "Errors from external services.",
			},
			[]string{"service"},
		),
		ledgerRecoveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expense_ledger_recoveries_total",
				Help: "Times the ledger workbook was reinitialized on open.",
			},
			[]string{"reason"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expense_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expense_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		jobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expense_jobs_total",
				Help: "Background jobs by final status.",
			},
			[]string{"status"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// RecordRequest records one HTTP request.
func (m *Metrics) RecordRequest(method, route, status string, d time.Duration) {
	m.requestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// ObserveTransaction counts a ledger mutation ("recorded" or "removed").
func (m *Metrics) ObserveTransaction(op string) {
	m.transactions.WithLabelValues(op).Inc()
}

// SetTotal publishes the current ledger total.
func (m *Metrics) SetTotal(total decimal.Decimal) {
	m.totalSpending.Set(total.InexactFloat64())
}

// ObserveAlert implements alert.Observer.
func (m *Metrics) ObserveAlert(outcome string) {
	m.alerts.WithLabelValues(outcome).Inc()
}

// ObserveExtraction records a vision call result and its duration.
func (m *Metrics) ObserveExtraction(result string, d time.Duration) {
	m.extractions.WithLabelValues(result).Inc()
	m.extractDuration.Observe(d.Seconds())
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int) {
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// ObserveLedgerRecovery implements ledger.RecoveryObserver.
func (m *Metrics) ObserveLedgerRecovery(reason string) {
	m.ledgerRecoveries.WithLabelValues(reason).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// ObserveJob counts a job entering status.
func (m *Metrics) ObserveJob(status string) {
	m.jobs.WithLabelValues(status).Inc()
}
