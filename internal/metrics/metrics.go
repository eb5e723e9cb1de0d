// Package metrics exposes Prometheus counters for ingestion, computation,
// quality checks and the read API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Pipeline metrics
	documentsParsed   *prometheus.CounterVec
	documentsFailed   *prometheus.CounterVec
	statementsSaved   *prometheus.CounterVec
	ratiosComputed    *prometheus.CounterVec
	computeDuration   prometheus.Histogram
	qualityChecks     *prometheus.CounterVec
	qualityDeviations *prometheus.HistogramVec
	anomalies         *prometheus.CounterVec
	fetches           *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),

		documentsParsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filings_documents_parsed_total",
				Help: "Documents extracted successfully, by kind",
			},
			[]string{"kind"},
		),
		documentsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filings_documents_failed_total",
				Help: "Documents that failed to fetch or parse, by kind",
			},
			[]string{"kind"},
		),
		statementsSaved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filings_statements_saved_total",
				Help: "Statement records written, by statement type",
			},
			[]string{"statement_type"},
		),
		ratiosComputed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filings_ratio_sets_computed_total",
				Help: "Ratio sets computed, by result nature and outcome",
			},
			[]string{"nature", "status"},
		),
		computeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "filings_compute_duration_seconds",
				Help:    "Per-company computation duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
		),
		qualityChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filings_quality_checks_total",
				Help: "Quality comparisons, by field and outcome",
			},
			[]string{"field", "outcome"},
		),
		qualityDeviations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filings_quality_deviation_pct",
				Help:    "Absolute percentage deviation from the reference value",
				Buckets: []float64{0.5, 1, 2, 3, 5, 10, 25, 50, 100},
			},
			[]string{"field"},
		),
		anomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filings_anomalies_total",
				Help: "Anomalies detected, by type and severity",
			},
			[]string{"type", "severity"},
		),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filings_fetches_total",
				Help: "Remote fetches, by source and outcome",
			},
			[]string{"source", "status"},
		),
	}

	reg.MustRegister(
		r.httpRequestsTotal,
		r.httpRequestDuration,
		r.httpRequestsInFlight,
		r.documentsParsed,
		r.documentsFailed,
		r.statementsSaved,
		r.ratiosComputed,
		r.computeDuration,
		r.qualityChecks,
		r.qualityDeviations,
		r.anomalies,
		r.fetches,
	)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	if r == nil {
		return
	}
	r.httpRequestsTotal.WithLabelValues(method, path, statusToString(status)).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	if r != nil {
		r.httpRequestsInFlight.Inc()
	}
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	if r != nil {
		r.httpRequestsInFlight.Dec()
	}
}

// RecordDocument records the outcome of extracting one document.
func (r *Registry) RecordDocument(kind string, ok bool) {
	if r == nil {
		return
	}
	if ok {
		r.documentsParsed.WithLabelValues(kind).Inc()
		return
	}
	r.documentsFailed.WithLabelValues(kind).Inc()
}

// RecordStatement records a written statement record.
func (r *Registry) RecordStatement(statementType string) {
	if r != nil {
		r.statementsSaved.WithLabelValues(statementType).Inc()
	}
}

// RecordCompute records one company's computation for a result nature.
func (r *Registry) RecordCompute(nature string, ok bool, duration float64) {
	if r == nil {
		return
	}
	r.ratiosComputed.WithLabelValues(nature, outcome(ok)).Inc()
	r.computeDuration.Observe(duration)
}

// RecordQualityCheck records one comparison. pct is nil when the
// comparison could not be made.
func (r *Registry) RecordQualityCheck(field string, acceptable bool, pct *float64) {
	if r == nil {
		return
	}
	switch {
	case pct == nil:
		r.qualityChecks.WithLabelValues(field, "skipped").Inc()
		return
	case acceptable:
		r.qualityChecks.WithLabelValues(field, "within").Inc()
	default:
		r.qualityChecks.WithLabelValues(field, "outside").Inc()
	}
	v := *pct
	if v < 0 {
		v = -v
	}
	r.qualityDeviations.WithLabelValues(field).Observe(v)
}

// RecordAnomaly records a detected anomaly.
func (r *Registry) RecordAnomaly(anomalyType, severity string) {
	if r != nil {
		r.anomalies.WithLabelValues(anomalyType, severity).Inc()
	}
}

// RecordFetch records a remote fetch against a reference or filing source.
func (r *Registry) RecordFetch(source string, ok bool) {
	if r != nil {
		r.fetches.WithLabelValues(source, outcome(ok)).Inc()
	}
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
