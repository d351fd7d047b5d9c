package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fraudhunter"

// PrometheusRecorder exports metrics through a dedicated registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	sourceRequests      *prometheus.CounterVec
	sourceLatency       *prometheus.HistogramVec
	sourceDropped       *prometheus.CounterVec
	sourceTruncated     *prometheus.CounterVec
	ingestedEvents      *prometheus.CounterVec
	ingestDuration      *prometheus.HistogramVec
	conversionsEnriched prometheus.Counter
	findings            *prometheus.CounterVec
	jobs                *prometheus.CounterVec
}

// NewPrometheus creates and registers all collectors.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		sourceRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_requests_total",
				Help:      "Log source API requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		sourceLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_request_duration_seconds",
				Help:      "Log source API request latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint"},
		),
		sourceDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_records_dropped_total",
				Help:      "Source records dropped because they could not be parsed",
			},
			[]string{"kind"},
		),
		sourceTruncated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_fields_truncated_total",
				Help:      "Source fields cut to their column limit",
			},
			[]string{"kind", "field"},
		),
		ingestedEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingested_events_total",
				Help:      "Events handed to the aggregation store by outcome",
			},
			[]string{"kind", "outcome"},
		),
		ingestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingest_duration_seconds",
				Help:      "Wall time of ingestion runs",
				Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"kind", "mode"},
		),
		conversionsEnriched: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversions_enriched_total",
				Help:      "Conversions matched to a stored click by correlation id",
			},
		),
		findings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "findings_total",
				Help:      "Suspicious findings produced by the detectors",
			},
			[]string{"kind"},
		),
		jobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Background job transitions",
			},
			[]string{"kind", "status"},
		),
	}
}

// Handler returns the metrics HTTP handler for this recorder's registry.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// ObserveSourceRequest records a log source request.
func (p *PrometheusRecorder) ObserveSourceRequest(endpoint, status string, duration time.Duration) {
	p.sourceRequests.WithLabelValues(endpoint, status).Inc()
	p.sourceLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// IncSourceRecordDropped records a dropped source record.
func (p *PrometheusRecorder) IncSourceRecordDropped(kind string) {
	p.sourceDropped.WithLabelValues(kind).Inc()
}

// IncSourceFieldTruncated records a truncated source field.
func (p *PrometheusRecorder) IncSourceFieldTruncated(kind, field string) {
	p.sourceTruncated.WithLabelValues(kind, field).Inc()
}

// AddIngestedEvents records ingested events.
func (p *PrometheusRecorder) AddIngestedEvents(kind, outcome string, n int) {
	p.ingestedEvents.WithLabelValues(kind, outcome).Add(float64(n))
}

// ObserveIngestDuration records an ingestion run.
func (p *PrometheusRecorder) ObserveIngestDuration(kind, mode string, duration time.Duration) {
	p.ingestDuration.WithLabelValues(kind, mode).Observe(duration.Seconds())
}

// AddConversionsEnriched records correlated conversions.
func (p *PrometheusRecorder) AddConversionsEnriched(n int) {
	p.conversionsEnriched.Add(float64(n))
}

// AddFindings records detector output.
func (p *PrometheusRecorder) AddFindings(kind string, n int) {
	p.findings.WithLabelValues(kind).Add(float64(n))
}

// IncJob records a job transition.
func (p *PrometheusRecorder) IncJob(kind, status string) {
	p.jobs.WithLabelValues(kind, status).Inc()
}
