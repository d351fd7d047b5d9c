package handler

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/jassnet/Fraudhunter/internal/metrics"
)

// MetricsHandler renders in-memory counters in the Prometheus text
// format. The Prometheus recorder serves its own handler instead.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// ServeHTTP writes the current snapshot.
// GET /metrics
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeCounts(w, "fraudhunter_source_requests_total", []string{"endpoint", "status"}, snap.SourceRequests)
	writeCounts(w, "fraudhunter_source_records_dropped_total", []string{"kind"}, snap.SourceDropped)
	writeCounts(w, "fraudhunter_source_fields_truncated_total", []string{"kind", "field"}, snap.SourceTruncated)
	writeCounts(w, "fraudhunter_ingested_events_total", []string{"kind", "outcome"}, snap.IngestedEvents)
	writeCounts(w, "fraudhunter_ingest_duration_seconds_count", []string{"kind", "mode"}, snap.IngestRuns)
	_, _ = fmt.Fprintf(w, "fraudhunter_conversions_enriched_total %d\n", snap.ConversionsEnriched)
	writeCounts(w, "fraudhunter_findings_total", []string{"kind"}, snap.Findings)
	writeCounts(w, "fraudhunter_jobs_total", []string{"kind", "status"}, snap.Jobs)
}

// writeCounts writes one line per key. Keys join label values with "|".
func writeCounts(w http.ResponseWriter, name string, labels []string, counts map[string]uint64) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		values := strings.Split(k, "|")
		pairs := make([]string, 0, len(labels))
		for i, l := range labels {
			v := ""
			if i < len(values) {
				v = values[i]
			}
			pairs = append(pairs, fmt.Sprintf("%s=%q", l, v))
		}
		_, _ = fmt.Fprintf(w, "%s{%s} %d\n", name, strings.Join(pairs, ","), counts[k])
	}
}
