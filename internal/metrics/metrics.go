// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus or keep them in memory.
type Recorder interface {
	// Log source metrics
	ObserveSourceRequest(endpoint, status string, duration time.Duration) // status: "ok", "error", "rejected"
	IncSourceRecordDropped(kind string)                                   // kind: "click", "conversion"
	IncSourceFieldTruncated(kind, field string)

	// Ingestion metrics
	AddIngestedEvents(kind, outcome string, n int) // outcome: "stored", "new", "skipped"
	ObserveIngestDuration(kind, mode string, duration time.Duration)
	AddConversionsEnriched(n int)

	// Detection metrics
	AddFindings(kind string, n int) // kind: "click", "conversion", "high_risk"

	// Job metrics
	IncJob(kind, status string) // status: "started", "completed", "failed", "conflict"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
