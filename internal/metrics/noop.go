package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// ObserveSourceRequest is a no-op.
func (n *NoopRecorder) ObserveSourceRequest(endpoint, status string, duration time.Duration) {}

// IncSourceRecordDropped is a no-op.
func (n *NoopRecorder) IncSourceRecordDropped(kind string) {}

// IncSourceFieldTruncated is a no-op.
func (n *NoopRecorder) IncSourceFieldTruncated(kind, field string) {}

// AddIngestedEvents is a no-op.
func (n *NoopRecorder) AddIngestedEvents(kind, outcome string, count int) {}

// ObserveIngestDuration is a no-op.
func (n *NoopRecorder) ObserveIngestDuration(kind, mode string, duration time.Duration) {}

// AddConversionsEnriched is a no-op.
func (n *NoopRecorder) AddConversionsEnriched(count int) {}

// AddFindings is a no-op.
func (n *NoopRecorder) AddFindings(kind string, count int) {}

// IncJob is a no-op.
func (n *NoopRecorder) IncJob(kind, status string) {}
