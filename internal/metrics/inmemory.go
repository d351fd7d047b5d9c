package metrics

import (
	"sync"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	SourceRequests      map[string]uint64 // endpoint|status
	SourceDropped       map[string]uint64 // kind
	SourceTruncated     map[string]uint64 // kind|field
	IngestedEvents      map[string]uint64 // kind|outcome
	IngestRuns          map[string]uint64 // kind|mode
	ConversionsEnriched uint64
	Findings            map[string]uint64 // kind
	Jobs                map[string]uint64 // kind|status
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{snap: Snapshot{
		SourceRequests:  make(map[string]uint64),
		SourceDropped:   make(map[string]uint64),
		SourceTruncated: make(map[string]uint64),
		IngestedEvents:  make(map[string]uint64),
		IngestRuns:      make(map[string]uint64),
		Findings:        make(map[string]uint64),
		Jobs:            make(map[string]uint64),
	}}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		SourceRequests:      copyCounts(m.snap.SourceRequests),
		SourceDropped:       copyCounts(m.snap.SourceDropped),
		SourceTruncated:     copyCounts(m.snap.SourceTruncated),
		IngestedEvents:      copyCounts(m.snap.IngestedEvents),
		IngestRuns:          copyCounts(m.snap.IngestRuns),
		ConversionsEnriched: m.snap.ConversionsEnriched,
		Findings:            copyCounts(m.snap.Findings),
		Jobs:                copyCounts(m.snap.Jobs),
	}
}

// ObserveSourceRequest counts a log source request.
func (m *InMemoryRecorder) ObserveSourceRequest(endpoint, status string, duration time.Duration) {
	m.add(m.snap.SourceRequests, endpoint+"|"+status, 1)
}

// IncSourceRecordDropped counts a record dropped during parsing.
func (m *InMemoryRecorder) IncSourceRecordDropped(kind string) {
	m.add(m.snap.SourceDropped, kind, 1)
}

// IncSourceFieldTruncated counts a field cut to its column limit.
func (m *InMemoryRecorder) IncSourceFieldTruncated(kind, field string) {
	m.add(m.snap.SourceTruncated, kind+"|"+field, 1)
}

// AddIngestedEvents counts ingested events by outcome.
func (m *InMemoryRecorder) AddIngestedEvents(kind, outcome string, n int) {
	m.add(m.snap.IngestedEvents, kind+"|"+outcome, uint64(n))
}

// ObserveIngestDuration counts an ingestion run.
func (m *InMemoryRecorder) ObserveIngestDuration(kind, mode string, duration time.Duration) {
	m.add(m.snap.IngestRuns, kind+"|"+mode, 1)
}

// AddConversionsEnriched counts conversions enriched with click data.
func (m *InMemoryRecorder) AddConversionsEnriched(n int) {
	m.mu.Lock()
	m.snap.ConversionsEnriched += uint64(n)
	m.mu.Unlock()
}

// AddFindings counts detector findings.
func (m *InMemoryRecorder) AddFindings(kind string, n int) {
	m.add(m.snap.Findings, kind, uint64(n))
}

// IncJob counts a job lifecycle transition.
func (m *InMemoryRecorder) IncJob(kind, status string) {
	m.add(m.snap.Jobs, kind+"|"+status, 1)
}

func (m *InMemoryRecorder) add(counts map[string]uint64, key string, n uint64) {
	m.mu.Lock()
	counts[key] += n
	m.mu.Unlock()
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
