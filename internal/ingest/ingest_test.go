package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jassnet/Fraudhunter/internal/metrics"
	"github.com/jassnet/Fraudhunter/internal/model"
	"github.com/jassnet/Fraudhunter/internal/source"
)

var day = time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pagedSource serves pre-built pages; received overrides Received per page.
type pagedSource struct {
	clickPages      [][]model.ClickEvent
	conversionPages [][]model.ConversionEvent
	received        map[int]int
	calls           []int
	err             error
}

func (s *pagedSource) page(page int, n int) int {
	s.calls = append(s.calls, page)
	if r, ok := s.received[page]; ok {
		return r
	}
	return n
}

func (s *pagedSource) FetchClicks(ctx context.Context, date time.Time, page, limit int) (source.Page[model.ClickEvent], error) {
	return s.FetchClicksInRange(ctx, date, date, page, limit)
}

func (s *pagedSource) FetchClicksInRange(ctx context.Context, start, end time.Time, page, limit int) (source.Page[model.ClickEvent], error) {
	if s.err != nil {
		return source.Page[model.ClickEvent]{}, s.err
	}
	if page > len(s.clickPages) {
		s.calls = append(s.calls, page)
		return source.Page[model.ClickEvent]{}, nil
	}
	items := s.clickPages[page-1]
	return source.Page[model.ClickEvent]{Items: items, Received: s.page(page, len(items))}, nil
}

func (s *pagedSource) FetchConversions(ctx context.Context, date time.Time, page, limit int) (source.Page[model.ConversionEvent], error) {
	return s.FetchConversionsInRange(ctx, date, date, page, limit)
}

func (s *pagedSource) FetchConversionsInRange(ctx context.Context, start, end time.Time, page, limit int) (source.Page[model.ConversionEvent], error) {
	if s.err != nil {
		return source.Page[model.ConversionEvent]{}, s.err
	}
	if page > len(s.conversionPages) {
		s.calls = append(s.calls, page)
		return source.Page[model.ConversionEvent]{}, nil
	}
	items := s.conversionPages[page-1]
	return source.Page[model.ConversionEvent]{Items: items, Received: s.page(page, len(items))}, nil
}

type recordingStore struct {
	ingested    []model.ClickEvent
	merged      []model.ClickEvent
	cleared     []time.Time
	conversions []model.ConversionEvent
	mergeResult [2]int
	mergedRaw   []bool
	err         error
}

func (s *recordingStore) IngestClicks(ctx context.Context, events []model.ClickEvent, date time.Time, storeRaw bool) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.ingested = append(s.ingested, events...)
	return len(events), nil
}

func (s *recordingStore) MergeClicks(ctx context.Context, events []model.ClickEvent, storeRaw bool) (int, int, error) {
	s.merged = append(s.merged, events...)
	s.mergedRaw = append(s.mergedRaw, storeRaw)
	return s.mergeResult[0], s.mergeResult[1], s.err
}

func (s *recordingStore) ClearClickDate(ctx context.Context, date time.Time) error {
	s.cleared = append(s.cleared, date)
	return s.err
}

func (s *recordingStore) IngestConversions(ctx context.Context, events []model.ConversionEvent, date time.Time) (int, error) {
	s.conversions = append(s.conversions, events...)
	return len(events), s.err
}

func (s *recordingStore) MergeConversions(ctx context.Context, events []model.ConversionEvent) (int, int, error) {
	s.conversions = append(s.conversions, events...)
	return s.mergeResult[0], s.mergeResult[1], s.err
}

func clicks(n int) []model.ClickEvent {
	out := make([]model.ClickEvent, n)
	for i := range out {
		out[i] = model.ClickEvent{ClickTime: day.Add(time.Duration(i) * time.Second), IPAddress: "1.1.1.1", UserAgent: "UA"}
	}
	return out
}

func TestClickRunForDate_PagesUntilShortPage(t *testing.T) {
	src := &pagedSource{clickPages: [][]model.ClickEvent{clicks(3), clicks(3), clicks(1)}}
	store := &recordingStore{}
	rec := metrics.NewInMemory()

	n, err := NewClickIngestor(src, store, Options{PageSize: 3}, testLogger(), rec).RunForDate(context.Background(), day)
	if err != nil {
		t.Fatalf("RunForDate() error = %v", err)
	}
	if n != 7 || len(store.ingested) != 7 {
		t.Errorf("stored %d (%d), want 7", n, len(store.ingested))
	}
	if len(src.calls) != 3 {
		t.Errorf("fetched pages %v, want 3 pages", src.calls)
	}
	if rec.Snapshot().IngestedEvents["click|stored"] != 7 {
		t.Errorf("metrics = %v", rec.Snapshot().IngestedEvents)
	}
}

func TestClickRunForDate_ThinnedPageDoesNotStopPaging(t *testing.T) {
	// Page 1 kept only one record of a full page of three.
	src := &pagedSource{
		clickPages: [][]model.ClickEvent{clicks(1), clicks(2)},
		received:   map[int]int{1: 3},
	}
	store := &recordingStore{}

	n, err := NewClickIngestor(src, store, Options{PageSize: 3}, testLogger(), nil).RunForDate(context.Background(), day)
	if err != nil {
		t.Fatalf("RunForDate() error = %v", err)
	}
	if n != 3 {
		t.Errorf("stored %d, want 3", n)
	}
	if len(src.calls) != 2 {
		t.Errorf("fetched pages %v, want 2", src.calls)
	}
}

func TestClickRunForDate_EmptyDayClears(t *testing.T) {
	src := &pagedSource{}
	store := &recordingStore{}

	n, err := NewClickIngestor(src, store, Options{PageSize: 3}, testLogger(), nil).RunForDate(context.Background(), day)
	if err != nil {
		t.Fatalf("RunForDate() error = %v", err)
	}
	if n != 0 {
		t.Errorf("n = %d, want 0", n)
	}
	if len(store.cleared) != 1 || !store.cleared[0].Equal(day) {
		t.Errorf("cleared = %v, want [%s]", store.cleared, day)
	}
}

func TestClickRunForDate_SourceErrorAborts(t *testing.T) {
	srcErr := &source.StatusError{StatusCode: 500, Endpoint: "track_log/search"}
	store := &recordingStore{}

	_, err := NewClickIngestor(&pagedSource{err: srcErr}, store, Options{}, testLogger(), nil).RunForDate(context.Background(), day)
	var statusErr *source.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("RunForDate() error = %v, want StatusError", err)
	}
	if len(store.ingested) != 0 || len(store.cleared) != 0 {
		t.Error("store should not be touched after a source error")
	}
}

func TestClickRunForDate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClickIngestor(&pagedSource{clickPages: [][]model.ClickEvent{clicks(3)}}, &recordingStore{}, Options{PageSize: 3}, testLogger(), nil).RunForDate(ctx, day)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunForDate() error = %v, want context.Canceled", err)
	}
}

func TestClickRunForTimeRange(t *testing.T) {
	src := &pagedSource{clickPages: [][]model.ClickEvent{clicks(2)}}
	store := &recordingStore{mergeResult: [2]int{1, 1}}

	inserted, skipped, err := NewClickIngestor(src, store, Options{PageSize: 3, StoreRaw: true}, testLogger(), nil).
		RunForTimeRange(context.Background(), day, day.Add(time.Hour))
	if err != nil {
		t.Fatalf("RunForTimeRange() error = %v", err)
	}
	if inserted != 1 || skipped != 1 || len(store.merged) != 2 {
		t.Errorf("new/skip = %d/%d, merged %d", inserted, skipped, len(store.merged))
	}
}

func TestClickRunForTimeRange_AlwaysKeepsRawClicks(t *testing.T) {
	src := &pagedSource{clickPages: [][]model.ClickEvent{clicks(2)}}
	store := &recordingStore{mergeResult: [2]int{2, 0}}

	_, _, err := NewClickIngestor(src, store, Options{PageSize: 3}, testLogger(), nil).
		RunForTimeRange(context.Background(), day, day.Add(time.Hour))
	if err != nil {
		t.Fatalf("RunForTimeRange() error = %v", err)
	}
	if len(store.mergedRaw) != 1 || !store.mergedRaw[0] {
		t.Errorf("MergeClicks storeRaw = %v, want [true]", store.mergedRaw)
	}
}

func TestClickRunForTimeRange_EmptyDoesNotTouchStore(t *testing.T) {
	store := &recordingStore{}
	inserted, skipped, err := NewClickIngestor(&pagedSource{}, store, Options{}, testLogger(), nil).
		RunForTimeRange(context.Background(), day, day.Add(time.Hour))
	if err != nil || inserted != 0 || skipped != 0 {
		t.Fatalf("RunForTimeRange() = %d, %d, %v", inserted, skipped, err)
	}
	if store.merged != nil || store.cleared != nil {
		t.Error("store should not be touched")
	}
}

type stubEnricher struct{ n int }

func (e *stubEnricher) Enrich(ctx context.Context, conversions []model.ConversionEvent) (int, error) {
	for i := range conversions {
		conversions[i].ClickIPAddress = "enriched"
	}
	e.n = len(conversions)
	return len(conversions), nil
}

func TestConversionRunForTimeRange_CountsEntrySignal(t *testing.T) {
	src := &pagedSource{conversionPages: [][]model.ConversionEvent{{
		{ID: "a", ConversionTime: day, EntryIPAddress: "1.1.1.1", EntryUserAgent: "UA"},
		{ID: "b", ConversionTime: day, EntryIPAddress: "1.1.1.1"},
		{ID: "c", ConversionTime: day},
	}}}
	store := &recordingStore{mergeResult: [2]int{3, 0}}
	enricher := &stubEnricher{}
	rec := metrics.NewInMemory()

	inserted, skipped, valid, err := NewConversionIngestor(src, store, enricher, Options{PageSize: 10}, testLogger(), rec).
		RunForTimeRange(context.Background(), day, day.Add(time.Hour))
	if err != nil {
		t.Fatalf("RunForTimeRange() error = %v", err)
	}
	if inserted != 3 || skipped != 0 || valid != 1 {
		t.Errorf("new/skip/valid = %d/%d/%d, want 3/0/1", inserted, skipped, valid)
	}
	if store.conversions[0].ClickIPAddress != "enriched" {
		t.Error("conversions should be enriched before storing")
	}
	if rec.Snapshot().ConversionsEnriched != 3 {
		t.Errorf("enriched metric = %d", rec.Snapshot().ConversionsEnriched)
	}
}

func TestConversionRunForDate_EmptyDayStillStores(t *testing.T) {
	store := &recordingStore{}
	n, err := NewConversionIngestor(&pagedSource{}, store, nil, Options{}, testLogger(), nil).RunForDate(context.Background(), day)
	if err != nil || n != 0 {
		t.Fatalf("RunForDate() = %d, %v", n, err)
	}
}
