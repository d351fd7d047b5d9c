package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jassnet/Fraudhunter/internal/metrics"
	"github.com/jassnet/Fraudhunter/internal/model"
	"github.com/jassnet/Fraudhunter/internal/source"
)

// ConversionSource fetches paged conversions.
type ConversionSource interface {
	FetchConversions(ctx context.Context, date time.Time, page, limit int) (source.Page[model.ConversionEvent], error)
	FetchConversionsInRange(ctx context.Context, start, end time.Time, page, limit int) (source.Page[model.ConversionEvent], error)
}

// ConversionStore persists conversions.
type ConversionStore interface {
	IngestConversions(ctx context.Context, events []model.ConversionEvent, date time.Time) (int, error)
	MergeConversions(ctx context.Context, events []model.ConversionEvent) (int, int, error)
}

// Enricher fills click-side data into conversions and returns how many
// conversions it changed.
type Enricher interface {
	Enrich(ctx context.Context, conversions []model.ConversionEvent) (int, error)
}

// ConversionIngestor moves conversions from the log source into the store.
type ConversionIngestor struct {
	source   ConversionSource
	store    ConversionStore
	enricher Enricher
	opts     Options
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// NewConversionIngestor creates a ConversionIngestor. enricher may be nil.
func NewConversionIngestor(src ConversionSource, store ConversionStore, enricher Enricher, opts Options, logger *slog.Logger, recorder metrics.Recorder) *ConversionIngestor {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ConversionIngestor{
		source:   src,
		store:    store,
		enricher: enricher,
		opts:     opts,
		logger:   logger.With("component", "ingest.conversions"),
		metrics:  recorder,
	}
}

// RunForDate replaces the stored conversions of date. An empty day still
// clears what was stored. It returns the conversions stored.
func (c *ConversionIngestor) RunForDate(ctx context.Context, date time.Time) (int, error) {
	start := time.Now()
	defer func() { c.metrics.ObserveIngestDuration("conversion", ModeReplace, time.Since(start)) }()

	events, pages, err := collect(ctx, c.opts.pageSize(), func(ctx context.Context, page, limit int) (source.Page[model.ConversionEvent], error) {
		return c.source.FetchConversions(ctx, date, page, limit)
	})
	if err != nil {
		return 0, fmt.Errorf("fetch conversions for %s: %w", model.FormatDate(date), err)
	}

	enriched, err := c.enrich(ctx, events)
	if err != nil {
		return 0, err
	}

	n, err := c.store.IngestConversions(ctx, events, date)
	if err != nil {
		return 0, fmt.Errorf("store conversions for %s: %w", model.FormatDate(date), err)
	}
	c.metrics.AddIngestedEvents("conversion", "stored", n)

	c.logger.Info("conversions ingested",
		"date", model.FormatDate(date),
		"fetched", len(events),
		"stored", n,
		"with_entry_signal", countWithEntrySignal(events),
		"enriched", enriched,
		"pages", pages,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return n, nil
}

// RunForTimeRange merges the conversions in [start, end]. It returns the
// new and duplicate counts and how many fetched conversions carried an
// entry IP and UA.
func (c *ConversionIngestor) RunForTimeRange(ctx context.Context, start, end time.Time) (int, int, int, error) {
	began := time.Now()
	defer func() { c.metrics.ObserveIngestDuration("conversion", ModeMerge, time.Since(began)) }()

	events, pages, err := collect(ctx, c.opts.pageSize(), func(ctx context.Context, page, limit int) (source.Page[model.ConversionEvent], error) {
		return c.source.FetchConversionsInRange(ctx, start, end, page, limit)
	})
	if err != nil {
		return 0, 0, 0, fmt.Errorf("fetch conversions for range: %w", err)
	}
	if len(events) == 0 {
		c.logger.Info("no conversions in range", "start", start, "end", end, "pages", pages)
		return 0, 0, 0, nil
	}

	enriched, err := c.enrich(ctx, events)
	if err != nil {
		return 0, 0, 0, err
	}

	inserted, skipped, err := c.store.MergeConversions(ctx, events)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("merge conversions: %w", err)
	}
	valid := countWithEntrySignal(events)
	c.metrics.AddIngestedEvents("conversion", "new", inserted)
	c.metrics.AddIngestedEvents("conversion", "duplicate", skipped)

	c.logger.Info("conversions merged",
		"start", start,
		"end", end,
		"fetched", len(events),
		"new", inserted,
		"duplicate", skipped,
		"with_entry_signal", valid,
		"enriched", enriched,
		"pages", pages,
	)
	return inserted, skipped, valid, nil
}

func (c *ConversionIngestor) enrich(ctx context.Context, events []model.ConversionEvent) (int, error) {
	if c.enricher == nil || len(events) == 0 {
		return 0, nil
	}
	n, err := c.enricher.Enrich(ctx, events)
	if err != nil {
		return 0, fmt.Errorf("enrich conversions: %w", err)
	}
	c.metrics.AddConversionsEnriched(n)
	return n, nil
}

func countWithEntrySignal(events []model.ConversionEvent) int {
	n := 0
	for i := range events {
		if events[i].HasEntrySignal() {
			n++
		}
	}
	return n
}
