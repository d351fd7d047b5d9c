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

// ClickSource fetches paged clicks.
type ClickSource interface {
	FetchClicks(ctx context.Context, date time.Time, page, limit int) (source.Page[model.ClickEvent], error)
	FetchClicksInRange(ctx context.Context, start, end time.Time, page, limit int) (source.Page[model.ClickEvent], error)
}

// ClickStore persists clicks.
type ClickStore interface {
	IngestClicks(ctx context.Context, events []model.ClickEvent, date time.Time, storeRaw bool) (int, error)
	MergeClicks(ctx context.Context, events []model.ClickEvent, storeRaw bool) (int, int, error)
	ClearClickDate(ctx context.Context, date time.Time) error
}

// ClickIngestor moves clicks from the log source into the store.
type ClickIngestor struct {
	source  ClickSource
	store   ClickStore
	opts    Options
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewClickIngestor creates a ClickIngestor.
func NewClickIngestor(src ClickSource, store ClickStore, opts Options, logger *slog.Logger, recorder metrics.Recorder) *ClickIngestor {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ClickIngestor{
		source:  src,
		store:   store,
		opts:    opts,
		logger:  logger.With("component", "ingest.clicks"),
		metrics: recorder,
	}
}

// RunForDate replaces the stored clicks of date with a fresh full fetch.
// A day with no clicks is still cleared. It returns the clicks aggregated.
func (c *ClickIngestor) RunForDate(ctx context.Context, date time.Time) (int, error) {
	start := time.Now()
	defer func() { c.metrics.ObserveIngestDuration("click", ModeReplace, time.Since(start)) }()

	events, pages, err := collect(ctx, c.opts.pageSize(), func(ctx context.Context, page, limit int) (source.Page[model.ClickEvent], error) {
		return c.source.FetchClicks(ctx, date, page, limit)
	})
	if err != nil {
		return 0, fmt.Errorf("fetch clicks for %s: %w", model.FormatDate(date), err)
	}

	if len(events) == 0 {
		if err := c.store.ClearClickDate(ctx, date); err != nil {
			return 0, fmt.Errorf("clear clicks for %s: %w", model.FormatDate(date), err)
		}
		c.logger.Info("no clicks for date, cleared", "date", model.FormatDate(date), "pages", pages)
		return 0, nil
	}

	n, err := c.store.IngestClicks(ctx, events, date, c.opts.StoreRaw)
	if err != nil {
		return 0, fmt.Errorf("store clicks for %s: %w", model.FormatDate(date), err)
	}
	c.metrics.AddIngestedEvents("click", "stored", n)

	c.logger.Info("clicks ingested",
		"date", model.FormatDate(date),
		"fetched", len(events),
		"stored", n,
		"pages", pages,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return n, nil
}

// RunForTimeRange merges the clicks in [start, end] into the store and
// returns how many were new and how many were already stored.
func (c *ClickIngestor) RunForTimeRange(ctx context.Context, start, end time.Time) (int, int, error) {
	began := time.Now()
	defer func() { c.metrics.ObserveIngestDuration("click", ModeMerge, time.Since(began)) }()

	events, pages, err := collect(ctx, c.opts.pageSize(), func(ctx context.Context, page, limit int) (source.Page[model.ClickEvent], error) {
		return c.source.FetchClicksInRange(ctx, start, end, page, limit)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("fetch clicks for range: %w", err)
	}
	if len(events) == 0 {
		c.logger.Info("no clicks in range", "start", start, "end", end, "pages", pages)
		return 0, 0, nil
	}

	inserted, skipped, err := c.store.MergeClicks(ctx, events, true)
	if err != nil {
		return 0, 0, fmt.Errorf("merge clicks: %w", err)
	}
	c.metrics.AddIngestedEvents("click", "new", inserted)
	c.metrics.AddIngestedEvents("click", "duplicate", skipped)

	c.logger.Info("clicks merged",
		"start", start,
		"end", end,
		"fetched", len(events),
		"new", inserted,
		"duplicate", skipped,
		"pages", pages,
	)
	return inserted, skipped, nil
}
