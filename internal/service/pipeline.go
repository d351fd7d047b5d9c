// Package service wires the ingestors, detectors and stores into the
// operations the API and the CLI expose.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jassnet/Fraudhunter/internal/correlation"
	"github.com/jassnet/Fraudhunter/internal/detection"
	"github.com/jassnet/Fraudhunter/internal/ingest"
	"github.com/jassnet/Fraudhunter/internal/metrics"
	"github.com/jassnet/Fraudhunter/internal/model"
	"github.com/jassnet/Fraudhunter/internal/settings"
)

// Service errors.
var (
	ErrInvalidInput = errors.New("invalid input")
)

// Refresh bounds, in hours.
const (
	DefaultRefreshHours = 24
	MaxRefreshHours     = 168
)

// Source is the log source the pipeline pulls from.
type Source interface {
	ingest.ClickSource
	ingest.ConversionSource
	FetchAllMedia(ctx context.Context) ([]model.Media, error)
	FetchAllPromotions(ctx context.Context) ([]model.Promotion, error)
	FetchAllAffiliates(ctx context.Context) ([]model.Affiliate, error)
}

// ClickStore is everything the pipeline needs from click storage.
type ClickStore interface {
	ingest.ClickStore
	detection.ClickRollupStore
	correlation.ClickLookup
}

// ConversionStore is everything the pipeline needs from conversion storage.
type ConversionStore interface {
	ingest.ConversionStore
	detection.ConversionRollupStore
}

// MasterStore holds master data and the per-pair breakdowns.
type MasterStore interface {
	UpsertMedia(ctx context.Context, media []model.Media) (int, error)
	UpsertPromotions(ctx context.Context, promotions []model.Promotion) (int, error)
	UpsertAffiliates(ctx context.Context, affiliates []model.Affiliate) (int, error)
	Counts(ctx context.Context) (*model.MasterCounts, error)
	FetchSuspiciousDetails(ctx context.Context, unit model.EventUnit, date time.Time, pairs []model.IPUA) (map[model.IPUA][]model.SuspiciousDetail, error)
}

// DateStore resolves the most recent date with data.
type DateStore interface {
	LatestDate(ctx context.Context, unit model.EventUnit) (time.Time, bool, error)
}

// Stores groups the storage dependencies. With SQLite one value fills
// every field.
type Stores struct {
	Clicks      ClickStore
	Conversions ConversionStore
	Masters     MasterStore
	Dates       DateStore
}

// SettingsProvider returns the effective detection settings.
type SettingsProvider interface {
	Get(ctx context.Context) (settings.Settings, error)
}

// Options configures a Pipeline.
type Options struct {
	PageSize int
	StoreRaw bool
	// Location is the source timezone; dates are calendar days in it.
	Location *time.Location
}

// Pipeline runs ingestion, detection and master sync.
type Pipeline struct {
	source   Source
	stores   Stores
	settings SettingsProvider
	opts     Options
	logger   *slog.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewPipeline creates a Pipeline.
func NewPipeline(src Source, stores Stores, sp SettingsProvider, opts Options, logger *slog.Logger, recorder metrics.Recorder) *Pipeline {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Pipeline{
		source:   src,
		stores:   stores,
		settings: sp,
		opts:     opts,
		logger:   logger,
		metrics:  recorder,
		now:      time.Now,
	}
}

// IngestResult reports a replace-ingest run.
type IngestResult struct {
	Date   string `json:"date"`
	Stored int    `json:"stored"`
}

// IngestClicks replaces the stored clicks of date.
func (p *Pipeline) IngestClicks(ctx context.Context, date time.Time) (*IngestResult, error) {
	n, err := p.clickIngestor().RunForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	return &IngestResult{Date: model.FormatDate(date), Stored: n}, nil
}

// IngestConversions replaces the stored conversions of date.
func (p *Pipeline) IngestConversions(ctx context.Context, date time.Time) (*IngestResult, error) {
	n, err := p.conversionIngestor().RunForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	return &IngestResult{Date: model.FormatDate(date), Stored: n}, nil
}

// RefreshInput selects what a refresh pulls.
type RefreshInput struct {
	Hours       int  `json:"hours"`
	Clicks      bool `json:"clicks"`
	Conversions bool `json:"conversions"`
	Detect      bool `json:"detect"`
}

// DetectionCounts summarizes detection for one date.
type DetectionCounts struct {
	Date        string `json:"date"`
	Clicks      int    `json:"suspicious_clicks"`
	Conversions int    `json:"suspicious_conversions"`
	HighRisk    int    `json:"high_risk"`
}

// RefreshResult reports a refresh run.
type RefreshResult struct {
	Start               time.Time         `json:"start"`
	End                 time.Time         `json:"end"`
	ClicksNew           int               `json:"clicks_new"`
	ClicksDuplicate     int               `json:"clicks_duplicate"`
	ConversionsNew      int               `json:"conversions_new"`
	ConversionsDup      int               `json:"conversions_duplicate"`
	ConversionsWithIPUA int               `json:"conversions_with_entry_ipua"`
	Detections          []DetectionCounts `json:"detections,omitempty"`
}

// Refresh merges the last in.Hours of clicks and/or conversions and, when
// asked, runs detection over every date the window touches.
func (p *Pipeline) Refresh(ctx context.Context, in RefreshInput) (*RefreshResult, error) {
	if in.Hours == 0 {
		in.Hours = DefaultRefreshHours
	}
	if in.Hours < 1 || in.Hours > MaxRefreshHours {
		return nil, fmt.Errorf("%w: hours must be between 1 and %d", ErrInvalidInput, MaxRefreshHours)
	}
	if !in.Clicks && !in.Conversions {
		return nil, fmt.Errorf("%w: nothing to refresh", ErrInvalidInput)
	}

	end := p.now().In(p.opts.Location)
	start := end.Add(-time.Duration(in.Hours) * time.Hour)
	res := &RefreshResult{Start: start, End: end}

	if in.Clicks {
		n, skipped, err := p.clickIngestor().RunForTimeRange(ctx, start, end)
		if err != nil {
			return nil, err
		}
		res.ClicksNew, res.ClicksDuplicate = n, skipped
	}
	if in.Conversions {
		n, skipped, valid, err := p.conversionIngestor().RunForTimeRange(ctx, start, end)
		if err != nil {
			return nil, err
		}
		res.ConversionsNew, res.ConversionsDup, res.ConversionsWithIPUA = n, skipped, valid
	}

	if in.Detect {
		for day := model.DateOf(start); !day.After(model.DateOf(end)); day = day.AddDate(0, 0, 1) {
			result, err := p.Detect(ctx, day)
			if err != nil {
				return nil, err
			}
			res.Detections = append(res.Detections, DetectionCounts{
				Date:        model.FormatDate(day),
				Clicks:      len(result.ClickFindings),
				Conversions: len(result.ConversionFindings),
				HighRisk:    len(result.HighRisk),
			})
		}
	}

	p.logger.Info("refresh completed",
		"hours", in.Hours,
		"clicks_new", res.ClicksNew,
		"conversions_new", res.ConversionsNew,
		"detected_dates", len(res.Detections),
	)
	return res, nil
}

// Detect runs the combined detector for date with the current settings.
func (p *Pipeline) Detect(ctx context.Context, date time.Time) (*model.CombinedResult, error) {
	clicks, conversions, err := p.detectors(ctx)
	if err != nil {
		return nil, err
	}
	return detection.NewCombinedDetector(clicks, conversions, p.metrics).FindForDate(ctx, date)
}

// DetectClicks runs only the click detector.
func (p *Pipeline) DetectClicks(ctx context.Context, date time.Time) ([]model.Finding, error) {
	clicks, _, err := p.detectors(ctx)
	if err != nil {
		return nil, err
	}
	return clicks.FindForDate(ctx, date)
}

// DetectConversions runs only the conversion detector.
func (p *Pipeline) DetectConversions(ctx context.Context, date time.Time) ([]model.ConversionFinding, error) {
	_, conversions, err := p.detectors(ctx)
	if err != nil {
		return nil, err
	}
	return conversions.FindForDate(ctx, date)
}

// MasterSyncResult reports how many master rows were upserted.
type MasterSyncResult struct {
	Media      int `json:"media"`
	Promotions int `json:"promotions"`
	Affiliates int `json:"users"`
}

// SyncMasters pulls every master list and upserts it.
func (p *Pipeline) SyncMasters(ctx context.Context) (*MasterSyncResult, error) {
	media, err := p.source.FetchAllMedia(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	promotions, err := p.source.FetchAllPromotions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch promotions: %w", err)
	}
	affiliates, err := p.source.FetchAllAffiliates(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}

	res := &MasterSyncResult{}
	if res.Media, err = p.stores.Masters.UpsertMedia(ctx, media); err != nil {
		return nil, err
	}
	if res.Promotions, err = p.stores.Masters.UpsertPromotions(ctx, promotions); err != nil {
		return nil, err
	}
	if res.Affiliates, err = p.stores.Masters.UpsertAffiliates(ctx, affiliates); err != nil {
		return nil, err
	}

	p.logger.Info("masters synced", "media", res.Media, "promotions", res.Promotions, "users", res.Affiliates)
	return res, nil
}

// MasterStatus returns the master table counts.
func (p *Pipeline) MasterStatus(ctx context.Context) (*model.MasterCounts, error) {
	return p.stores.Masters.Counts(ctx)
}

func (p *Pipeline) detectors(ctx context.Context) (*detection.ClickDetector, *detection.ConversionDetector, error) {
	s, err := p.settings.Get(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load settings: %w", err)
	}
	clicks, err := detection.NewClickDetector(p.stores.Clicks, s.ClickRules(), p.logger, p.metrics)
	if err != nil {
		return nil, nil, err
	}
	conversions, err := detection.NewConversionDetector(p.stores.Conversions, s.ConversionRules(), p.logger, p.metrics)
	if err != nil {
		return nil, nil, err
	}
	return clicks, conversions, nil
}

func (p *Pipeline) clickIngestor() *ingest.ClickIngestor {
	return ingest.NewClickIngestor(p.source, p.stores.Clicks, p.ingestOptions(), p.logger, p.metrics)
}

func (p *Pipeline) conversionIngestor() *ingest.ConversionIngestor {
	resolver := correlation.NewResolver(p.stores.Clicks, p.logger)
	return ingest.NewConversionIngestor(p.source, p.stores.Conversions, resolver, p.ingestOptions(), p.logger, p.metrics)
}

func (p *Pipeline) ingestOptions() ingest.Options {
	return ingest.Options{PageSize: p.opts.PageSize, StoreRaw: p.opts.StoreRaw}
}
