package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jassnet/Fraudhunter/internal/model"
)

// Daily stats bounds.
const (
	DefaultStatsDays = 30
	MaxStatsDays     = 365
)

// ReportStore answers the dashboard queries.
type ReportStore interface {
	Summary(ctx context.Context, date time.Time, clickThreshold, conversionThreshold int64) (*model.Summary, error)
	DailyStats(ctx context.Context, limit int, clickThreshold, conversionThreshold int64) ([]model.DailyStat, error)
	AvailableDates(ctx context.Context) ([]time.Time, error)
	DateStore
}

// Reports serves the dashboard read models. Suspicious counts use the
// current volume thresholds.
type Reports struct {
	store    ReportStore
	settings SettingsProvider
}

// NewReports creates a Reports service.
func NewReports(store ReportStore, sp SettingsProvider) *Reports {
	return &Reports{store: store, settings: sp}
}

// Summary returns the overview for date (YYYY-MM-DD), or for the latest
// click date when date is empty. It returns nil when there is no data.
func (r *Reports) Summary(ctx context.Context, date string) (*model.Summary, error) {
	var day time.Time
	if date != "" {
		d, err := model.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
		}
		day = d
	} else {
		d, ok, err := r.latest(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		day = d
	}

	s, err := r.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return r.store.Summary(ctx, day, s.ClickThreshold, s.ConversionThreshold)
}

// DailyStats returns the last days of totals, oldest first.
func (r *Reports) DailyStats(ctx context.Context, days int) ([]model.DailyStat, error) {
	if days == 0 {
		days = DefaultStatsDays
	}
	if days < 1 || days > MaxStatsDays {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, MaxStatsDays)
	}
	s, err := r.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	stats, err := r.store.DailyStats(ctx, days, s.ClickThreshold, s.ConversionThreshold)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []model.DailyStat{}
	}
	return stats, nil
}

// Dates lists the dates with data, newest first.
func (r *Reports) Dates(ctx context.Context) ([]string, error) {
	dates, err := r.store.AvailableDates(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = model.FormatDate(d)
	}
	return out, nil
}

func (r *Reports) latest(ctx context.Context) (time.Time, bool, error) {
	d, ok, err := r.store.LatestDate(ctx, model.UnitClicks)
	if err != nil || ok {
		return d, ok, err
	}
	return r.store.LatestDate(ctx, model.UnitConversions)
}
