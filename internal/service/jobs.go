package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jassnet/Fraudhunter/internal/jobs"
	"github.com/jassnet/Fraudhunter/internal/model"
)

// Job kinds.
const (
	JobIngestClicks      = "ingest_clicks"
	JobIngestConversions = "ingest_conversions"
	JobRefresh           = "refresh"
	JobSyncMasters       = "sync_masters"
)

// Enqueuer starts background jobs one at a time.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind, message string, fn jobs.Func) (string, error)
}

// Jobs turns pipeline operations into background jobs.
type Jobs struct {
	pipeline *Pipeline
	runner   Enqueuer
}

// NewJobs creates a Jobs service.
func NewJobs(pipeline *Pipeline, runner Enqueuer) *Jobs {
	return &Jobs{pipeline: pipeline, runner: runner}
}

// JobAccepted is returned when a job was started.
type JobAccepted struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// IngestClicks starts click ingestion for date (YYYY-MM-DD).
func (j *Jobs) IngestClicks(ctx context.Context, date string) (*JobAccepted, error) {
	day, err := parseJobDate(date)
	if err != nil {
		return nil, err
	}
	msg := "Click ingestion started for " + model.FormatDate(day)
	return j.enqueue(ctx, JobIngestClicks, msg, func(ctx context.Context) (string, any, error) {
		res, err := j.pipeline.IngestClicks(ctx, day)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Ingested %d clicks for %s", res.Stored, res.Date), res, nil
	})
}

// IngestConversions starts conversion ingestion for date (YYYY-MM-DD).
func (j *Jobs) IngestConversions(ctx context.Context, date string) (*JobAccepted, error) {
	day, err := parseJobDate(date)
	if err != nil {
		return nil, err
	}
	msg := "Conversion ingestion started for " + model.FormatDate(day)
	return j.enqueue(ctx, JobIngestConversions, msg, func(ctx context.Context) (string, any, error) {
		res, err := j.pipeline.IngestConversions(ctx, day)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Ingested %d conversions for %s", res.Stored, res.Date), res, nil
	})
}

// Refresh starts a refresh of the last in.Hours.
func (j *Jobs) Refresh(ctx context.Context, in RefreshInput) (*JobAccepted, error) {
	if in.Hours == 0 {
		in.Hours = DefaultRefreshHours
	}
	if in.Hours < 1 || in.Hours > MaxRefreshHours {
		return nil, fmt.Errorf("%w: hours must be between 1 and %d", ErrInvalidInput, MaxRefreshHours)
	}
	if !in.Clicks && !in.Conversions {
		return nil, fmt.Errorf("%w: nothing to refresh", ErrInvalidInput)
	}
	msg := fmt.Sprintf("Refresh started for the last %d hours", in.Hours)
	return j.enqueue(ctx, JobRefresh, msg, func(ctx context.Context) (string, any, error) {
		res, err := j.pipeline.Refresh(ctx, in)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Refreshed %d new clicks and %d new conversions", res.ClicksNew, res.ConversionsNew), res, nil
	})
}

// SyncMasters starts a master data sync.
func (j *Jobs) SyncMasters(ctx context.Context) (*JobAccepted, error) {
	return j.enqueue(ctx, JobSyncMasters, "Master sync started", func(ctx context.Context) (string, any, error) {
		res, err := j.pipeline.SyncMasters(ctx)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Synced %d media, %d promotions, %d users", res.Media, res.Promotions, res.Affiliates), res, nil
	})
}

func (j *Jobs) enqueue(ctx context.Context, kind, message string, fn func(ctx context.Context) (string, any, error)) (*JobAccepted, error) {
	id, err := j.runner.Enqueue(ctx, kind, message, fn)
	if err != nil {
		return nil, err
	}
	return &JobAccepted{JobID: id, Message: message}, nil
}

func parseJobDate(date string) (time.Time, error) {
	day, err := model.ParseDate(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	return day, nil
}
