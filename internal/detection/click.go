package detection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jassnet/Fraudhunter/internal/metrics"
	"github.com/jassnet/Fraudhunter/internal/model"
)

// ClickRollupStore reads grouped click rollups.
type ClickRollupStore interface {
	FetchSuspiciousClickRollups(ctx context.Context, date time.Time, q model.RollupQuery) ([]model.IPUARollup, error)
}

// ClickDetector flags IP/UA pairs by click volume, spread and bursts.
type ClickDetector struct {
	store   ClickRollupStore
	rules   RuleSet
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewClickDetector validates rules and creates a ClickDetector.
func NewClickDetector(store ClickRollupStore, rules RuleSet, logger *slog.Logger, recorder metrics.Recorder) (*ClickDetector, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ClickDetector{
		store:   store,
		rules:   rules,
		logger:  logger.With("component", "detection.clicks"),
		metrics: recorder,
	}, nil
}

// Rules returns the detector's rule set.
func (d *ClickDetector) Rules() RuleSet {
	return d.rules
}

// FindForDate returns the findings for date, ordered as the store groups
// them (total descending).
func (d *ClickDetector) FindForDate(ctx context.Context, date time.Time) ([]model.Finding, error) {
	rollups, err := d.store.FetchSuspiciousClickRollups(ctx, date, d.rules.Query())
	if err != nil {
		return nil, fmt.Errorf("fetch suspicious click rollups: %w", err)
	}

	findings := make([]model.Finding, 0, len(rollups))
	for i := range rollups {
		reasons := d.rules.Reasons(&rollups[i])
		if len(reasons) == 0 {
			continue
		}
		findings = append(findings, model.Finding{IPUARollup: rollups[i], Reasons: reasons})
	}

	d.metrics.AddFindings("click", len(findings))
	d.logger.Debug("click detection done",
		"date", model.FormatDate(date),
		"candidates", len(rollups),
		"findings", len(findings),
	)
	return findings, nil
}
