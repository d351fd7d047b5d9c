package detection

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jassnet/Fraudhunter/internal/metrics"
	"github.com/jassnet/Fraudhunter/internal/model"
)

// ConversionRollupStore reads grouped conversion rollups and
// click-to-conversion latencies.
type ConversionRollupStore interface {
	FetchSuspiciousConversionRollups(ctx context.Context, date time.Time, q model.RollupQuery) ([]model.IPUARollup, error)
	FetchConversionRollups(ctx context.Context, date time.Time) ([]model.IPUARollup, error)
	FetchClickToConversionGaps(ctx context.Context, date time.Time) (map[model.IPUA]model.GapStats, error)
}

// ConversionDetector flags IP/UA pairs by conversion volume, spread,
// bursts and click-to-conversion latency.
type ConversionDetector struct {
	store   ConversionRollupStore
	rules   ConversionRuleSet
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewConversionDetector validates rules and creates a ConversionDetector.
func NewConversionDetector(store ConversionRollupStore, rules ConversionRuleSet, logger *slog.Logger, recorder metrics.Recorder) (*ConversionDetector, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ConversionDetector{
		store:   store,
		rules:   rules,
		logger:  logger.With("component", "detection.conversions"),
		metrics: recorder,
	}, nil
}

// Rules returns the detector's rule set.
func (d *ConversionDetector) Rules() ConversionRuleSet {
	return d.rules
}

// FindForDate returns the conversion findings for date.
//
// With a gap rule set, every pair that has a known click-to-conversion
// latency is evaluated, including pairs the store pre-filter left out.
// Those extra pairs go through the same traffic filter in memory.
func (d *ConversionDetector) FindForDate(ctx context.Context, date time.Time) ([]model.ConversionFinding, error) {
	candidates, err := d.store.FetchSuspiciousConversionRollups(ctx, date, d.rules.Query())
	if err != nil {
		return nil, fmt.Errorf("fetch suspicious conversion rollups: %w", err)
	}

	var gaps map[model.IPUA]model.GapStats
	widened := 0
	if d.rules.GapRulesEnabled() {
		gaps, err = d.store.FetchClickToConversionGaps(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("fetch click to conversion gaps: %w", err)
		}
		candidates, widened, err = d.widen(ctx, date, candidates, gaps)
		if err != nil {
			return nil, err
		}
	}

	findings := make([]model.ConversionFinding, 0, len(candidates))
	for i := range candidates {
		var gap *model.GapStats
		if g, ok := gaps[candidates[i].Key()]; ok {
			gap = &g
		}
		reasons := d.rules.Reasons(&candidates[i], gap)
		if len(reasons) == 0 {
			continue
		}
		f := model.ConversionFinding{Finding: model.Finding{IPUARollup: candidates[i], Reasons: reasons}}
		if gap != nil && gap.Count > 0 {
			minGap, maxGap := gap.MinSeconds, gap.MaxSeconds
			f.MinClickToConvSeconds = &minGap
			f.MaxClickToConvSeconds = &maxGap
		}
		findings = append(findings, f)
	}

	d.metrics.AddFindings("conversion", len(findings))
	d.logger.Debug("conversion detection done",
		"date", model.FormatDate(date),
		"candidates", len(candidates),
		"widened", widened,
		"findings", len(findings),
	)
	return findings, nil
}

// widen adds the pairs found in gaps that are not already candidates. Their
// rollup comes from the unfiltered view, or is built from the gap data when
// the pair has no rollup row for the date.
func (d *ConversionDetector) widen(ctx context.Context, date time.Time, candidates []model.IPUARollup, gaps map[model.IPUA]model.GapStats) ([]model.IPUARollup, int, error) {
	if len(gaps) == 0 {
		return candidates, 0, nil
	}

	seen := make(map[model.IPUA]struct{}, len(candidates))
	for i := range candidates {
		seen[candidates[i].Key()] = struct{}{}
	}

	missing := make([]model.IPUA, 0, len(gaps))
	for key := range gaps {
		if _, ok := seen[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return candidates, 0, nil
	}

	all, err := d.store.FetchConversionRollups(ctx, date)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch conversion rollups: %w", err)
	}
	byKey := make(map[model.IPUA]model.IPUARollup, len(all))
	for _, r := range all {
		r := r
		byKey[r.Key()] = r
	}

	filter := d.rules.Filter()
	extra := make([]model.IPUARollup, 0, len(missing))
	for _, key := range missing {
		if !filter.Allow(key.IPAddress, key.UserAgent) {
			continue
		}
		r, ok := byKey[key]
		if !ok {
			r = model.IPUARollup{
				Date:      date,
				IPAddress: key.IPAddress,
				UserAgent: key.UserAgent,
				Total:     gaps[key].Count,
			}
		}
		extra = append(extra, r)
	}

	// Keep the store's ordering for the extras too.
	slices.SortFunc(extra, compareRollups)
	return append(candidates, extra...), len(extra), nil
}

func compareRollups(a, b model.IPUARollup) int {
	if c := cmp.Compare(b.Total, a.Total); c != 0 {
		return c
	}
	if c := cmp.Compare(a.IPAddress, b.IPAddress); c != 0 {
		return c
	}
	return cmp.Compare(a.UserAgent, b.UserAgent)
}
