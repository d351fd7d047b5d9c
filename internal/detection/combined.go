package detection

import (
	"context"
	"slices"
	"time"

	"github.com/jassnet/Fraudhunter/internal/metrics"
	"github.com/jassnet/Fraudhunter/internal/model"
)

// CombinedDetector runs both detectors and reports the pairs flagged by
// both as high risk.
type CombinedDetector struct {
	clicks      *ClickDetector
	conversions *ConversionDetector
	metrics     metrics.Recorder
}

// NewCombinedDetector creates a CombinedDetector from two detectors.
func NewCombinedDetector(clicks *ClickDetector, conversions *ConversionDetector, recorder metrics.Recorder) *CombinedDetector {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &CombinedDetector{clicks: clicks, conversions: conversions, metrics: recorder}
}

// FindForDate runs both detectors for date and intersects their pairs.
func (d *CombinedDetector) FindForDate(ctx context.Context, date time.Time) (*model.CombinedResult, error) {
	clickFindings, err := d.clicks.FindForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	conversionFindings, err := d.conversions.FindForDate(ctx, date)
	if err != nil {
		return nil, err
	}

	highRisk := HighRisk(clickFindings, conversionFindings)
	d.metrics.AddFindings("high_risk", len(highRisk))

	return &model.CombinedResult{
		ClickFindings:      clickFindings,
		ConversionFindings: conversionFindings,
		HighRisk:           highRisk,
	}, nil
}

// HighRisk returns the sorted "<ip> | <ua>" entries present in both
// finding lists.
func HighRisk(clicks []model.Finding, conversions []model.ConversionFinding) []string {
	clicked := make(map[model.IPUA]struct{}, len(clicks))
	for i := range clicks {
		clicked[clicks[i].Key()] = struct{}{}
	}

	out := []string{}
	added := make(map[model.IPUA]struct{})
	for i := range conversions {
		key := conversions[i].Key()
		if _, ok := clicked[key]; !ok {
			continue
		}
		if _, dup := added[key]; dup {
			continue
		}
		added[key] = struct{}{}
		out = append(out, key.String())
	}
	slices.Sort(out)
	return out
}
