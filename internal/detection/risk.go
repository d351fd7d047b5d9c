package detection

import "github.com/jassnet/Fraudhunter/internal/model"

// RiskLevel buckets a risk score.
type RiskLevel string

// Risk levels.
const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

// Risk is the dashboard rating of a finding.
type Risk struct {
	Level RiskLevel `json:"level"`
	Score int       `json:"score"`
	Label string    `json:"label"`
}

// Score rates a finding from its reasons and its event count. Conversion
// counts use lower tiers since conversions are rarer than clicks.
func Score(reasons []model.Reason, count int64, isConversion bool) Risk {
	score := 20 * len(reasons)

	var burst, tooFast, diversity bool
	for _, r := range reasons {
		switch {
		case r.Kind == model.ReasonBurst:
			burst = true
		case r.Kind == model.ReasonGapTooFast:
			tooFast = true
		case r.IsDiversity():
			diversity = true
		}
	}
	if burst {
		score += 30
	}
	if tooFast {
		score += 25
	}
	if diversity {
		score += 15
	}

	if isConversion {
		switch {
		case count >= 10:
			score += 40
		case count >= 5:
			score += 20
		}
	} else {
		switch {
		case count >= 200:
			score += 40
		case count >= 100:
			score += 25
		case count >= 50:
			score += 10
		}
	}

	switch {
	case score >= 80:
		return Risk{Level: RiskHigh, Score: score, Label: "High risk"}
	case score >= 40:
		return Risk{Level: RiskMedium, Score: score, Label: "Medium risk"}
	default:
		return Risk{Level: RiskLow, Score: score, Label: "Low risk"}
	}
}
