// Package dto provides the request and response bodies of the HTTP API.
package dto

import (
	"time"

	"github.com/jassnet/Fraudhunter/internal/model"
	"github.com/jassnet/Fraudhunter/internal/service"
	"github.com/jassnet/Fraudhunter/internal/settings"
)

// ErrorResponse is the error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine code and a human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SummaryResponse wraps the dashboard summary.
type SummaryResponse struct {
	Date  string         `json:"date"`
	Stats *model.Summary `json:"stats"`
}

// DailyStatsResponse wraps the trend series.
type DailyStatsResponse struct {
	Data []model.DailyStat `json:"data"`
}

// DatesResponse lists dates with data.
type DatesResponse struct {
	Dates []string `json:"dates"`
}

// SuspiciousResponse is one page of findings.
type SuspiciousResponse struct {
	Date   string           `json:"date"`
	Data   []SuspiciousItem `json:"data"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// SuspiciousItem is a finding row. Exactly one of TotalClicks and
// TotalConversions is set.
type SuspiciousItem struct {
	Date                  string                   `json:"date"`
	IPAddress             string                   `json:"ipaddress"`
	UserAgent             string                   `json:"useragent"`
	TotalClicks           *int64                   `json:"total_clicks,omitempty"`
	TotalConversions      *int64                   `json:"total_conversions,omitempty"`
	MediaCount            int64                    `json:"media_count"`
	ProgramCount          int64                    `json:"program_count"`
	FirstTime             *time.Time               `json:"first_time,omitempty"`
	LastTime              *time.Time               `json:"last_time,omitempty"`
	MinClickToConvSeconds *float64                 `json:"min_click_to_conv_seconds,omitempty"`
	MaxClickToConvSeconds *float64                 `json:"max_click_to_conv_seconds,omitempty"`
	Reasons               []string                 `json:"reasons"`
	ReasonsFormatted      []string                 `json:"reasons_formatted"`
	RiskLevel             string                   `json:"risk_level"`
	RiskScore             int                      `json:"risk_score"`
	RiskLabel             string                   `json:"risk_label"`
	Details               []model.SuspiciousDetail `json:"details,omitempty"`
	MediaNames            []string                 `json:"media_names,omitempty"`
	ProgramNames          []string                 `json:"program_names,omitempty"`
	AffiliateNames        []string                 `json:"affiliate_names,omitempty"`
}

// ToSuspiciousResponse converts a service page.
func ToSuspiciousResponse(page *service.SuspiciousPage, unit model.EventUnit) *SuspiciousResponse {
	resp := &SuspiciousResponse{
		Date:   page.Date,
		Data:   make([]SuspiciousItem, len(page.Items)),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for i := range page.Items {
		resp.Data[i] = toSuspiciousItem(&page.Items[i], unit)
	}
	return resp
}

func toSuspiciousItem(it *service.SuspiciousItem, unit model.EventUnit) SuspiciousItem {
	out := SuspiciousItem{
		Date:                  model.FormatDate(it.Date),
		IPAddress:             it.IPAddress,
		UserAgent:             it.UserAgent,
		MediaCount:            it.MediaCount,
		ProgramCount:          it.ProgramCount,
		FirstTime:             optionalTime(it.FirstTime),
		LastTime:              optionalTime(it.LastTime),
		MinClickToConvSeconds: it.MinClickToConvSeconds,
		MaxClickToConvSeconds: it.MaxClickToConvSeconds,
		Reasons:               it.Reasons,
		ReasonsFormatted:      it.ReasonsFormatted,
		RiskLevel:             string(it.Risk.Level),
		RiskScore:             it.Risk.Score,
		RiskLabel:             it.Risk.Label,
		Details:               it.Details,
		MediaNames:            it.MediaNames,
		ProgramNames:          it.ProgramNames,
		AffiliateNames:        it.AffiliateNames,
	}
	total := it.Total
	if unit == model.UnitConversions {
		out.TotalConversions = &total
	} else {
		out.TotalClicks = &total
	}
	return out
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// IngestRequest selects the day to ingest.
type IngestRequest struct {
	Date string `json:"date"`
}

// RefreshRequest selects what a refresh pulls. Omitted flags default to
// true, except Detect.
type RefreshRequest struct {
	Hours       int   `json:"hours"`
	Clicks      *bool `json:"clicks,omitempty"`
	Conversions *bool `json:"conversions,omitempty"`
	Detect      bool  `json:"detect"`
}

// ToInput converts the request to a service input.
func (r RefreshRequest) ToInput() service.RefreshInput {
	return service.RefreshInput{
		Hours:       r.Hours,
		Clicks:      r.Clicks == nil || *r.Clicks,
		Conversions: r.Conversions == nil || *r.Conversions,
		Detect:      r.Detect,
	}
}

// JobAcceptedResponse reports a started background job.
type JobAcceptedResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// SettingsUpdateResponse reports a settings save.
type SettingsUpdateResponse struct {
	Success   bool              `json:"success"`
	Settings  settings.Settings `json:"settings"`
	Persisted bool              `json:"persisted"`
	Warning   string            `json:"warning,omitempty"`
}

// HealthResponse is the probe body.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthIssue is one configuration or data problem found by the
// dashboard health check.
type HealthIssue struct {
	Type    string `json:"type"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// DiagnosticsResponse is the dashboard health body.
type DiagnosticsResponse struct {
	Status string            `json:"status"`
	Issues []HealthIssue     `json:"issues"`
	Config map[string]string `json:"config"`
}
