package model

// ClickSummary aggregates one day of click rollups.
type ClickSummary struct {
	Total      int64 `json:"total"`
	UniqueIPs  int64 `json:"unique_ips"`
	MediaCount int64 `json:"media_count"`
	PrevTotal  int64 `json:"prev_total"`
}

// ConversionSummary aggregates one day of conversion rollups.
type ConversionSummary struct {
	Total     int64 `json:"total"`
	UniqueIPs int64 `json:"unique_ips"`
	PrevTotal int64 `json:"prev_total"`
}

// SuspiciousSummary counts IP/UA pairs over the dashboard thresholds.
type SuspiciousSummary struct {
	ClickBased      int64 `json:"click_based"`
	ConversionBased int64 `json:"conversion_based"`
}

// Summary is the dashboard overview for one date.
type Summary struct {
	Date        string            `json:"date"`
	Clicks      ClickSummary      `json:"clicks"`
	Conversions ConversionSummary `json:"conversions"`
	Suspicious  SuspiciousSummary `json:"suspicious"`
}

// DailyStat is one point of the daily trend series.
type DailyStat struct {
	Date                  string `json:"date"`
	Clicks                int64  `json:"clicks"`
	Conversions           int64  `json:"conversions"`
	SuspiciousClicks      int64  `json:"suspicious_clicks"`
	SuspiciousConversions int64  `json:"suspicious_conversions"`
}
