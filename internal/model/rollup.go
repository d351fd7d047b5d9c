package model

import (
	"math"
	"time"
)

// ClickAggregate is one daily click rollup row keyed by
// (date, media, program, ip, ua).
type ClickAggregate struct {
	Date       time.Time `json:"date"`
	MediaID    string    `json:"media_id"`
	ProgramID  string    `json:"program_id"`
	IPAddress  string    `json:"ipaddress"`
	UserAgent  string    `json:"useragent"`
	ClickCount int64     `json:"click_count"`
	FirstTime  time.Time `json:"first_time"`
	LastTime   time.Time `json:"last_time"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ConversionAggregate is one daily conversion rollup row, keyed on the
// conversion's entry IP/UA.
type ConversionAggregate struct {
	Date            time.Time `json:"date"`
	MediaID         string    `json:"media_id"`
	ProgramID       string    `json:"program_id"`
	IPAddress       string    `json:"ipaddress"`
	UserAgent       string    `json:"useragent"`
	ConversionCount int64     `json:"conversion_count"`
	FirstTime       time.Time `json:"first_time"`
	LastTime        time.Time `json:"last_time"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IPUA identifies traffic by IP address and user agent.
type IPUA struct {
	IPAddress string `json:"ipaddress"`
	UserAgent string `json:"useragent"`
}

// String formats the pair as "<ip> | <ua>".
func (k IPUA) String() string {
	return k.IPAddress + " | " + k.UserAgent
}

// IPUARollup is the per-(date, ip, ua) grouping of rollup rows that the
// detectors evaluate.
type IPUARollup struct {
	Date         time.Time `json:"date"`
	IPAddress    string    `json:"ipaddress"`
	UserAgent    string    `json:"useragent"`
	Total        int64     `json:"total"`
	MediaCount   int64     `json:"media_count"`
	ProgramCount int64     `json:"program_count"`
	FirstTime    time.Time `json:"first_time"`
	LastTime     time.Time `json:"last_time"`
}

// Key returns the rollup's IP/UA pair.
func (r *IPUARollup) Key() IPUA {
	return IPUA{IPAddress: r.IPAddress, UserAgent: r.UserAgent}
}

// Span returns last_time - first_time.
func (r *IPUARollup) Span() time.Duration {
	return r.LastTime.Sub(r.FirstTime)
}

// GapStats folds click-to-conversion latencies for one IP/UA pair.
type GapStats struct {
	MinSeconds float64 `json:"min_seconds"`
	MaxSeconds float64 `json:"max_seconds"`
	Count      int64   `json:"count"`
}

// Observe adds one latency sample.
func (g *GapStats) Observe(seconds float64) {
	if g.Count == 0 {
		g.MinSeconds = seconds
		g.MaxSeconds = seconds
	} else {
		g.MinSeconds = math.Min(g.MinSeconds, seconds)
		g.MaxSeconds = math.Max(g.MaxSeconds, seconds)
	}
	g.Count++
}

// FoldGap records conversion-click latency for key in gaps.
func FoldGap(gaps map[IPUA]GapStats, key IPUA, clickTime, conversionTime time.Time) {
	stats := gaps[key]
	stats.Observe(conversionTime.Sub(clickTime).Seconds())
	gaps[key] = stats
}

// RollupQuery selects grouped IP/UA rollups for a date. A group matches
// when any threshold is met; zero thresholds never match on their own.
type RollupQuery struct {
	MinTotal            int64
	MinMedia            int64
	MinProgram          int64
	MinBurst            int64
	BrowserOnly         bool
	ExcludeDatacenterIP bool
}

// ClickRef is the stored click a conversion's correlation id points to.
type ClickRef struct {
	IPAddress string    `json:"ipaddress"`
	UserAgent string    `json:"useragent"`
	ClickTime time.Time `json:"click_time"`
}
