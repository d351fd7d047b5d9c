// Package model defines domain entities for the application.
package model

import (
	"encoding/json"
	"time"
)

// DateLayout is the calendar date format used in storage keys and the API.
const DateLayout = "2006-01-02"

// ClickEvent is a single tracked click as reported by the log source.
// Events are immutable once fetched.
type ClickEvent struct {
	// ID is the correlation id (track_cid). Empty when the source omitted it.
	ID string `json:"id,omitempty"`

	ClickTime time.Time `json:"click_time"`
	MediaID   string    `json:"media_id"`
	ProgramID string    `json:"program_id"`
	IPAddress string    `json:"ipaddress"`
	UserAgent string    `json:"useragent"`
	Referrer  string    `json:"referrer,omitempty"`

	// RawPayload is the source record, stored verbatim for audit.
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
}

// Date returns the calendar date the click belongs to.
func (e *ClickEvent) Date() time.Time {
	return DateOf(e.ClickTime)
}

// ConversionEvent is a single conversion (action) record.
type ConversionEvent struct {
	ID  string `json:"id"`            // conversion id, primary dedup key
	CID string `json:"cid,omitempty"` // correlation id of the originating click

	ConversionTime time.Time  `json:"conversion_time"`
	ClickTime      *time.Time `json:"click_time,omitempty"`

	MediaID   string `json:"media_id"`
	ProgramID string `json:"program_id"`
	UserID    string `json:"user_id,omitempty"`

	// Postback IP/UA belong to the server relaying the conversion.
	PostbackIPAddress string `json:"postback_ipaddress,omitempty"`
	PostbackUserAgent string `json:"postback_useragent,omitempty"`

	// Entry IP/UA are the end user's, reported in the conversion payload.
	EntryIPAddress string `json:"entry_ipaddress,omitempty"`
	EntryUserAgent string `json:"entry_useragent,omitempty"`

	// Click IP/UA are filled in from the raw click table by correlation id.
	ClickIPAddress string `json:"click_ipaddress,omitempty"`
	ClickUserAgent string `json:"click_useragent,omitempty"`

	State      string          `json:"state,omitempty"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
}

// HasEntrySignal reports whether the conversion carries both entry IP and UA.
// Only such conversions contribute to conversion rollups.
func (e *ConversionEvent) HasEntrySignal() bool {
	return e.EntryIPAddress != "" && e.EntryUserAgent != ""
}

// Date returns the calendar date of the conversion.
func (e *ConversionEvent) Date() time.Time {
	return DateOf(e.ConversionTime)
}

// DateOf truncates t to its calendar date (in t's own location) and
// returns it as midnight UTC so dates compare with ==.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
