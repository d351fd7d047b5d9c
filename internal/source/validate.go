package source

import (
	"fmt"
	"unicode/utf8"

	"github.com/jassnet/Fraudhunter/internal/model"
)

const (
	maxIDLength        = 255
	maxUserAgentLength = 2048
	maxIPLength        = 64
)

// ValidateClick rejects click records that cannot be keyed. Oversized IP
// and UA values are cut to their column limits; the names of the cut
// fields are returned.
func ValidateClick(e *model.ClickEvent) ([]string, error) {
	if e.ClickTime.IsZero() {
		return nil, fmt.Errorf("click_time is required")
	}
	if len(e.ID) > maxIDLength {
		return nil, fmt.Errorf("id too long")
	}

	var cut []string
	if truncate(&e.IPAddress, maxIPLength) {
		cut = append(cut, "ipaddress")
	}
	if truncate(&e.UserAgent, maxUserAgentLength) {
		cut = append(cut, "useragent")
	}
	return cut, nil
}

// ValidateConversion rejects conversion records without a dedup key and
// cuts oversized entry IP and UA values like ValidateClick.
func ValidateConversion(e *model.ConversionEvent) ([]string, error) {
	if e.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	if len(e.ID) > maxIDLength || len(e.CID) > maxIDLength {
		return nil, fmt.Errorf("id too long")
	}
	if e.ConversionTime.IsZero() {
		return nil, fmt.Errorf("conversion_time is required")
	}

	var cut []string
	if truncate(&e.EntryIPAddress, maxIPLength) {
		cut = append(cut, "entry_ipaddress")
	}
	if truncate(&e.EntryUserAgent, maxUserAgentLength) {
		cut = append(cut, "entry_useragent")
	}
	return cut, nil
}

// truncate cuts *s to at most max bytes without splitting a rune.
func truncate(s *string, max int) bool {
	if len(*s) <= max {
		return false
	}
	n := max
	for n > 0 && !utf8.RuneStart((*s)[n]) {
		n--
	}
	*s = (*s)[:n]
	return true
}
