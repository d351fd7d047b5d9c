package source

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e10

// zonedLayouts carry an explicit offset; naiveLayouts are read in the
// configured location.
var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999Z07:00",
	}
	naiveLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02",
	}
)

// ParseTime converts a source timestamp into loc. It accepts epoch seconds
// or milliseconds (as number or numeric string), ISO-8601 with or without
// an offset, and "YYYY-MM-DD HH:MM:SS[.ffffff]".
func ParseTime(value any, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	switch v := value.(type) {
	case nil:
		return time.Time{}, ErrNoTime
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrNoTime, v.String())
		}
		return fromEpoch(f, loc), nil
	case float64:
		return fromEpoch(v, loc), nil
	case int64:
		return fromEpoch(float64(v), loc), nil
	case int:
		return fromEpoch(float64(v), loc), nil
	case string:
		return parseTimeString(v, loc)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrNoTime, value)
	}
}

func parseTimeString(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrNoTime
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f, loc), nil
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrNoTime, raw)
}

func fromEpoch(value float64, loc *time.Location) time.Time {
	if value > epochMillisThreshold {
		value /= 1000
	}
	sec, frac := math.Modf(value)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*1e3).In(loc)
}
