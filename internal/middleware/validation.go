package middleware

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/jassnet/Fraudhunter/internal/model"
)

// MaxSearchLength bounds the suspicious-list search term.
const MaxSearchLength = 200

// Validation errors.
var (
	ErrDateInvalid    = errors.New("date must be YYYY-MM-DD")
	ErrSearchTooLong  = errors.New("search exceeds maximum length")
	ErrSearchInvalid  = errors.New("search contains control characters")
	ErrIntegerInvalid = errors.New("value must be an integer")
	ErrBooleanInvalid = errors.New("value must be true or false")
)

// ValidateDate accepts "" (meaning latest) or a calendar date.
func ValidateDate(s string) error {
	if s == "" {
		return nil
	}
	if _, err := model.ParseDate(s); err != nil {
		return ErrDateInvalid
	}
	return nil
}

// NormalizeSearch trims the search term and rejects overlong or control
// character input.
func NormalizeSearch(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) > MaxSearchLength {
		return "", ErrSearchTooLong
	}
	if strings.ContainsFunc(s, unicode.IsControl) {
		return "", ErrSearchInvalid
	}
	return s, nil
}

// ParseInt returns def for "" and ErrIntegerInvalid for non-integers.
// Range checks belong to the service layer.
func ParseInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, ErrIntegerInvalid
	}
	return n, nil
}

// ParseBool accepts the strconv spellings plus yes/no and on/off.
func ParseBool(s string, def bool) (bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return def, nil
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, ErrBooleanInvalid
	}
	return b, nil
}
