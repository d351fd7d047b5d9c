package middleware

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateDate(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"", nil},
		{"2024-01-05", nil},
		{"2024-02-30", ErrDateInvalid},
		{"05/01/2024", ErrDateInvalid},
		{"2024-1-5", ErrDateInvalid},
	}
	for _, tt := range tests {
		if err := ValidateDate(tt.in); !errors.Is(err, tt.want) {
			t.Errorf("ValidateDate(%q) = %v, want %v", tt.in, err, tt.want)
		}
	}
}

func TestNormalizeSearch(t *testing.T) {
	got, err := NormalizeSearch("  Chrome ")
	if err != nil || got != "Chrome" {
		t.Errorf("NormalizeSearch() = %q, %v", got, err)
	}
	if _, err := NormalizeSearch(strings.Repeat("a", MaxSearchLength+1)); !errors.Is(err, ErrSearchTooLong) {
		t.Errorf("long search error = %v", err)
	}
	if _, err := NormalizeSearch("abc\x00def"); !errors.Is(err, ErrSearchInvalid) {
		t.Errorf("control char error = %v", err)
	}
}

func TestParseInt(t *testing.T) {
	if n, err := ParseInt("", 30); err != nil || n != 30 {
		t.Errorf("ParseInt(\"\") = %d, %v", n, err)
	}
	if n, err := ParseInt(" 12 ", 30); err != nil || n != 12 {
		t.Errorf("ParseInt(\" 12 \") = %d, %v", n, err)
	}
	if _, err := ParseInt("ten", 30); !errors.Is(err, ErrIntegerInvalid) {
		t.Errorf("ParseInt(\"ten\") error = %v", err)
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in      string
		def     bool
		want    bool
		wantErr bool
	}{
		{"", true, true, false},
		{"true", false, true, false},
		{"1", false, true, false},
		{"Yes", false, true, false},
		{"off", true, false, false},
		{"FALSE", true, false, false},
		{"maybe", false, false, true},
	}
	for _, tt := range tests {
		got, err := ParseBool(tt.in, tt.def)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseBool(%q) = %v, %v", tt.in, got, err)
		}
	}
}
