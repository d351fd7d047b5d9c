package source

import (
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jassnet/Fraudhunter/internal/model"
)

func TestValidateClick(t *testing.T) {
	at := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		event   model.ClickEvent
		wantCut []string
		wantErr bool
	}{
		{"ok", model.ClickEvent{ID: "a", ClickTime: at, IPAddress: "1.1.1.1", UserAgent: "UA"}, nil, false},
		{"missing time", model.ClickEvent{ID: "a"}, nil, true},
		{"long id", model.ClickEvent{ID: strings.Repeat("x", 256), ClickTime: at}, nil, true},
		{"long ua", model.ClickEvent{ID: "a", ClickTime: at, UserAgent: strings.Repeat("u", 5000)}, []string{"useragent"}, false},
		{"long ip and ua", model.ClickEvent{ID: "a", ClickTime: at, IPAddress: strings.Repeat("1", 80), UserAgent: strings.Repeat("u", 2049)}, []string{"ipaddress", "useragent"}, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			e := tt.event
			cut, err := ValidateClick(&e)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateClick() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(cut, tt.wantCut) {
				t.Errorf("cut = %v, want %v", cut, tt.wantCut)
			}
			if len(e.UserAgent) > maxUserAgentLength || len(e.IPAddress) > maxIPLength {
				t.Errorf("fields not truncated: ua=%d ip=%d", len(e.UserAgent), len(e.IPAddress))
			}
		})
	}
}

func TestValidateConversion_TruncatesEntryFields(t *testing.T) {
	e := model.ConversionEvent{
		ID:             "c1",
		ConversionTime: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC),
		EntryUserAgent: strings.Repeat("u", 3000),
	}
	cut, err := ValidateConversion(&e)
	if err != nil {
		t.Fatalf("ValidateConversion() error = %v", err)
	}
	if !reflect.DeepEqual(cut, []string{"entry_useragent"}) {
		t.Errorf("cut = %v", cut)
	}
	if len(e.EntryUserAgent) != maxUserAgentLength {
		t.Errorf("entry UA length = %d, want %d", len(e.EntryUserAgent), maxUserAgentLength)
	}
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("a", 2047) + "日本"
	if !truncate(&s, maxUserAgentLength) {
		t.Fatal("expected truncation")
	}
	if len(s) != 2047 || !utf8.ValidString(s) {
		t.Errorf("len = %d valid = %v", len(s), utf8.ValidString(s))
	}
}
