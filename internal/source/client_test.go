package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jassnet/Fraudhunter/internal/metrics"
)

var jst = time.FixedZone("JST", 9*3600)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *metrics.InMemoryRecorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rec := metrics.NewInMemory()
	c, err := New(Config{
		BaseURL:   srv.URL + "/api/",
		AccessKey: "access",
		SecretKey: "secret",
		Location:  jst,
	}, testLogger(), WithMetrics(rec))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, rec
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{BaseURL: "ftp://x", AccessKey: "a", SecretKey: "b"}, testLogger()); err == nil {
		t.Error("expected error for non-http base url")
	}
	if _, err := New(Config{BaseURL: "https://acs.example.com", AccessKey: "a"}, testLogger()); err == nil {
		t.Error("expected error for missing secret key")
	}
}

func TestFetchClicks_RequestShape(t *testing.T) {
	var gotPath, gotToken string
	var gotQuery map[string][]string

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Auth-Token")
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"records": []}`))
	})

	date := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	page, err := c.FetchClicks(context.Background(), date, 3, 100)
	if err != nil {
		t.Fatalf("FetchClicks() error = %v", err)
	}
	if page.Received != 0 || len(page.Items) != 0 {
		t.Errorf("expected empty page, got %+v", page)
	}

	if gotPath != "/api/track_log/search" {
		t.Errorf("path = %s", gotPath)
	}
	if gotToken != "access:secret" {
		t.Errorf("token = %s", gotToken)
	}

	want := map[string]string{
		"limit":           "100",
		"offset":          "200",
		"regist_unix":     "between_date",
		"regist_unix_A_Y": "2024",
		"regist_unix_A_M": "1",
		"regist_unix_A_D": "5",
		"regist_unix_B_Y": "2024",
		"regist_unix_B_M": "1",
		"regist_unix_B_D": "5",
	}
	for k, v := range want {
		if got := gotQuery[k]; len(got) != 1 || got[0] != v {
			t.Errorf("param %s = %v, want %s", k, got, v)
		}
	}
}

func TestFetchClicks_MapsAlternateFieldNames(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"records": [
			{"track_cid": "cid-1", "click_time": "2024-01-05 10:00:00", "media_id": "m1", "program_id": "p1",
			 "ipaddress": "1.1.1.1", "useragent": "UA-1", "referrer": "https://ref"},
			{"id": 42, "regist_unix": 1704416400, "mediaId": "m2", "programId": "p2",
			 "ip": "2.2.2.2", "ua": "UA-2", "referer": "https://ref2"},
			{"id": "x", "mediaId": "m3"}
		]}`))
	})

	date := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	page, err := c.FetchClicks(context.Background(), date, 1, 500)
	if err != nil {
		t.Fatalf("FetchClicks() error = %v", err)
	}

	if page.Received != 3 {
		t.Errorf("Received = %d, want 3", page.Received)
	}
	if len(page.Items) != 2 {
		t.Fatalf("Items = %d, want 2 (record without time dropped)", len(page.Items))
	}

	first := page.Items[0]
	if first.ID != "cid-1" || first.MediaID != "m1" || first.IPAddress != "1.1.1.1" || first.Referrer != "https://ref" {
		t.Errorf("first click mapped wrong: %+v", first)
	}
	if !first.ClickTime.Equal(time.Date(2024, 1, 5, 10, 0, 0, 0, jst)) {
		t.Errorf("naive time should be read in JST, got %s", first.ClickTime)
	}
	if !strings.Contains(string(first.RawPayload), `"track_cid"`) {
		t.Errorf("raw payload not kept: %s", first.RawPayload)
	}

	second := page.Items[1]
	if second.ID != "42" || second.MediaID != "m2" || second.UserAgent != "UA-2" || second.Referrer != "https://ref2" {
		t.Errorf("second click mapped wrong: %+v", second)
	}
	// 1704416400 = 2024-01-05T01:00:00Z = 10:00 JST
	if second.ClickTime.Hour() != 10 {
		t.Errorf("epoch click time = %s, want 10:00 JST", second.ClickTime)
	}

	if rec.Snapshot().SourceDropped["click"] != 1 {
		t.Errorf("expected one dropped click, got %v", rec.Snapshot().SourceDropped)
	}
}

func TestFetchClicksInRange_FiltersByTime(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"records": [
			{"id": "a", "click_time": "2024-01-05T09:00:00+09:00"},
			{"id": "b", "click_time": "2024-01-05T11:00:00+09:00"},
			{"id": "c", "click_time": "2024-01-05T13:00:00+09:00"}
		]}`))
	})

	start := time.Date(2024, 1, 5, 10, 0, 0, 0, jst)
	end := time.Date(2024, 1, 5, 12, 0, 0, 0, jst)
	page, err := c.FetchClicksInRange(context.Background(), start, end, 1, 500)
	if err != nil {
		t.Fatalf("FetchClicksInRange() error = %v", err)
	}
	if page.Received != 3 {
		t.Errorf("Received = %d, want 3", page.Received)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "b" {
		t.Errorf("expected only click b, got %+v", page.Items)
	}
}

func TestFetchClicks_TruncatesOversizedUserAgent(t *testing.T) {
	longUA := strings.Repeat("Bot", 1000)
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"records": [{"id": "a", "click_time": "2024-01-05 10:00:00", "ipaddress": "1.1.1.1", "useragent": %q}]}`, longUA)
	})

	page, err := c.FetchClicks(context.Background(), time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), 1, 500)
	if err != nil {
		t.Fatalf("FetchClicks() error = %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("Items = %d, want the click kept", len(page.Items))
	}
	if got := page.Items[0].UserAgent; got != longUA[:maxUserAgentLength] {
		t.Errorf("UserAgent length = %d, want %d", len(got), maxUserAgentLength)
	}

	snap := rec.Snapshot()
	if snap.SourceTruncated["click|useragent"] != 1 {
		t.Errorf("truncated = %v", snap.SourceTruncated)
	}
	if snap.SourceDropped["click"] != 0 {
		t.Errorf("dropped = %v", snap.SourceDropped)
	}
}

func TestFetchConversions_MapsFields(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/action_log_raw/search") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"records": [
			{"id": "conv-1", "check_log_raw": "cid-1", "regist_unix": "2024-01-05 10:00:30",
			 "click_unix": "2024-01-05 10:00:00", "media": "m1", "promotion": "p1", "user": "u1",
			 "ipaddress": "10.0.0.1", "useragent": "postback/1.0",
			 "entry_ipaddress": "3.3.3.3", "entry_useragent": "UA-entry", "state": "1"},
			{"regist_unix": "2024-01-05 10:00:30"}
		]}`))
	})

	page, err := c.FetchConversions(context.Background(), time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), 1, 500)
	if err != nil {
		t.Fatalf("FetchConversions() error = %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("Items = %d, want 1 (record without id dropped)", len(page.Items))
	}

	conv := page.Items[0]
	if conv.ID != "conv-1" || conv.CID != "cid-1" || conv.MediaID != "m1" || conv.ProgramID != "p1" || conv.UserID != "u1" {
		t.Errorf("ids mapped wrong: %+v", conv)
	}
	if conv.PostbackIPAddress != "10.0.0.1" || conv.EntryIPAddress != "3.3.3.3" || conv.EntryUserAgent != "UA-entry" {
		t.Errorf("ip/ua mapped wrong: %+v", conv)
	}
	if conv.ClickTime == nil || conv.ConversionTime.Sub(*conv.ClickTime) != 30*time.Second {
		t.Errorf("click time mapped wrong: %+v", conv.ClickTime)
	}
	if !conv.HasEntrySignal() {
		t.Error("expected entry signal")
	}
}

func TestFetch_StatusError(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad token"}`))
	})

	_, err := c.FetchClicks(context.Background(), time.Now(), 1, 10)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d", statusErr.StatusCode)
	}
	if rec.Snapshot().SourceRequests["track_log/search|error"] != 1 {
		t.Errorf("expected error request metric, got %v", rec.Snapshot().SourceRequests)
	}
}

func TestFetch_DecodeError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	})

	_, err := c.FetchConversions(context.Background(), time.Now(), 1, 10)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestFetch_CircuitOpens(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	var lastErr error
	for i := 0; i < 12; i++ {
		_, lastErr = c.FetchClicks(context.Background(), time.Now(), 1, 10)
	}
	if !errors.Is(lastErr, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable after repeated failures, got %v", lastErr)
	}
	if got := atomic.LoadInt32(&calls); got != 10 {
		t.Errorf("server calls = %d, want 10 before the breaker opened", got)
	}
}

func TestFetchAllMedia_Pages(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/media/search") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		offset := r.URL.Query().Get("offset")
		var b strings.Builder
		b.WriteString(`{"records": [`)
		n := DefaultPageSize
		if offset != "0" {
			n = 2
		}
		for i := 0; i < n; i++ {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, `{"id": "m%s-%d", "name": "Media %d", "user": "u1", "state": "1"}`, offset, i, i)
		}
		b.WriteString("]}")
		_, _ = w.Write([]byte(b.String()))
	})

	media, err := c.FetchAllMedia(context.Background())
	if err != nil {
		t.Fatalf("FetchAllMedia() error = %v", err)
	}
	if len(media) != DefaultPageSize+2 {
		t.Errorf("media = %d, want %d", len(media), DefaultPageSize+2)
	}
	if media[0].UserID != "u1" || media[0].Name != "Media 0" {
		t.Errorf("media mapped wrong: %+v", media[0])
	}
}
