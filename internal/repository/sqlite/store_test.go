package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jassnet/Fraudhunter/internal/model"
	"github.com/jassnet/Fraudhunter/internal/testutil"
)

var testDate = time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

func newTestStore(t testing.TB) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIngestClicks_ReplacesDate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := testutil.NewFactory(1)

	events := []model.ClickEvent{
		f.ClickFrom(testDate.Add(10*time.Hour), "1.1.1.1", "UA", "m1", "p1"),
		f.ClickFrom(testDate.Add(9*time.Hour), "1.1.1.1", "UA", "m1", "p1"),
		f.ClickFrom(testDate.Add(30*time.Hour), "1.1.1.1", "UA", "m1", "p1"),
	}

	for run := 0; run < 3; run++ {
		n, err := s.IngestClicks(ctx, events, testDate, true)
		if err != nil {
			t.Fatalf("IngestClicks() run %d error = %v", run, err)
		}
		if n != 2 {
			t.Errorf("run %d aggregated %d, want 2", run, n)
		}
	}

	aggs, err := s.FetchClickAggregates(ctx, testDate)
	if err != nil {
		t.Fatalf("FetchClickAggregates() error = %v", err)
	}
	if len(aggs) != 1 {
		t.Fatalf("aggregates = %d rows, want 1", len(aggs))
	}
	a := aggs[0]
	if a.ClickCount != 2 {
		t.Errorf("click_count = %d, want 2", a.ClickCount)
	}
	if !a.FirstTime.Equal(testDate.Add(9*time.Hour)) || !a.LastTime.Equal(testDate.Add(10*time.Hour)) {
		t.Errorf("first/last = %s/%s", a.FirstTime, a.LastTime)
	}

	next, err := s.FetchClickAggregates(ctx, testDate.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("FetchClickAggregates() error = %v", err)
	}
	if len(next) != 0 {
		t.Errorf("event on another date should be skipped, got %+v", next)
	}
}

func TestClearClickDate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := testutil.NewFactory(2)

	if _, err := s.IngestClicks(ctx, []model.ClickEvent{f.Click(testDate.Add(time.Hour))}, testDate, true); err != nil {
		t.Fatalf("IngestClicks() error = %v", err)
	}
	if err := s.ClearClickDate(ctx, testDate); err != nil {
		t.Fatalf("ClearClickDate() error = %v", err)
	}

	rollups, err := s.FetchClickRollups(ctx, testDate)
	if err != nil {
		t.Fatalf("FetchClickRollups() error = %v", err)
	}
	if len(rollups) != 0 {
		t.Errorf("rollups after clear = %+v", rollups)
	}
}

func TestMergeClicks_DeduplicatesByID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := testutil.NewFactory(3)

	a := f.ClickFrom(testDate.Add(time.Hour), "2.2.2.2", "UA", "m1", "p1")
	b := f.ClickFrom(testDate.Add(2*time.Hour), "2.2.2.2", "UA", "m2", "p1")
	anon := f.ClickFrom(testDate.Add(3*time.Hour), "2.2.2.2", "UA", "m1", "p1")
	anon.ID = ""

	n, skip, err := s.MergeClicks(ctx, []model.ClickEvent{a, b, a, anon, anon}, true)
	if err != nil {
		t.Fatalf("MergeClicks() error = %v", err)
	}
	if n != 4 || skip != 1 {
		t.Errorf("new/skip = %d/%d, want 4/1 (clicks without id are never deduplicated)", n, skip)
	}

	n, skip, err = s.MergeClicks(ctx, []model.ClickEvent{a, b}, true)
	if err != nil {
		t.Fatalf("MergeClicks() error = %v", err)
	}
	if n != 0 || skip != 2 {
		t.Errorf("second merge new/skip = %d/%d, want 0/2", n, skip)
	}

	rollups, err := s.FetchClickRollups(ctx, testDate)
	if err != nil {
		t.Fatalf("FetchClickRollups() error = %v", err)
	}
	if len(rollups) != 1 || rollups[0].Total != 4 || rollups[0].MediaCount != 2 {
		t.Errorf("rollups = %+v, want total 4 over 2 media", rollups)
	}
}

func TestMergeClicks_WithoutRawCountsEverything(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := testutil.NewFactory(4)

	a := f.Click(testDate.Add(time.Hour))
	n, skip, err := s.MergeClicks(ctx, []model.ClickEvent{a, a}, false)
	if err != nil {
		t.Fatalf("MergeClicks() error = %v", err)
	}
	if n != 2 || skip != 0 {
		t.Errorf("new/skip = %d/%d, want 2/0", n, skip)
	}
}

func TestFetchSuspiciousClickRollups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := testutil.NewFactory(5)

	var events []model.ClickEvent
	for i := 0; i < 60; i++ {
		events = append(events, f.ClickFrom(testDate.Add(time.Duration(i)*time.Minute), "9.9.9.9", "UA-busy", "m1", "p1"))
	}
	for i, media := range []string{"m1", "m2", "m3", "m4"} {
		events = append(events, f.ClickFrom(testDate.Add(time.Duration(i)*time.Hour), "2.2.2.2", "UA-wide", media, "p1"))
	}
	events = append(events, f.ClickFrom(testDate.Add(time.Hour), "7.7.7.7", "UA-quiet", "m1", "p1"))

	if _, err := s.IngestClicks(ctx, events, testDate, false); err != nil {
		t.Fatalf("IngestClicks() error = %v", err)
	}

	got, err := s.FetchSuspiciousClickRollups(ctx, testDate, model.RollupQuery{MinTotal: 50, MinMedia: 3, MinProgram: 3, MinBurst: 20})
	if err != nil {
		t.Fatalf("FetchSuspiciousClickRollups() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d groups, want 2: %+v", len(got), got)
	}
	if got[0].IPAddress != "9.9.9.9" || got[0].Total != 60 {
		t.Errorf("first group = %+v", got[0])
	}
	if got[1].IPAddress != "2.2.2.2" || got[1].MediaCount != 4 {
		t.Errorf("second group = %+v", got[1])
	}
	if span := got[0].Span(); span != 59*time.Minute {
		t.Errorf("span = %s, want 59m", span)
	}
}

func TestFetchSuspiciousClickRollups_Filters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := testutil.NewFactory(6)

	browser := "Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 Chrome/120.0 Safari/537.36"
	var events []model.ClickEvent
	for i := 0; i < 5; i++ {
		events = append(events,
			f.ClickFrom(testDate.Add(time.Duration(i)*time.Minute), "1.2.3.4", browser, "m1", "p1"),
			f.ClickFrom(testDate.Add(time.Duration(i)*time.Minute), "1.2.3.5", "curl/8.0", "m1", "p1"),
			f.ClickFrom(testDate.Add(time.Duration(i)*time.Minute), "35.1.2.3", browser, "m1", "p1"),
		)
	}
	if _, err := s.IngestClicks(ctx, events, testDate, false); err != nil {
		t.Fatalf("IngestClicks() error = %v", err)
	}

	got, err := s.FetchSuspiciousClickRollups(ctx, testDate, model.RollupQuery{
		MinTotal:            5,
		BrowserOnly:         true,
		ExcludeDatacenterIP: true,
	})
	if err != nil {
		t.Fatalf("FetchSuspiciousClickRollups() error = %v", err)
	}
	if len(got) != 1 || got[0].IPAddress != "1.2.3.4" {
		t.Errorf("got %+v, want only the browser on a residential IP", got)
	}
}

func TestConversions_GatingGapsAndMerge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := testutil.NewFactory(7)

	fast := f.Conversion(testDate.Add(10*time.Hour), "3.3.3.3", "UA-entry", 30*time.Second)
	slow := f.Conversion(testDate.Add(11*time.Hour), "3.3.3.3", "UA-entry", 2*time.Hour)
	noEntry := f.Conversion(testDate.Add(12*time.Hour), "", "", time.Minute)

	n, err := s.IngestConversions(ctx, []model.ConversionEvent{fast, slow, noEntry, fast}, testDate)
	if err != nil {
		t.Fatalf("IngestConversions() error = %v", err)
	}
	if n != 3 {
		t.Errorf("stored %d, want 3", n)
	}

	rollups, err := s.FetchConversionRollups(ctx, testDate)
	if err != nil {
		t.Fatalf("FetchConversionRollups() error = %v", err)
	}
	if len(rollups) != 1 || rollups[0].Total != 2 {
		t.Errorf("rollups = %+v, want one group of 2", rollups)
	}

	gaps, err := s.FetchClickToConversionGaps(ctx, testDate)
	if err != nil {
		t.Fatalf("FetchClickToConversionGaps() error = %v", err)
	}
	g := gaps[model.IPUA{IPAddress: "3.3.3.3", UserAgent: "UA-entry"}]
	if g.Count != 2 || g.MinSeconds != 30 || g.MaxSeconds != 7200 {
		t.Errorf("gap stats = %+v", g)
	}
	if len(gaps) != 1 {
		t.Errorf("conversion without entry IP/UA should not produce gaps: %+v", gaps)
	}

	newCount, skip, err := s.MergeConversions(ctx, []model.ConversionEvent{fast, f.Conversion(testDate.Add(13*time.Hour), "3.3.3.3", "UA-entry", 0)})
	if err != nil {
		t.Fatalf("MergeConversions() error = %v", err)
	}
	if newCount != 1 || skip != 1 {
		t.Errorf("new/skip = %d/%d, want 1/1", newCount, skip)
	}
}

func TestFindClicksByCID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := testutil.NewFactory(8)

	click := f.ClickFrom(testDate.Add(time.Hour), "6.6.6.6", "UA-click", "m1", "p1")
	if _, _, err := s.MergeClicks(ctx, []model.ClickEvent{click}, true); err != nil {
		t.Fatalf("MergeClicks() error = %v", err)
	}

	refs, err := s.FindClicksByCID(ctx, []string{click.ID, "unknown"})
	if err != nil {
		t.Fatalf("FindClicksByCID() error = %v", err)
	}
	ref, ok := refs[click.ID]
	if !ok || len(refs) != 1 {
		t.Fatalf("refs = %+v", refs)
	}
	if ref.IPAddress != "6.6.6.6" || ref.UserAgent != "UA-click" || !ref.ClickTime.Equal(click.ClickTime) {
		t.Errorf("ref = %+v", ref)
	}
}

func TestMastersAndDetails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := testutil.NewFactory(9)

	if _, err := s.IngestClicks(ctx, []model.ClickEvent{
		f.ClickFrom(testDate.Add(time.Hour), "4.4.4.4", "UA", "m1", "p1"),
		f.ClickFrom(testDate.Add(time.Hour), "4.4.4.4", "UA", "m1", "p1"),
		f.ClickFrom(testDate.Add(time.Hour), "4.4.4.4", "UA", "m2", "p2"),
	}, testDate, false); err != nil {
		t.Fatalf("IngestClicks() error = %v", err)
	}

	if n, err := s.UpsertMedia(ctx, []model.Media{{ID: "m1", Name: "Media One", UserID: "u1"}, {Name: "no id"}}); err != nil || n != 1 {
		t.Fatalf("UpsertMedia() = %d, %v", n, err)
	}
	if _, err := s.UpsertPromotions(ctx, []model.Promotion{{ID: "p1", Name: "Promo One"}}); err != nil {
		t.Fatalf("UpsertPromotions() error = %v", err)
	}
	if _, err := s.UpsertAffiliates(ctx, []model.Affiliate{{ID: "u1", Name: "Partner", Company: "ACME"}}); err != nil {
		t.Fatalf("UpsertAffiliates() error = %v", err)
	}

	key := model.IPUA{IPAddress: "4.4.4.4", UserAgent: "UA"}
	details, err := s.FetchSuspiciousDetails(ctx, model.UnitClicks, testDate, []model.IPUA{key})
	if err != nil {
		t.Fatalf("FetchSuspiciousDetails() error = %v", err)
	}
	rows := details[key]
	if len(rows) != 2 {
		t.Fatalf("details = %+v", rows)
	}
	if rows[0].MediaName != "Media One" || rows[0].ProgramName != "Promo One" || rows[0].AffiliateName != "Partner" || rows[0].Count != 2 {
		t.Errorf("first detail = %+v", rows[0])
	}
	if rows[1].MediaName != "m2" || rows[1].ProgramName != "p2" || rows[1].AffiliateName != "" {
		t.Errorf("unknown masters should fall back to ids: %+v", rows[1])
	}

	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if counts.Media != 1 || counts.Promotions != 1 || counts.Affiliates != 1 || counts.LastSynced == nil {
		t.Errorf("counts = %+v", counts)
	}
}

func TestSettingsAndLatestDate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, ok, err := s.LatestDate(ctx, model.UnitClicks); err != nil || ok {
		t.Fatalf("LatestDate() on empty store = %v, %v", ok, err)
	}

	if err := s.SaveSettings(ctx, map[string]json.RawMessage{
		"browser_only":    json.RawMessage(`true`),
		"click_threshold": json.RawMessage(`80`),
	}); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}
	if err := s.SaveSettings(ctx, map[string]json.RawMessage{"click_threshold": json.RawMessage(`90`)}); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	got, err := s.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if string(got["click_threshold"]) != "90" || string(got["browser_only"]) != "true" {
		t.Errorf("settings = %v", got)
	}

	f := testutil.NewFactory(10)
	if _, err := s.IngestClicks(ctx, []model.ClickEvent{f.Click(testDate.Add(time.Hour))}, testDate, false); err != nil {
		t.Fatalf("IngestClicks() error = %v", err)
	}
	latest, ok, err := s.LatestDate(ctx, model.UnitClicks)
	if err != nil || !ok || !latest.Equal(testDate) {
		t.Errorf("LatestDate() = %s, %v, %v", latest, ok, err)
	}
}

type stubResult struct {
	rows int64
	err  error
}

func (r stubResult) LastInsertId() (int64, error) { return 0, nil }
func (r stubResult) RowsAffected() (int64, error) { return r.rows, r.err }

func TestInserted(t *testing.T) {
	boom := errors.New("driver gone")
	tests := []struct {
		name    string
		res     stubResult
		want    bool
		wantErr error
	}{
		{"row written", stubResult{rows: 1}, true, nil},
		{"ignored", stubResult{rows: 0}, false, nil},
		{"driver error", stubResult{err: boom}, false, boom},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := inserted(tt.res)
			if !errors.Is(err, tt.wantErr) || (err == nil) != (tt.wantErr == nil) {
				t.Fatalf("inserted() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("inserted() = %v, want %v", got, tt.want)
			}
		})
	}
}
