//go:build integration

package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jassnet/Fraudhunter/internal/model"
	"github.com/jassnet/Fraudhunter/internal/testutil"
)

var storeDate = time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

func newStoreTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	ctx, _, url := newTestDatabase(t)

	repo, err := New(ctx, url)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(repo.Close)
	return ctx, repo
}

func TestIntegrationClicks_IngestIsIdempotent(t *testing.T) {
	ctx, repo := newStoreTestEnv(t)
	clicks := NewClickRepository(repo)
	f := testutil.NewFactory(1)

	events := []model.ClickEvent{
		f.ClickFrom(storeDate.Add(10*time.Hour), "1.1.1.1", "UA", "m1", "p1"),
		f.ClickFrom(storeDate.Add(11*time.Hour), "1.1.1.1", "UA", "m1", "p1"),
		f.ClickFrom(storeDate.Add(36*time.Hour), "1.1.1.1", "UA", "m1", "p1"),
	}

	for run := 0; run < 2; run++ {
		n, err := clicks.IngestClicks(ctx, events, storeDate, true)
		if err != nil {
			t.Fatalf("IngestClicks run %d: %v", run, err)
		}
		if n != 2 {
			t.Errorf("run %d aggregated %d clicks, want 2", run, n)
		}
	}

	aggs, err := clicks.FetchClickAggregates(ctx, storeDate)
	if err != nil {
		t.Fatalf("FetchClickAggregates: %v", err)
	}
	if len(aggs) != 1 || aggs[0].ClickCount != 2 {
		t.Fatalf("aggregates = %+v, want one row with 2 clicks", aggs)
	}
	if !aggs[0].FirstTime.Equal(storeDate.Add(10*time.Hour)) || !aggs[0].LastTime.Equal(storeDate.Add(11*time.Hour)) {
		t.Errorf("first/last = %s/%s", aggs[0].FirstTime, aggs[0].LastTime)
	}
}

func TestIntegrationClicks_MergeSkipsStoredIDs(t *testing.T) {
	ctx, repo := newStoreTestEnv(t)
	clicks := NewClickRepository(repo)
	f := testutil.NewFactory(2)

	first := f.ClickFrom(storeDate.Add(time.Hour), "2.2.2.2", "UA", "m1", "p1")
	second := f.ClickFrom(storeDate.Add(2*time.Hour), "2.2.2.2", "UA", "m1", "p1")

	n, skip, err := clicks.MergeClicks(ctx, []model.ClickEvent{first, second, first}, true)
	if err != nil {
		t.Fatalf("MergeClicks: %v", err)
	}
	if n != 2 || skip != 1 {
		t.Errorf("new/skip = %d/%d, want 2/1", n, skip)
	}

	n, skip, err = clicks.MergeClicks(ctx, []model.ClickEvent{first, second}, true)
	if err != nil {
		t.Fatalf("MergeClicks again: %v", err)
	}
	if n != 0 || skip != 2 {
		t.Errorf("second merge new/skip = %d/%d, want 0/2", n, skip)
	}

	rollups, err := clicks.FetchClickRollups(ctx, storeDate)
	if err != nil {
		t.Fatalf("FetchClickRollups: %v", err)
	}
	if len(rollups) != 1 || rollups[0].Total != 2 {
		t.Errorf("rollups = %+v, want total 2", rollups)
	}

	refs, err := clicks.FindClicksByCID(ctx, []string{first.ID, "missing"})
	if err != nil {
		t.Fatalf("FindClicksByCID: %v", err)
	}
	if len(refs) != 1 || refs[first.ID].IPAddress != "2.2.2.2" {
		t.Errorf("refs = %+v", refs)
	}
}

func TestIntegrationClicks_SuspiciousRollups(t *testing.T) {
	ctx, repo := newStoreTestEnv(t)
	clicks := NewClickRepository(repo)
	f := testutil.NewFactory(3)

	var events []model.ClickEvent
	for i := 0; i < 60; i++ {
		events = append(events, f.ClickFrom(storeDate.Add(time.Duration(i)*time.Minute), "9.9.9.9", "UA-busy", "m1", "p1"))
	}
	events = append(events, f.ClickFrom(storeDate.Add(time.Hour), "8.8.8.8", "UA-quiet", "m1", "p1"))

	if _, err := clicks.IngestClicks(ctx, events, storeDate, false); err != nil {
		t.Fatalf("IngestClicks: %v", err)
	}

	got, err := clicks.FetchSuspiciousClickRollups(ctx, storeDate, model.RollupQuery{MinTotal: 50, MinMedia: 3, MinProgram: 3, MinBurst: 20})
	if err != nil {
		t.Fatalf("FetchSuspiciousClickRollups: %v", err)
	}
	if len(got) != 1 || got[0].IPAddress != "9.9.9.9" || got[0].Total != 60 {
		t.Errorf("suspicious = %+v", got)
	}

	got, err = clicks.FetchSuspiciousClickRollups(ctx, storeDate, model.RollupQuery{MinTotal: 50, BrowserOnly: true})
	if err != nil {
		t.Fatalf("FetchSuspiciousClickRollups browser-only: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("non-browser UA should be filtered, got %+v", got)
	}
}

func TestIntegrationConversions_GatingAndGaps(t *testing.T) {
	ctx, repo := newStoreTestEnv(t)
	convs := NewConversionRepository(repo)
	f := testutil.NewFactory(4)

	withEntry := f.Conversion(storeDate.Add(10*time.Hour), "3.3.3.3", "UA-entry", 30*time.Second)
	noEntry := f.Conversion(storeDate.Add(11*time.Hour), "", "", 0)

	n, err := convs.IngestConversions(ctx, []model.ConversionEvent{withEntry, noEntry}, storeDate)
	if err != nil {
		t.Fatalf("IngestConversions: %v", err)
	}
	if n != 2 {
		t.Errorf("stored %d conversions, want 2", n)
	}

	rollups, err := convs.FetchConversionRollups(ctx, storeDate)
	if err != nil {
		t.Fatalf("FetchConversionRollups: %v", err)
	}
	if len(rollups) != 1 || rollups[0].Total != 1 {
		t.Errorf("only the conversion with entry IP/UA should aggregate, got %+v", rollups)
	}

	gaps, err := convs.FetchClickToConversionGaps(ctx, storeDate)
	if err != nil {
		t.Fatalf("FetchClickToConversionGaps: %v", err)
	}
	g := gaps[model.IPUA{IPAddress: "3.3.3.3", UserAgent: "UA-entry"}]
	if g.Count != 1 || g.MinSeconds != 30 || g.MaxSeconds != 30 {
		t.Errorf("gap = %+v, want one 30s sample", g)
	}

	newCount, skip, err := convs.MergeConversions(ctx, []model.ConversionEvent{withEntry})
	if err != nil {
		t.Fatalf("MergeConversions: %v", err)
	}
	if newCount != 0 || skip != 1 {
		t.Errorf("merge of stored conversion new/skip = %d/%d, want 0/1", newCount, skip)
	}
}

func TestIntegrationMasters_DetailsUseNames(t *testing.T) {
	ctx, repo := newStoreTestEnv(t)
	clicks := NewClickRepository(repo)
	masters := NewMasterRepository(repo)
	f := testutil.NewFactory(5)

	if _, err := clicks.IngestClicks(ctx, []model.ClickEvent{
		f.ClickFrom(storeDate.Add(time.Hour), "4.4.4.4", "UA", "m1", "p1"),
		f.ClickFrom(storeDate.Add(time.Hour), "4.4.4.4", "UA", "m2", "p1"),
	}, storeDate, false); err != nil {
		t.Fatalf("IngestClicks: %v", err)
	}
	if _, err := masters.UpsertMedia(ctx, []model.Media{{ID: "m1", Name: "Media One", UserID: "u1"}}); err != nil {
		t.Fatalf("UpsertMedia: %v", err)
	}
	if _, err := masters.UpsertAffiliates(ctx, []model.Affiliate{{ID: "u1", Name: "Partner"}}); err != nil {
		t.Fatalf("UpsertAffiliates: %v", err)
	}

	key := model.IPUA{IPAddress: "4.4.4.4", UserAgent: "UA"}
	details, err := masters.FetchSuspiciousDetails(ctx, model.UnitClicks, storeDate, []model.IPUA{key})
	if err != nil {
		t.Fatalf("FetchSuspiciousDetails: %v", err)
	}
	rows := details[key]
	if len(rows) != 2 {
		t.Fatalf("details = %+v, want 2 rows", rows)
	}
	names := map[string]string{}
	for _, d := range rows {
		names[d.MediaID] = d.MediaName
		if d.MediaID == "m1" && d.AffiliateName != "Partner" {
			t.Errorf("affiliate name = %q", d.AffiliateName)
		}
	}
	if names["m1"] != "Media One" || names["m2"] != "m2" {
		t.Errorf("media names = %v, want name and id fallback", names)
	}

	counts, err := masters.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Media != 1 || counts.Affiliates != 1 || counts.LastSynced == nil {
		t.Errorf("counts = %+v", counts)
	}
}

func TestIntegrationSettingsAndJobStatus(t *testing.T) {
	ctx, repo := newStoreTestEnv(t)
	settings := NewSettingsRepository(repo)
	jobs := NewJobStatusRepository(repo)

	if err := settings.SaveSettings(ctx, map[string]json.RawMessage{"click_threshold": json.RawMessage(`75`)}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	stored, err := settings.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if string(stored["click_threshold"]) != "75" {
		t.Errorf("click_threshold = %s", stored["click_threshold"])
	}

	status, err := jobs.GetJobStatus(ctx)
	if err != nil {
		t.Fatalf("GetJobStatus: %v", err)
	}
	if status.Status != model.JobIdle {
		t.Errorf("initial status = %s, want idle", status.Status)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	if err := jobs.SaveJobStatus(ctx, &model.JobStatus{
		Status:    model.JobRunning,
		JobID:     "job-1",
		Message:   "ingesting clicks",
		StartedAt: &now,
	}); err != nil {
		t.Fatalf("SaveJobStatus: %v", err)
	}
	status, err = jobs.GetJobStatus(ctx)
	if err != nil {
		t.Fatalf("GetJobStatus: %v", err)
	}
	if !status.IsRunning() || status.JobID != "job-1" || status.StartedAt == nil || !status.StartedAt.Equal(now) {
		t.Errorf("status = %+v", status)
	}
}

func TestIntegrationReports_Summary(t *testing.T) {
	ctx, repo := newStoreTestEnv(t)
	clicks := NewClickRepository(repo)
	reports := NewReportRepository(repo)
	f := testutil.NewFactory(6)

	var events []model.ClickEvent
	for i := 0; i < 3; i++ {
		events = append(events, f.ClickFrom(storeDate.Add(time.Duration(i)*time.Minute), "5.5.5.5", "X", "m1", "p1"))
	}
	if _, err := clicks.IngestClicks(ctx, events, storeDate, false); err != nil {
		t.Fatalf("IngestClicks: %v", err)
	}

	s, err := reports.Summary(ctx, storeDate, 3, 5)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.Clicks.Total != 3 || s.Clicks.UniqueIPs != 1 || s.Suspicious.ClickBased != 1 {
		t.Errorf("summary = %+v", s)
	}

	latest, ok, err := reports.LatestDate(ctx, model.UnitClicks)
	if err != nil || !ok || !latest.Equal(storeDate) {
		t.Errorf("LatestDate = %s %v %v", latest, ok, err)
	}
	_, ok, err = reports.LatestDate(ctx, model.UnitConversions)
	if err != nil || ok {
		t.Errorf("LatestDate(conversions) on empty table = %v %v", ok, err)
	}

	stats, err := reports.DailyStats(ctx, 30, 3, 5)
	if err != nil {
		t.Fatalf("DailyStats: %v", err)
	}
	if len(stats) != 1 || stats[0].Clicks != 3 || stats[0].SuspiciousClicks != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
