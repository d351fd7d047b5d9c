package repository

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jassnet/Fraudhunter/internal/model"
)

func TestGroupedRollupQuery_Suspicious(t *testing.T) {
	date := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	query, args := groupedRollupQuery(clickTable, date, model.RollupQuery{
		MinTotal:   50,
		MinMedia:   3,
		MinProgram: 3,
		MinBurst:   20,
	}, true)

	if !strings.Contains(query, "FROM click_ipua_daily") {
		t.Errorf("query does not read click rollups: %s", query)
	}
	if !strings.Contains(query, "HAVING SUM(click_count) >= $2 OR COUNT(DISTINCT media_id) >= $3 OR COUNT(DISTINCT program_id) >= $4 OR SUM(click_count) >= $5") {
		t.Errorf("unexpected HAVING clause: %s", query)
	}
	if len(args) != 5 {
		t.Fatalf("args = %d, want 5", len(args))
	}
	if d, ok := args[0].(time.Time); !ok || !d.Equal(date) {
		t.Errorf("first arg = %v, want date", args[0])
	}
}

func TestGroupedRollupQuery_FiltersBeforeThresholds(t *testing.T) {
	query, args := groupedRollupQuery(conversionTable, time.Now(), model.RollupQuery{
		MinTotal:            5,
		BrowserOnly:         true,
		ExcludeDatacenterIP: true,
	}, true)

	where := query[strings.Index(query, "WHERE"):strings.Index(query, "GROUP BY")]
	if !strings.Contains(where, "useragent ILIKE") || !strings.Contains(where, "ipaddress LIKE") {
		t.Errorf("filters missing from WHERE: %s", where)
	}
	if !strings.Contains(query, "SUM(conversion_count) >= $"+strconv.Itoa(len(args))) {
		t.Errorf("threshold should bind last: %s", query)
	}
}

func TestGroupedRollupQuery_NoThresholds(t *testing.T) {
	query, args := groupedRollupQuery(clickTable, time.Now(), model.RollupQuery{BrowserOnly: true}, true)
	if query != "" || args != nil {
		t.Errorf("expected empty query without thresholds, got %q", query)
	}
}

func TestGroupedRollupQuery_Unfiltered(t *testing.T) {
	query, args := groupedRollupQuery(clickTable, time.Now(), model.RollupQuery{BrowserOnly: true}, false)
	if strings.Contains(query, "HAVING") || strings.Contains(query, "ILIKE") {
		t.Errorf("unfiltered query should not filter: %s", query)
	}
	if len(args) != 1 {
		t.Errorf("args = %d, want 1", len(args))
	}
}
