package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jassnet/Fraudhunter/internal/model"
	"github.com/jassnet/Fraudhunter/internal/trafficfilter"
)

// rollupTable names a rollup table and its count column.
type rollupTable struct {
	name        string
	countColumn string
}

var (
	clickTable      = rollupTable{name: "click_ipua_daily", countColumn: "click_count"}
	conversionTable = rollupTable{name: "conversion_ipua_daily", countColumn: "conversion_count"}
)

// groupedRollupQuery builds the (date, ip, ua) grouping over t. With
// suspicious set, the traffic filters of q go into WHERE and its
// thresholds into HAVING; it returns "" when q has no positive threshold.
func groupedRollupQuery(t rollupTable, date time.Time, q model.RollupQuery, suspicious bool) (string, []any) {
	b := trafficfilter.NewQuery(trafficfilter.Postgres, model.DateOf(date))
	where := []string{"date = $1"}

	var having []string
	if suspicious {
		where = append(where, b.Conditions(trafficfilter.Options{
			BrowserOnly:         q.BrowserOnly,
			ExcludeDatacenterIP: q.ExcludeDatacenterIP,
		}, "ipaddress", "useragent")...)

		total := "SUM(" + t.countColumn + ")"
		for _, th := range []struct {
			expr  string
			value int64
		}{
			{total, q.MinTotal},
			{"COUNT(DISTINCT media_id)", q.MinMedia},
			{"COUNT(DISTINCT program_id)", q.MinProgram},
			{total, q.MinBurst},
		} {
			if th.value > 0 {
				having = append(having, th.expr+" >= "+b.Bind(th.value))
			}
		}
		if len(having) == 0 {
			return "", nil
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `
		SELECT date, ipaddress, useragent,
		       SUM(%[1]s) AS total,
		       COUNT(DISTINCT media_id) AS media_count,
		       COUNT(DISTINCT program_id) AS program_count,
		       MIN(first_time) AS first_time,
		       MAX(last_time) AS last_time
		FROM %[2]s
		WHERE %[3]s
		GROUP BY date, ipaddress, useragent`, t.countColumn, t.name, strings.Join(where, " AND "))
	if len(having) > 0 {
		sb.WriteString("\n\t\tHAVING " + strings.Join(having, " OR "))
	}
	sb.WriteString("\n\t\tORDER BY total DESC, ipaddress, useragent")
	return sb.String(), b.Args()
}

func (r *Repository) queryRollups(ctx context.Context, query string, args []any) ([]model.IPUARollup, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rollups: %w", err)
	}
	defer rows.Close()

	var out []model.IPUARollup
	for rows.Next() {
		var ru model.IPUARollup
		if err := rows.Scan(
			&ru.Date, &ru.IPAddress, &ru.UserAgent,
			&ru.Total, &ru.MediaCount, &ru.ProgramCount,
			&ru.FirstTime, &ru.LastTime,
		); err != nil {
			return nil, fmt.Errorf("scan rollup: %w", err)
		}
		out = append(out, ru)
	}
	return out, rows.Err()
}
