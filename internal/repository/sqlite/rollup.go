package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jassnet/Fraudhunter/internal/model"
	"github.com/jassnet/Fraudhunter/internal/trafficfilter"
)

type rollupTable struct {
	name        string
	countColumn string
}

var (
	clickTable      = rollupTable{name: "click_ipua_daily", countColumn: "click_count"}
	conversionTable = rollupTable{name: "conversion_ipua_daily", countColumn: "conversion_count"}
)

// groupedRollupQuery mirrors the PostgreSQL builder with ? placeholders.
func groupedRollupQuery(t rollupTable, date time.Time, q model.RollupQuery, suspicious bool) (string, []any) {
	b := trafficfilter.NewQuery(trafficfilter.SQLite, formatDate(date))
	where := []string{"date = ?"}

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
		SELECT ipaddress, useragent,
		       SUM(%[1]s) AS total,
		       COUNT(DISTINCT media_id) AS media_count,
		       COUNT(DISTINCT program_id) AS program_count,
		       MIN(first_time) AS first_time,
		       MAX(last_time) AS last_time
		FROM %[2]s
		WHERE %[3]s
		GROUP BY ipaddress, useragent`, t.countColumn, t.name, strings.Join(where, " AND "))
	if len(having) > 0 {
		sb.WriteString("\n\t\tHAVING " + strings.Join(having, " OR "))
	}
	sb.WriteString("\n\t\tORDER BY total DESC, ipaddress, useragent")
	return sb.String(), b.Args()
}

func (s *Store) queryRollups(ctx context.Context, query string, args []any) ([]model.IPUARollup, error) {
	day, _ := args[0].(string)
	date, err := model.ParseDate(day)
	if err != nil {
		return nil, fmt.Errorf("parse rollup date: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rollups: %w", err)
	}
	defer rows.Close()

	var out []model.IPUARollup
	for rows.Next() {
		ru := model.IPUARollup{Date: date}
		var first, last string
		if err := rows.Scan(
			&ru.IPAddress, &ru.UserAgent,
			&ru.Total, &ru.MediaCount, &ru.ProgramCount,
			&first, &last,
		); err != nil {
			return nil, fmt.Errorf("scan rollup: %w", err)
		}
		if ru.FirstTime, err = s.parseTime(first); err != nil {
			return nil, fmt.Errorf("parse first_time %q: %w", first, err)
		}
		if ru.LastTime, err = s.parseTime(last); err != nil {
			return nil, fmt.Errorf("parse last_time %q: %w", last, err)
		}
		out = append(out, ru)
	}
	return out, rows.Err()
}
