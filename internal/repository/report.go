package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jassnet/Fraudhunter/internal/model"
)

// ReportRepository answers dashboard queries over the rollups.
type ReportRepository struct {
	repo *Repository
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(repo *Repository) *ReportRepository {
	return &ReportRepository{repo: repo}
}

// Summary returns totals for date, the previous day's totals, and how many
// IP/UA pairs reached the given volume thresholds.
func (r *ReportRepository) Summary(ctx context.Context, date time.Time, clickThreshold, conversionThreshold int64) (*model.Summary, error) {
	date = model.DateOf(date)
	prev := date.AddDate(0, 0, -1)

	s := model.Summary{Date: model.FormatDate(date)}
	err := r.repo.pool.QueryRow(ctx, `
		SELECT
			(SELECT COALESCE(SUM(click_count), 0) FROM click_ipua_daily WHERE date = $1),
			(SELECT COUNT(DISTINCT ipaddress) FROM click_ipua_daily WHERE date = $1),
			(SELECT COUNT(DISTINCT media_id) FROM click_ipua_daily WHERE date = $1),
			(SELECT COALESCE(SUM(click_count), 0) FROM click_ipua_daily WHERE date = $2),
			(SELECT COALESCE(SUM(conversion_count), 0) FROM conversion_ipua_daily WHERE date = $1),
			(SELECT COUNT(DISTINCT ipaddress) FROM conversion_ipua_daily WHERE date = $1),
			(SELECT COALESCE(SUM(conversion_count), 0) FROM conversion_ipua_daily WHERE date = $2),
			(SELECT COUNT(*) FROM (
				SELECT 1 FROM click_ipua_daily WHERE date = $1
				GROUP BY ipaddress, useragent HAVING SUM(click_count) >= $3
			) sc),
			(SELECT COUNT(*) FROM (
				SELECT 1 FROM conversion_ipua_daily WHERE date = $1
				GROUP BY ipaddress, useragent HAVING SUM(conversion_count) >= $4
			) sv)
	`, date, prev, clickThreshold, conversionThreshold).Scan(
		&s.Clicks.Total, &s.Clicks.UniqueIPs, &s.Clicks.MediaCount, &s.Clicks.PrevTotal,
		&s.Conversions.Total, &s.Conversions.UniqueIPs, &s.Conversions.PrevTotal,
		&s.Suspicious.ClickBased, &s.Suspicious.ConversionBased,
	)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	return &s, nil
}

// DailyStats returns up to limit most recent days in ascending date order.
func (r *ReportRepository) DailyStats(ctx context.Context, limit int, clickThreshold, conversionThreshold int64) ([]model.DailyStat, error) {
	rows, err := r.repo.pool.Query(ctx, `
		WITH c AS (
			SELECT date, SUM(click_count) AS total FROM click_ipua_daily GROUP BY date
		), v AS (
			SELECT date, SUM(conversion_count) AS total FROM conversion_ipua_daily GROUP BY date
		), sc AS (
			SELECT date, COUNT(*) AS n FROM (
				SELECT date FROM click_ipua_daily
				GROUP BY date, ipaddress, useragent HAVING SUM(click_count) >= $2
			) x GROUP BY date
		), sv AS (
			SELECT date, COUNT(*) AS n FROM (
				SELECT date FROM conversion_ipua_daily
				GROUP BY date, ipaddress, useragent HAVING SUM(conversion_count) >= $3
			) y GROUP BY date
		), d AS (
			SELECT date FROM c UNION SELECT date FROM v
		), recent AS (
			SELECT d.date,
			       COALESCE(c.total, 0) AS clicks,
			       COALESCE(v.total, 0) AS conversions,
			       COALESCE(sc.n, 0) AS suspicious_clicks,
			       COALESCE(sv.n, 0) AS suspicious_conversions
			FROM d
			LEFT JOIN c USING (date)
			LEFT JOIN v USING (date)
			LEFT JOIN sc USING (date)
			LEFT JOIN sv USING (date)
			ORDER BY d.date DESC
			LIMIT $1
		)
		SELECT date, clicks, conversions, suspicious_clicks, suspicious_conversions
		FROM recent ORDER BY date ASC
	`, limit, clickThreshold, conversionThreshold)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	var out []model.DailyStat
	for rows.Next() {
		var date time.Time
		var s model.DailyStat
		if err := rows.Scan(&date, &s.Clicks, &s.Conversions, &s.SuspiciousClicks, &s.SuspiciousConversions); err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		s.Date = model.FormatDate(date)
		out = append(out, s)
	}
	return out, rows.Err()
}

// AvailableDates lists the dates that have click or conversion rollups,
// newest first.
func (r *ReportRepository) AvailableDates(ctx context.Context) ([]time.Time, error) {
	rows, err := r.repo.pool.Query(ctx, `
		SELECT date FROM click_ipua_daily
		UNION
		SELECT date FROM conversion_ipua_daily
		ORDER BY date DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query available dates: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LatestDate returns the newest rollup date for unit; ok is false when the
// table is empty.
func (r *ReportRepository) LatestDate(ctx context.Context, unit model.EventUnit) (time.Time, bool, error) {
	table := clickTable
	if unit == model.UnitConversions {
		table = conversionTable
	}

	var latest *time.Time
	if err := r.repo.pool.QueryRow(ctx, "SELECT MAX(date) FROM "+table.name).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("query latest %s date: %w", unit, err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return *latest, true, nil
}
