package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jassnet/Fraudhunter/internal/model"
)

const upsertConversionRollupSQL = `
	INSERT INTO conversion_ipua_daily (
		date, media_id, program_id, ipaddress, useragent,
		conversion_count, first_time, last_time, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?)
	ON CONFLICT (date, media_id, program_id, ipaddress, useragent) DO UPDATE SET
		conversion_count = conversion_count + 1,
		first_time = min(first_time, excluded.first_time),
		last_time = max(last_time, excluded.last_time),
		updated_at = excluded.updated_at
`

const insertConversionRawSQL = `
	INSERT INTO conversion_raw (
		id, cid, event_date, conversion_time, click_time,
		media_id, program_id, user_id,
		postback_ipaddress, postback_useragent,
		entry_ipaddress, entry_useragent,
		click_ipaddress, click_useragent,
		state, raw_payload, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO NOTHING
`

// IngestConversions replaces the stored conversions for date with events.
// Only conversions with an entry IP and UA reach the rollups.
func (s *Store) IngestConversions(ctx context.Context, events []model.ConversionEvent, date time.Time) (int, error) {
	day := formatDate(date)
	count := 0

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := clearConversionDate(ctx, tx, day); err != nil {
			return err
		}

		now := formatTime(s.now())
		for i := range events {
			e := &events[i]
			if formatDate(e.ConversionTime) != day {
				continue
			}
			stored, err := insertConversion(ctx, tx, e, now)
			if err != nil {
				return err
			}
			if stored {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MergeConversions adds conversions not yet stored (by conversion id).
func (s *Store) MergeConversions(ctx context.Context, events []model.ConversionEvent) (int, int, error) {
	inserted, skipped := 0, 0

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(s.now())
		for i := range events {
			stored, err := insertConversion(ctx, tx, &events[i], now)
			if err != nil {
				return err
			}
			if stored {
				inserted++
			} else {
				skipped++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, skipped, nil
}

// FetchConversionRollups returns every (entry ip, entry ua) group for date.
func (s *Store) FetchConversionRollups(ctx context.Context, date time.Time) ([]model.IPUARollup, error) {
	query, args := groupedRollupQuery(conversionTable, date, model.RollupQuery{}, false)
	return s.queryRollups(ctx, query, args)
}

// FetchSuspiciousConversionRollups returns the groups for date meeting at
// least one threshold in q, after the traffic filters in q.
func (s *Store) FetchSuspiciousConversionRollups(ctx context.Context, date time.Time, q model.RollupQuery) ([]model.IPUARollup, error) {
	query, args := groupedRollupQuery(conversionTable, date, q, true)
	if query == "" {
		return nil, nil
	}
	return s.queryRollups(ctx, query, args)
}

// FetchClickToConversionGaps folds conversion_time - click_time per entry
// IP/UA. Rows whose timestamps do not parse are skipped.
func (s *Store) FetchClickToConversionGaps(ctx context.Context, date time.Time) (map[model.IPUA]model.GapStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entry_ipaddress, entry_useragent, click_time, conversion_time
		FROM conversion_raw
		WHERE event_date = ?
		  AND click_time IS NOT NULL
		  AND COALESCE(entry_ipaddress, '') <> ''
		  AND COALESCE(entry_useragent, '') <> ''
	`, formatDate(date))
	if err != nil {
		return nil, fmt.Errorf("query conversion gaps: %w", err)
	}
	defer rows.Close()

	gaps := make(map[model.IPUA]model.GapStats)
	for rows.Next() {
		var id, clickRaw, conversionRaw string
		var key model.IPUA
		if err := rows.Scan(&id, &key.IPAddress, &key.UserAgent, &clickRaw, &conversionRaw); err != nil {
			return nil, fmt.Errorf("scan conversion gap: %w", err)
		}
		clickTime, err := s.parseTime(clickRaw)
		if err != nil {
			s.logger.Warn("skipping conversion with unparseable click time", "id", id, "click_time", clickRaw)
			continue
		}
		conversionTime, err := s.parseTime(conversionRaw)
		if err != nil {
			s.logger.Warn("skipping conversion with unparseable time", "id", id, "conversion_time", conversionRaw)
			continue
		}
		model.FoldGap(gaps, key, clickTime, conversionTime)
	}
	return gaps, rows.Err()
}

// insertConversion stores e unless its id exists and, when it carries an
// entry IP/UA, counts it in the rollup. It reports whether e was new.
func insertConversion(ctx context.Context, tx *sql.Tx, e *model.ConversionEvent, now string) (bool, error) {
	var clickTime any
	if e.ClickTime != nil {
		clickTime = formatTime(*e.ClickTime)
	}

	res, err := tx.ExecContext(ctx, insertConversionRawSQL,
		e.ID,
		nullable(e.CID),
		formatDate(e.ConversionTime),
		formatTime(e.ConversionTime),
		clickTime,
		e.MediaID,
		e.ProgramID,
		nullable(e.UserID),
		nullable(e.PostbackIPAddress),
		nullable(e.PostbackUserAgent),
		nullable(e.EntryIPAddress),
		nullable(e.EntryUserAgent),
		nullable(e.ClickIPAddress),
		nullable(e.ClickUserAgent),
		nullable(e.State),
		nullableJSON(e.RawPayload),
		now,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("insert raw conversion %s: %w", e.ID, err)
	}
	added, err := inserted(res)
	if err != nil {
		return false, fmt.Errorf("insert raw conversion %s: %w", e.ID, err)
	}
	if !added {
		return false, nil
	}

	if e.HasEntrySignal() {
		ts := formatTime(e.ConversionTime)
		if _, err := tx.ExecContext(ctx, upsertConversionRollupSQL,
			formatDate(e.ConversionTime), e.MediaID, e.ProgramID, e.EntryIPAddress, e.EntryUserAgent,
			ts, ts, now, now,
		); err != nil {
			return false, fmt.Errorf("upsert conversion rollup %s: %w", e.ID, err)
		}
	}
	return true, nil
}

func clearConversionDate(ctx context.Context, tx *sql.Tx, day string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversion_ipua_daily WHERE date = ?`, day); err != nil {
		return fmt.Errorf("clear conversion rollups: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversion_raw WHERE event_date = ?`, day); err != nil {
		return fmt.Errorf("clear raw conversions: %w", err)
	}
	return nil
}
