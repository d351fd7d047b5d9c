package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jassnet/Fraudhunter/internal/model"
)

const upsertClickRollupSQL = `
	INSERT INTO click_ipua_daily (
		date, media_id, program_id, ipaddress, useragent,
		click_count, first_time, last_time, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?)
	ON CONFLICT (date, media_id, program_id, ipaddress, useragent) DO UPDATE SET
		click_count = click_count + 1,
		first_time = min(first_time, excluded.first_time),
		last_time = max(last_time, excluded.last_time),
		updated_at = excluded.updated_at
`

const insertClickRawSQL = `
	INSERT INTO click_raw (
		id, event_date, click_time, media_id, program_id,
		ipaddress, useragent, referrer, raw_payload, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO NOTHING
`

// IngestClicks replaces the stored clicks for date with events. Events on
// other dates are skipped. It returns the number of clicks aggregated.
func (s *Store) IngestClicks(ctx context.Context, events []model.ClickEvent, date time.Time, storeRaw bool) (int, error) {
	day := formatDate(date)
	count := 0

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := clearClickDate(ctx, tx, day); err != nil {
			return err
		}

		rollup, err := tx.PrepareContext(ctx, upsertClickRollupSQL)
		if err != nil {
			return fmt.Errorf("prepare click rollup upsert: %w", err)
		}
		defer rollup.Close()

		now := formatTime(s.now())
		for i := range events {
			e := &events[i]
			if formatDate(e.ClickTime) != day {
				continue
			}
			if storeRaw {
				if _, err := tx.ExecContext(ctx, insertClickRawSQL, clickRawArgs(e, now)...); err != nil {
					return fmt.Errorf("insert raw click %d: %w", i, err)
				}
			}
			if _, err := rollup.ExecContext(ctx, clickRollupArgs(e, now)...); err != nil {
				return fmt.Errorf("upsert click rollup %d: %w", i, err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MergeClicks adds events to their dates' rollups without clearing. When
// storeRaw is set, clicks whose id is already stored are skipped.
func (s *Store) MergeClicks(ctx context.Context, events []model.ClickEvent, storeRaw bool) (int, int, error) {
	insertedCount, skipped := 0, 0

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(s.now())
		for i := range events {
			e := &events[i]
			if storeRaw {
				res, err := tx.ExecContext(ctx, insertClickRawSQL, clickRawArgs(e, now)...)
				if err != nil {
					return fmt.Errorf("insert raw click %d: %w", i, err)
				}
				added, err := inserted(res)
				if err != nil {
					return fmt.Errorf("insert raw click %d: %w", i, err)
				}
				if !added {
					skipped++
					continue
				}
			}
			if _, err := tx.ExecContext(ctx, upsertClickRollupSQL, clickRollupArgs(e, now)...); err != nil {
				return fmt.Errorf("upsert click rollup %d: %w", i, err)
			}
			insertedCount++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return insertedCount, skipped, nil
}

// ClearClickDate removes the rollups and raw clicks stored for date.
func (s *Store) ClearClickDate(ctx context.Context, date time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return clearClickDate(ctx, tx, formatDate(date))
	})
}

// FindClicksByCID returns the stored clicks for the given correlation ids.
func (s *Store) FindClicksByCID(ctx context.Context, cids []string) (map[string]model.ClickRef, error) {
	out := make(map[string]model.ClickRef, len(cids))
	if len(cids) == 0 {
		return out, nil
	}

	args := make([]any, len(cids))
	for i, id := range cids {
		args[i] = id
	}
	query := `SELECT id, ipaddress, useragent, click_time FROM click_raw WHERE id IN (` + placeholders(len(cids)) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query clicks by cid: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, clickTime string
		var ref model.ClickRef
		if err := rows.Scan(&id, &ref.IPAddress, &ref.UserAgent, &clickTime); err != nil {
			return nil, fmt.Errorf("scan click: %w", err)
		}
		t, err := s.parseTime(clickTime)
		if err != nil {
			s.logger.Warn("skipping click with unparseable time", "id", id, "click_time", clickTime)
			continue
		}
		ref.ClickTime = t
		out[id] = ref
	}
	return out, rows.Err()
}

// FetchClickAggregates returns the per-key click rollup rows for date.
func (s *Store) FetchClickAggregates(ctx context.Context, date time.Time) ([]model.ClickAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT media_id, program_id, ipaddress, useragent,
		       click_count, first_time, last_time, created_at, updated_at
		FROM click_ipua_daily
		WHERE date = ?
		ORDER BY ipaddress, useragent, media_id, program_id
	`, formatDate(date))
	if err != nil {
		return nil, fmt.Errorf("query click aggregates: %w", err)
	}
	defer rows.Close()

	var out []model.ClickAggregate
	for rows.Next() {
		a := model.ClickAggregate{Date: model.DateOf(date)}
		var times [4]string
		if err := rows.Scan(
			&a.MediaID, &a.ProgramID, &a.IPAddress, &a.UserAgent,
			&a.ClickCount, &times[0], &times[1], &times[2], &times[3],
		); err != nil {
			return nil, fmt.Errorf("scan click aggregate: %w", err)
		}
		parsed, err := s.parseTimes(times[:])
		if err != nil {
			return nil, fmt.Errorf("parse click aggregate times: %w", err)
		}
		a.FirstTime, a.LastTime, a.CreatedAt, a.UpdatedAt = parsed[0], parsed[1], parsed[2], parsed[3]
		out = append(out, a)
	}
	return out, rows.Err()
}

// FetchClickRollups returns every (ip, ua) group for date.
func (s *Store) FetchClickRollups(ctx context.Context, date time.Time) ([]model.IPUARollup, error) {
	query, args := groupedRollupQuery(clickTable, date, model.RollupQuery{}, false)
	return s.queryRollups(ctx, query, args)
}

// FetchSuspiciousClickRollups returns the (ip, ua) groups for date that meet
// at least one threshold in q, after the traffic filters in q.
func (s *Store) FetchSuspiciousClickRollups(ctx context.Context, date time.Time, q model.RollupQuery) ([]model.IPUARollup, error) {
	query, args := groupedRollupQuery(clickTable, date, q, true)
	if query == "" {
		return nil, nil
	}
	return s.queryRollups(ctx, query, args)
}

func clearClickDate(ctx context.Context, tx *sql.Tx, day string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM click_ipua_daily WHERE date = ?`, day); err != nil {
		return fmt.Errorf("clear click rollups: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM click_raw WHERE event_date = ?`, day); err != nil {
		return fmt.Errorf("clear raw clicks: %w", err)
	}
	return nil
}

func clickRawArgs(e *model.ClickEvent, now string) []any {
	id := e.ID
	if id == "" {
		id = "gen-" + ulid.Make().String()
	}
	return []any{
		id,
		formatDate(e.ClickTime),
		formatTime(e.ClickTime),
		e.MediaID,
		e.ProgramID,
		e.IPAddress,
		e.UserAgent,
		nullable(e.Referrer),
		nullableJSON(e.RawPayload),
		now,
		now,
	}
}

func clickRollupArgs(e *model.ClickEvent, now string) []any {
	ts := formatTime(e.ClickTime)
	return []any{
		formatDate(e.ClickTime),
		e.MediaID,
		e.ProgramID,
		e.IPAddress,
		e.UserAgent,
		ts,
		ts,
		now,
		now,
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (s *Store) parseTimes(values []string) ([]time.Time, error) {
	out := make([]time.Time, len(values))
	for i, v := range values {
		t, err := s.parseTime(v)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}
