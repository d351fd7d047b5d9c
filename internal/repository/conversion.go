package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jassnet/Fraudhunter/internal/model"
)

const upsertConversionRollupSQL = `
	INSERT INTO conversion_ipua_daily (
		date, media_id, program_id, ipaddress, useragent,
		conversion_count, first_time, last_time, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, 1, $6, $6, NOW(), NOW())
	ON CONFLICT (date, media_id, program_id, ipaddress, useragent) DO UPDATE SET
		conversion_count = conversion_ipua_daily.conversion_count + 1,
		first_time = LEAST(conversion_ipua_daily.first_time, EXCLUDED.first_time),
		last_time = GREATEST(conversion_ipua_daily.last_time, EXCLUDED.last_time),
		updated_at = NOW()
`

const insertConversionRawSQL = `
	INSERT INTO conversion_raw (
		id, cid, event_date, conversion_time, click_time,
		media_id, program_id, user_id,
		postback_ipaddress, postback_useragent,
		entry_ipaddress, entry_useragent,
		click_ipaddress, click_useragent,
		state, raw_payload, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
	ON CONFLICT (id) DO NOTHING
`

// ConversionRepository stores raw conversions and daily conversion rollups.
type ConversionRepository struct {
	repo *Repository
}

// NewConversionRepository creates a new ConversionRepository.
func NewConversionRepository(repo *Repository) *ConversionRepository {
	return &ConversionRepository{repo: repo}
}

// IngestConversions replaces the stored conversions for date with events.
// Only conversions with an entry IP and UA reach the rollups. It returns
// the number of conversions stored.
func (r *ConversionRepository) IngestConversions(ctx context.Context, events []model.ConversionEvent, date time.Time) (int, error) {
	date = model.DateOf(date)

	tx, err := r.repo.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := clearConversionDate(ctx, tx, date); err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	seen := make(map[string]struct{}, len(events))
	count := 0
	for i := range events {
		e := &events[i]
		if !e.Date().Equal(date) {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}

		batch.Queue(insertConversionRawSQL, conversionRawArgs(e)...)
		if e.HasEntrySignal() {
			batch.Queue(upsertConversionRollupSQL, date, e.MediaID, e.ProgramID, e.EntryIPAddress, e.EntryUserAgent, e.ConversionTime)
		}
		count++
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, fmt.Errorf("store conversions: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return count, nil
}

// MergeConversions adds conversions not yet stored (by conversion id) and
// returns how many were new and how many were skipped as duplicates.
func (r *ConversionRepository) MergeConversions(ctx context.Context, events []model.ConversionEvent) (int, int, error) {
	tx, err := r.repo.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	inserted, skipped := 0, 0
	for i := range events {
		e := &events[i]
		tag, err := tx.Exec(ctx, insertConversionRawSQL, conversionRawArgs(e)...)
		if err != nil {
			return 0, 0, fmt.Errorf("insert raw conversion %s: %w", e.ID, err)
		}
		if tag.RowsAffected() == 0 {
			skipped++
			continue
		}
		if e.HasEntrySignal() {
			if _, err := tx.Exec(ctx, upsertConversionRollupSQL,
				e.Date(), e.MediaID, e.ProgramID, e.EntryIPAddress, e.EntryUserAgent, e.ConversionTime,
			); err != nil {
				return 0, 0, fmt.Errorf("upsert conversion rollup %s: %w", e.ID, err)
			}
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit transaction: %w", err)
	}
	return inserted, skipped, nil
}

// FetchConversionRollups returns every (entry ip, entry ua) group for date.
func (r *ConversionRepository) FetchConversionRollups(ctx context.Context, date time.Time) ([]model.IPUARollup, error) {
	query, args := groupedRollupQuery(conversionTable, date, model.RollupQuery{}, false)
	return r.repo.queryRollups(ctx, query, args)
}

// FetchSuspiciousConversionRollups returns the groups for date meeting at
// least one threshold in q, after the traffic filters in q.
func (r *ConversionRepository) FetchSuspiciousConversionRollups(ctx context.Context, date time.Time, q model.RollupQuery) ([]model.IPUARollup, error) {
	query, args := groupedRollupQuery(conversionTable, date, q, true)
	if query == "" {
		return nil, nil
	}
	return r.repo.queryRollups(ctx, query, args)
}

// FetchClickToConversionGaps folds conversion_time - click_time per entry
// IP/UA over the raw conversions of date that carry a click time.
func (r *ConversionRepository) FetchClickToConversionGaps(ctx context.Context, date time.Time) (map[model.IPUA]model.GapStats, error) {
	rows, err := r.repo.pool.Query(ctx, `
		SELECT entry_ipaddress, entry_useragent, click_time, conversion_time
		FROM conversion_raw
		WHERE event_date = $1
		  AND click_time IS NOT NULL
		  AND COALESCE(entry_ipaddress, '') <> ''
		  AND COALESCE(entry_useragent, '') <> ''
	`, model.DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("query conversion gaps: %w", err)
	}
	defer rows.Close()

	gaps := make(map[model.IPUA]model.GapStats)
	for rows.Next() {
		var key model.IPUA
		var clickTime, conversionTime time.Time
		if err := rows.Scan(&key.IPAddress, &key.UserAgent, &clickTime, &conversionTime); err != nil {
			return nil, fmt.Errorf("scan conversion gap: %w", err)
		}
		model.FoldGap(gaps, key, clickTime, conversionTime)
	}
	return gaps, rows.Err()
}

func clearConversionDate(ctx context.Context, tx pgx.Tx, date time.Time) error {
	if _, err := tx.Exec(ctx, `DELETE FROM conversion_ipua_daily WHERE date = $1`, date); err != nil {
		return fmt.Errorf("clear conversion rollups: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM conversion_raw WHERE event_date = $1`, date); err != nil {
		return fmt.Errorf("clear raw conversions: %w", err)
	}
	return nil
}

func conversionRawArgs(e *model.ConversionEvent) []any {
	var clickTime any
	if e.ClickTime != nil {
		clickTime = *e.ClickTime
	}
	return []any{
		e.ID,
		nullableString(e.CID),
		e.Date(),
		e.ConversionTime,
		clickTime,
		e.MediaID,
		e.ProgramID,
		nullableString(e.UserID),
		nullableString(e.PostbackIPAddress),
		nullableString(e.PostbackUserAgent),
		nullableString(e.EntryIPAddress),
		nullableString(e.EntryUserAgent),
		nullableString(e.ClickIPAddress),
		nullableString(e.ClickUserAgent),
		nullableString(e.State),
		nullableJSON(e.RawPayload),
	}
}
