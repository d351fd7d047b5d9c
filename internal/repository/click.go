package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/jassnet/Fraudhunter/internal/model"
)

const upsertClickRollupSQL = `
	INSERT INTO click_ipua_daily (
		date, media_id, program_id, ipaddress, useragent,
		click_count, first_time, last_time, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, 1, $6, $6, NOW(), NOW())
	ON CONFLICT (date, media_id, program_id, ipaddress, useragent) DO UPDATE SET
		click_count = click_ipua_daily.click_count + 1,
		first_time = LEAST(click_ipua_daily.first_time, EXCLUDED.first_time),
		last_time = GREATEST(click_ipua_daily.last_time, EXCLUDED.last_time),
		updated_at = NOW()
`

const insertClickRawSQL = `
	INSERT INTO click_raw (
		id, event_date, click_time, media_id, program_id,
		ipaddress, useragent, referrer, raw_payload, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	ON CONFLICT (id) DO NOTHING
`

// ClickRepository stores raw clicks and daily click rollups.
type ClickRepository struct {
	repo *Repository
}

// NewClickRepository creates a new ClickRepository.
func NewClickRepository(repo *Repository) *ClickRepository {
	return &ClickRepository{repo: repo}
}

// IngestClicks replaces the stored clicks for date with events. Events on
// other dates are skipped. It returns the number of clicks aggregated.
func (r *ClickRepository) IngestClicks(ctx context.Context, events []model.ClickEvent, date time.Time, storeRaw bool) (int, error) {
	date = model.DateOf(date)

	tx, err := r.repo.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := clearClickDate(ctx, tx, date); err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	count := 0
	for i := range events {
		e := &events[i]
		if !e.Date().Equal(date) {
			continue
		}
		if storeRaw {
			batch.Queue(insertClickRawSQL, clickRawArgs(e, clickID(e))...)
		}
		batch.Queue(upsertClickRollupSQL, date, e.MediaID, e.ProgramID, e.IPAddress, e.UserAgent, e.ClickTime)
		count++
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, fmt.Errorf("store clicks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return count, nil
}

// MergeClicks adds events to their dates' rollups without clearing. When
// storeRaw is set, clicks whose id is already stored are skipped.
func (r *ClickRepository) MergeClicks(ctx context.Context, events []model.ClickEvent, storeRaw bool) (int, int, error) {
	tx, err := r.repo.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	inserted, skipped := 0, 0
	for i := range events {
		e := &events[i]
		if storeRaw {
			tag, err := tx.Exec(ctx, insertClickRawSQL, clickRawArgs(e, clickID(e))...)
			if err != nil {
				return 0, 0, fmt.Errorf("insert raw click %d: %w", i, err)
			}
			if tag.RowsAffected() == 0 {
				skipped++
				continue
			}
		}
		if _, err := tx.Exec(ctx, upsertClickRollupSQL, e.Date(), e.MediaID, e.ProgramID, e.IPAddress, e.UserAgent, e.ClickTime); err != nil {
			return 0, 0, fmt.Errorf("upsert click rollup %d: %w", i, err)
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit transaction: %w", err)
	}
	return inserted, skipped, nil
}

// ClearClickDate removes the rollups and raw clicks stored for date.
func (r *ClickRepository) ClearClickDate(ctx context.Context, date time.Time) error {
	tx, err := r.repo.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := clearClickDate(ctx, tx, model.DateOf(date)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FindClicksByCID returns the stored clicks for the given correlation ids.
// Unknown ids are absent from the result.
func (r *ClickRepository) FindClicksByCID(ctx context.Context, cids []string) (map[string]model.ClickRef, error) {
	out := make(map[string]model.ClickRef, len(cids))
	if len(cids) == 0 {
		return out, nil
	}

	rows, err := r.repo.pool.Query(ctx, `
		SELECT id, ipaddress, useragent, click_time
		FROM click_raw
		WHERE id = ANY($1)
	`, cids)
	if err != nil {
		return nil, fmt.Errorf("query clicks by cid: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var ref model.ClickRef
		if err := rows.Scan(&id, &ref.IPAddress, &ref.UserAgent, &ref.ClickTime); err != nil {
			return nil, fmt.Errorf("scan click: %w", err)
		}
		out[id] = ref
	}
	return out, rows.Err()
}

// FetchClickAggregates returns the per-key click rollup rows for date.
func (r *ClickRepository) FetchClickAggregates(ctx context.Context, date time.Time) ([]model.ClickAggregate, error) {
	rows, err := r.repo.pool.Query(ctx, `
		SELECT date, media_id, program_id, ipaddress, useragent,
		       click_count, first_time, last_time, created_at, updated_at
		FROM click_ipua_daily
		WHERE date = $1
		ORDER BY ipaddress, useragent, media_id, program_id
	`, model.DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("query click aggregates: %w", err)
	}
	defer rows.Close()

	var out []model.ClickAggregate
	for rows.Next() {
		var a model.ClickAggregate
		if err := rows.Scan(
			&a.Date, &a.MediaID, &a.ProgramID, &a.IPAddress, &a.UserAgent,
			&a.ClickCount, &a.FirstTime, &a.LastTime, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan click aggregate: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// FetchClickRollups returns every (ip, ua) group for date.
func (r *ClickRepository) FetchClickRollups(ctx context.Context, date time.Time) ([]model.IPUARollup, error) {
	query, args := groupedRollupQuery(clickTable, date, model.RollupQuery{}, false)
	return r.repo.queryRollups(ctx, query, args)
}

// FetchSuspiciousClickRollups returns the (ip, ua) groups for date that meet
// at least one threshold in q, after the traffic filters in q.
func (r *ClickRepository) FetchSuspiciousClickRollups(ctx context.Context, date time.Time, q model.RollupQuery) ([]model.IPUARollup, error) {
	query, args := groupedRollupQuery(clickTable, date, q, true)
	if query == "" {
		return nil, nil
	}
	return r.repo.queryRollups(ctx, query, args)
}

func clearClickDate(ctx context.Context, tx pgx.Tx, date time.Time) error {
	if _, err := tx.Exec(ctx, `DELETE FROM click_ipua_daily WHERE date = $1`, date); err != nil {
		return fmt.Errorf("clear click rollups: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM click_raw WHERE event_date = $1`, date); err != nil {
		return fmt.Errorf("clear raw clicks: %w", err)
	}
	return nil
}

// clickID returns the click's correlation id, or a fresh one when the
// source omitted it. Generated ids never collide, so such clicks are never
// deduplicated.
func clickID(e *model.ClickEvent) string {
	if e.ID != "" {
		return e.ID
	}
	return "gen-" + ulid.Make().String()
}

func clickRawArgs(e *model.ClickEvent, id string) []any {
	return []any{
		id,
		e.Date(),
		e.ClickTime,
		e.MediaID,
		e.ProgramID,
		e.IPAddress,
		e.UserAgent,
		nullableString(e.Referrer),
		nullableJSON(e.RawPayload),
	}
}

// nullableString returns nil for empty strings.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableJSON returns nil for an empty payload so JSONB stays NULL.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
