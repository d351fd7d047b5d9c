package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jassnet/Fraudhunter/internal/model"
)

// detailChunkSize bounds the (ip, ua) pairs per details query so the bound
// parameters stay well under SQLite's limit.
const detailChunkSize = 400

// UpsertMedia inserts or updates media rows.
func (s *Store) UpsertMedia(ctx context.Context, media []model.Media) (int, error) {
	return upsertAll(ctx, s, media, `
		INSERT INTO master_media (id, name, user_id, state, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, user_id = excluded.user_id,
			state = excluded.state, updated_at = excluded.updated_at
	`, func(m model.Media) (string, []any) {
		return m.ID, []any{m.ID, m.Name, nullable(m.UserID), nullable(m.State), s.stamp(m.UpdatedAt)}
	})
}

// UpsertPromotions inserts or updates promotion rows.
func (s *Store) UpsertPromotions(ctx context.Context, promotions []model.Promotion) (int, error) {
	return upsertAll(ctx, s, promotions, `
		INSERT INTO master_promotion (id, name, state, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, state = excluded.state, updated_at = excluded.updated_at
	`, func(p model.Promotion) (string, []any) {
		return p.ID, []any{p.ID, p.Name, nullable(p.State), s.stamp(p.UpdatedAt)}
	})
}

// UpsertAffiliates inserts or updates affiliate rows.
func (s *Store) UpsertAffiliates(ctx context.Context, affiliates []model.Affiliate) (int, error) {
	return upsertAll(ctx, s, affiliates, `
		INSERT INTO master_user (id, name, company, state, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, company = excluded.company,
			state = excluded.state, updated_at = excluded.updated_at
	`, func(a model.Affiliate) (string, []any) {
		return a.ID, []any{a.ID, a.Name, nullable(a.Company), nullable(a.State), s.stamp(a.UpdatedAt)}
	})
}

// Counts returns row counts of each master table and the last sync time.
func (s *Store) Counts(ctx context.Context) (*model.MasterCounts, error) {
	var c model.MasterCounts
	var last sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM master_media),
			(SELECT COUNT(*) FROM master_promotion),
			(SELECT COUNT(*) FROM master_user),
			(SELECT MAX(updated_at) FROM (
				SELECT updated_at FROM master_media
				UNION ALL SELECT updated_at FROM master_promotion
				UNION ALL SELECT updated_at FROM master_user
			))
	`).Scan(&c.Media, &c.Promotions, &c.Affiliates, &last)
	if err != nil {
		return nil, fmt.Errorf("query master counts: %w", err)
	}
	if last.Valid {
		t, err := s.parseTime(last.String)
		if err == nil {
			c.LastSynced = &t
		}
	}
	return &c, nil
}

// FetchSuspiciousDetails returns each pair's per-media/program breakdown on
// date joined with master names, falling back to ids.
func (s *Store) FetchSuspiciousDetails(ctx context.Context, unit model.EventUnit, date time.Time, pairs []model.IPUA) (map[model.IPUA][]model.SuspiciousDetail, error) {
	out := make(map[model.IPUA][]model.SuspiciousDetail, len(pairs))

	table := clickTable
	if unit == model.UnitConversions {
		table = conversionTable
	}

	for start := 0; start < len(pairs); start += detailChunkSize {
		end := min(start+detailChunkSize, len(pairs))
		chunk := pairs[start:end]

		args := []any{formatDate(date)}
		conds := make([]string, len(chunk))
		for i, p := range chunk {
			conds[i] = "(c.ipaddress = ? AND c.useragent = ?)"
			args = append(args, p.IPAddress, p.UserAgent)
		}

		query := fmt.Sprintf(`
			SELECT c.ipaddress, c.useragent, c.media_id, c.program_id,
			       SUM(c.%[1]s) AS cnt,
			       COALESCE(m.name, c.media_id),
			       COALESCE(p.name, c.program_id),
			       COALESCE(u.name, m.user_id, '')
			FROM %[2]s c
			LEFT JOIN master_media m ON m.id = c.media_id
			LEFT JOIN master_promotion p ON p.id = c.program_id
			LEFT JOIN master_user u ON u.id = m.user_id
			WHERE c.date = ? AND (%[3]s)
			GROUP BY c.ipaddress, c.useragent, c.media_id, c.program_id
			ORDER BY cnt DESC, c.media_id, c.program_id
		`, table.countColumn, table.name, strings.Join(conds, " OR "))

		if err := s.scanDetails(ctx, query, args, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) scanDetails(ctx context.Context, query string, args []any, out map[model.IPUA][]model.SuspiciousDetail) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query suspicious details: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d model.SuspiciousDetail
		if err := rows.Scan(
			&d.IPAddress, &d.UserAgent, &d.MediaID, &d.ProgramID, &d.Count,
			&d.MediaName, &d.ProgramName, &d.AffiliateName,
		); err != nil {
			return fmt.Errorf("scan suspicious detail: %w", err)
		}
		key := model.IPUA{IPAddress: d.IPAddress, UserAgent: d.UserAgent}
		out[key] = append(out[key], d)
	}
	return rows.Err()
}

func (s *Store) stamp(t time.Time) string {
	if t.IsZero() {
		t = s.now()
	}
	return formatTime(t)
}

// upsertAll writes every row with a non-empty id in one transaction.
func upsertAll[T any](ctx context.Context, s *Store, rows []T, query string, args func(T) (string, []any)) (int, error) {
	written := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare master upsert: %w", err)
		}
		defer stmt.Close()

		for _, row := range rows {
			id, values := args(row)
			if id == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, values...); err != nil {
				return fmt.Errorf("upsert master %s: %w", id, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}
