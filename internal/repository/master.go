package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jassnet/Fraudhunter/internal/model"
)

// MasterRepository stores media, promotion and affiliate master data.
type MasterRepository struct {
	repo *Repository
}

// NewMasterRepository creates a new MasterRepository.
func NewMasterRepository(repo *Repository) *MasterRepository {
	return &MasterRepository{repo: repo}
}

// UpsertMedia inserts or updates media rows and returns how many were written.
func (r *MasterRepository) UpsertMedia(ctx context.Context, media []model.Media) (int, error) {
	batch := &pgx.Batch{}
	for _, m := range media {
		if m.ID == "" {
			continue
		}
		batch.Queue(`
			INSERT INTO master_media (id, name, user_id, state, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				user_id = EXCLUDED.user_id,
				state = EXCLUDED.state,
				updated_at = EXCLUDED.updated_at
		`, m.ID, m.Name, nullableString(m.UserID), nullableString(m.State), updatedAt(m.UpdatedAt))
	}
	return r.sendBatch(ctx, batch, "media")
}

// UpsertPromotions inserts or updates promotion rows.
func (r *MasterRepository) UpsertPromotions(ctx context.Context, promotions []model.Promotion) (int, error) {
	batch := &pgx.Batch{}
	for _, p := range promotions {
		if p.ID == "" {
			continue
		}
		batch.Queue(`
			INSERT INTO master_promotion (id, name, state, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				state = EXCLUDED.state,
				updated_at = EXCLUDED.updated_at
		`, p.ID, p.Name, nullableString(p.State), updatedAt(p.UpdatedAt))
	}
	return r.sendBatch(ctx, batch, "promotion")
}

// UpsertAffiliates inserts or updates affiliate rows.
func (r *MasterRepository) UpsertAffiliates(ctx context.Context, affiliates []model.Affiliate) (int, error) {
	batch := &pgx.Batch{}
	for _, a := range affiliates {
		if a.ID == "" {
			continue
		}
		batch.Queue(`
			INSERT INTO master_user (id, name, company, state, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				company = EXCLUDED.company,
				state = EXCLUDED.state,
				updated_at = EXCLUDED.updated_at
		`, a.ID, a.Name, nullableString(a.Company), nullableString(a.State), updatedAt(a.UpdatedAt))
	}
	return r.sendBatch(ctx, batch, "user")
}

// Counts returns row counts of each master table and the last sync time.
func (r *MasterRepository) Counts(ctx context.Context) (*model.MasterCounts, error) {
	var c model.MasterCounts
	err := r.repo.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM master_media),
			(SELECT COUNT(*) FROM master_promotion),
			(SELECT COUNT(*) FROM master_user),
			GREATEST(
				(SELECT MAX(updated_at) FROM master_media),
				(SELECT MAX(updated_at) FROM master_promotion),
				(SELECT MAX(updated_at) FROM master_user)
			)
	`).Scan(&c.Media, &c.Promotions, &c.Affiliates, &c.LastSynced)
	if err != nil {
		return nil, fmt.Errorf("query master counts: %w", err)
	}
	return &c, nil
}

// FetchSuspiciousDetails returns, for each requested IP/UA pair, its
// per-media/program breakdown on date joined with master names. Names
// fall back to ids when the master row is missing.
func (r *MasterRepository) FetchSuspiciousDetails(ctx context.Context, unit model.EventUnit, date time.Time, pairs []model.IPUA) (map[model.IPUA][]model.SuspiciousDetail, error) {
	out := make(map[model.IPUA][]model.SuspiciousDetail, len(pairs))
	if len(pairs) == 0 {
		return out, nil
	}

	table := clickTable
	if unit == model.UnitConversions {
		table = conversionTable
	}

	ips := make([]string, len(pairs))
	uas := make([]string, len(pairs))
	for i, p := range pairs {
		ips[i] = p.IPAddress
		uas[i] = p.UserAgent
	}

	query := fmt.Sprintf(`
		SELECT c.ipaddress, c.useragent, c.media_id, c.program_id,
		       SUM(c.%[1]s) AS cnt,
		       COALESCE(m.name, c.media_id),
		       COALESCE(p.name, c.program_id),
		       COALESCE(u.name, m.user_id, '')
		FROM %[2]s c
		JOIN unnest($2::text[], $3::text[]) AS k(ip, ua)
		  ON c.ipaddress = k.ip AND c.useragent = k.ua
		LEFT JOIN master_media m ON m.id = c.media_id
		LEFT JOIN master_promotion p ON p.id = c.program_id
		LEFT JOIN master_user u ON u.id = m.user_id
		WHERE c.date = $1
		GROUP BY c.ipaddress, c.useragent, c.media_id, c.program_id, m.name, m.user_id, p.name, u.name
		ORDER BY cnt DESC, c.media_id, c.program_id
	`, table.countColumn, table.name)

	rows, err := r.repo.pool.Query(ctx, query, model.DateOf(date), ips, uas)
	if err != nil {
		return nil, fmt.Errorf("query suspicious details: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d model.SuspiciousDetail
		if err := rows.Scan(
			&d.IPAddress, &d.UserAgent, &d.MediaID, &d.ProgramID, &d.Count,
			&d.MediaName, &d.ProgramName, &d.AffiliateName,
		); err != nil {
			return nil, fmt.Errorf("scan suspicious detail: %w", err)
		}
		key := model.IPUA{IPAddress: d.IPAddress, UserAgent: d.UserAgent}
		out[key] = append(out[key], d)
	}
	return out, rows.Err()
}

func (r *MasterRepository) sendBatch(ctx context.Context, batch *pgx.Batch, table string) (int, error) {
	if batch.Len() == 0 {
		return 0, nil
	}
	if err := r.repo.pool.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("upsert %s masters: %w", table, err)
	}
	return batch.Len(), nil
}

func updatedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
