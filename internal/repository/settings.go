package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SettingsRepository persists operator settings as key/JSON pairs.
type SettingsRepository struct {
	repo *Repository
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(repo *Repository) *SettingsRepository {
	return &SettingsRepository{repo: repo}
}

// LoadSettings returns every stored setting.
func (r *SettingsRepository) LoadSettings(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := r.repo.pool.Query(ctx, `SELECT key, value FROM app_settings`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[key] = json.RawMessage(value)
	}
	return out, rows.Err()
}

// SaveSettings upserts values in one transaction.
func (r *SettingsRepository) SaveSettings(ctx context.Context, values map[string]json.RawMessage) error {
	if len(values) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for key, value := range values {
		batch.Queue(`
			INSERT INTO app_settings (key, value, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		`, key, string(value))
	}

	tx, err := r.repo.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return tx.Commit(ctx)
}
