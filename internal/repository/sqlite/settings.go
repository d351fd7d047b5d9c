package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jassnet/Fraudhunter/internal/model"
)

// LoadSettings returns every stored setting.
func (s *Store) LoadSettings(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM app_settings`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[key] = json.RawMessage(value)
	}
	return out, rows.Err()
}

// SaveSettings upserts values in one transaction.
func (s *Store) SaveSettings(ctx context.Context, values map[string]json.RawMessage) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(s.now())
		for key, value := range values {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO app_settings (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
			`, key, string(value), now); err != nil {
				return fmt.Errorf("upsert setting %s: %w", key, err)
			}
		}
		return nil
	})
}

// LatestDate returns the newest rollup date for unit; ok is false when the
// table is empty.
func (s *Store) LatestDate(ctx context.Context, unit model.EventUnit) (time.Time, bool, error) {
	table := clickTable
	if unit == model.UnitConversions {
		table = conversionTable
	}

	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(date) FROM "+table.name).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("query latest %s date: %w", unit, err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	date, err := model.ParseDate(latest.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse latest date: %w", err)
	}
	return date, true, nil
}
