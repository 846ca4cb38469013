package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jdev09/woodshed/internal/timer/protocol"
)

// DefaultProfile is the single-user profile key.
const DefaultProfile = "default"

// Repository persists timer settings per profile as a JSONB document.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new settings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const getSettingsSQL = `
SELECT settings FROM settings WHERE profile = $1`

// GetSettings returns the stored settings for a profile, or the defaults
// when the profile has never been written.
func (r *Repository) GetSettings(ctx context.Context, profile string) (protocol.Settings, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, getSettingsSQL, profile).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return protocol.DefaultSettings(), nil
		}
		return protocol.Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}

	var s protocol.Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return protocol.Settings{}, fmt.Errorf("failed to decode stored settings: %w", err)
	}
	return s, nil
}

const upsertSettingsSQL = `
INSERT INTO settings (profile, settings)
VALUES ($1, $2)
ON CONFLICT (profile) DO UPDATE
SET settings = EXCLUDED.settings, updated_at = now()`

// UpsertSettings writes the full settings document inside the caller's tx.
func (r *Repository) UpsertSettings(ctx context.Context, tx pgx.Tx, profile string, s protocol.Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if _, err := tx.Exec(ctx, upsertSettingsSQL, profile, raw); err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}
	return nil
}
