package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/jdev09/woodshed/internal/outbox"
	"github.com/jdev09/woodshed/internal/sqlutil"
	"github.com/jdev09/woodshed/internal/timer/protocol"
)

// SessionApplier pushes a settings patch to live timer sessions.
type SessionApplier interface {
	ApplySettings(ctx context.Context, patch protocol.SettingsPatch)
}

// App handles settings business logic. Updates are merge-on-write: the
// stored document is read, the patch applied, and the result written back
// together with an outbox event in one transaction.
type App struct {
	pool     *pgxpool.Pool
	repo     *Repository
	outbox   *outbox.Repository
	sessions SessionApplier
}

// NewApp creates a new settings App. sessions may be nil when no live
// session fanout is wanted.
func NewApp(pool *pgxpool.Pool, repo *Repository, outboxRepo *outbox.Repository, sessions SessionApplier) *App {
	return &App{pool: pool, repo: repo, outbox: outboxRepo, sessions: sessions}
}

// GetSettings returns the profile's settings, defaults included.
func (a *App) GetSettings(ctx context.Context, profile string) (protocol.Settings, error) {
	return a.repo.GetSettings(ctx, profile)
}

// UpdateSettings merges the patch into the stored settings, persists the
// result, and forwards the patch to running sessions.
func (a *App) UpdateSettings(ctx context.Context, profile string, patch protocol.SettingsPatch) (protocol.Settings, error) {
	if err := validatePatch(patch); err != nil {
		return protocol.Settings{}, fmt.Errorf("validation failed: %w", err)
	}

	current, err := a.repo.GetSettings(ctx, profile)
	if err != nil {
		return protocol.Settings{}, err
	}
	merged := patch.Apply(current)

	err = sqlutil.WithTx(ctx, a.pool, func(tx pgx.Tx) error {
		if err := a.repo.UpsertSettings(ctx, tx, profile, merged); err != nil {
			return err
		}
		payload, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("failed to encode settings event: %w", err)
		}
		return a.outbox.Insert(ctx, tx, uuid.Nil, outbox.EventSettingsUpdated, payload)
	})
	if err != nil {
		return protocol.Settings{}, err
	}

	log.Info().
		Str("profile", profile).
		Int("work_minutes", merged.WorkMinutes).
		Int("break_minutes", merged.BreakMinutes).
		Int("total_iterations", merged.TotalIterations).
		Msg("updated settings")

	if a.sessions != nil {
		a.sessions.ApplySettings(ctx, patch)
	}
	return merged, nil
}

func validatePatch(patch protocol.SettingsPatch) error {
	if patch.WorkMinutes != nil && *patch.WorkMinutes <= 0 {
		return errors.New("work_minutes must be positive")
	}
	if patch.BreakMinutes != nil && *patch.BreakMinutes <= 0 {
		return errors.New("break_minutes must be positive")
	}
	if patch.TotalIterations != nil && *patch.TotalIterations <= 0 {
		return errors.New("total_iterations must be positive")
	}
	return nil
}
