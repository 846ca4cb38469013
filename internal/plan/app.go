package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Caps on stored plan documents. The outline editor has no server-side
// schema, so only shape and size are enforced here.
const maxDocumentBytes = 256 * 1024

// PlanRepository defines what the app layer needs from the repository
type PlanRepository interface {
	CreatePlan(ctx context.Context, req CreatePlanRequest) (*Plan, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error)
	ListPlans(ctx context.Context) ([]Plan, error)
	UpdatePlan(ctx context.Context, id uuid.UUID, req UpdatePlanRequest) (*Plan, error)
	DeletePlan(ctx context.Context, id uuid.UUID) error
}

// App handles plan business logic
type App struct {
	repo PlanRepository
}

// NewApp creates a new plan App
func NewApp(repo PlanRepository) *App {
	return &App{repo: repo}
}

// CreatePlan creates a new plan with validation
func (a *App) CreatePlan(ctx context.Context, req CreatePlanRequest) (*Plan, error) {
	if err := validateDocument(req.Name, req.Document); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	p, err := a.repo.CreatePlan(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}

	log.Info().Str("plan_id", p.ID.String()).Str("name", p.Name).Msg("created plan")
	return p, nil
}

// GetPlan retrieves a plan by ID
func (a *App) GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error) {
	return a.repo.GetPlan(ctx, id)
}

// ListPlans returns all plans, most recently updated first
func (a *App) ListPlans(ctx context.Context) ([]Plan, error) {
	return a.repo.ListPlans(ctx)
}

// UpdatePlan replaces a plan document, enforcing the revision check
func (a *App) UpdatePlan(ctx context.Context, id uuid.UUID, req UpdatePlanRequest) (*Plan, error) {
	if err := validateDocument(req.Name, req.Document); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	p, err := a.repo.UpdatePlan(ctx, id, req)
	if err != nil {
		if errors.Is(err, ErrRevisionConflict) {
			log.Warn().
				Str("plan_id", id.String()).
				Int64("stale_revision", req.Revision).
				Msg("plan update rejected on stale revision")
		}
		return nil, err
	}

	log.Info().Str("plan_id", p.ID.String()).Int64("revision", p.Revision).Msg("updated plan")
	return p, nil
}

// DeletePlan removes a plan
func (a *App) DeletePlan(ctx context.Context, id uuid.UUID) error {
	if err := a.repo.DeletePlan(ctx, id); err != nil {
		return err
	}
	log.Info().Str("plan_id", id.String()).Msg("deleted plan")
	return nil
}

func validateDocument(name string, doc json.RawMessage) error {
	if name == "" {
		return errors.New("name is required")
	}
	if len(doc) == 0 {
		return errors.New("document is required")
	}
	if len(doc) > maxDocumentBytes {
		return fmt.Errorf("document exceeds %d bytes", maxDocumentBytes)
	}
	if !json.Valid(doc) {
		return errors.New("document is not valid JSON")
	}
	return nil
}
