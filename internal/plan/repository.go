package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrPlanNotFound     = errors.New("plan not found")
	ErrRevisionConflict = errors.New("plan revision conflict")
)

// Repository implements plan data access operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new plan repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const createPlanSQL = `
INSERT INTO plans (id, name, document)
VALUES ($1, $2, $3)
RETURNING id, name, document, revision, created_at, updated_at`

func (r *Repository) CreatePlan(ctx context.Context, req CreatePlanRequest) (*Plan, error) {
	var p Plan
	err := r.pool.QueryRow(ctx, createPlanSQL, uuid.New(), req.Name, req.Document).
		Scan(&p.ID, &p.Name, &p.Document, &p.Revision, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}
	return &p, nil
}

const getPlanSQL = `
SELECT id, name, document, revision, created_at, updated_at
FROM plans
WHERE id = $1`

func (r *Repository) GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error) {
	var p Plan
	err := r.pool.QueryRow(ctx, getPlanSQL, id).
		Scan(&p.ID, &p.Name, &p.Document, &p.Revision, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &p, nil
}

const listPlansSQL = `
SELECT id, name, document, revision, created_at, updated_at
FROM plans
ORDER BY updated_at DESC`

func (r *Repository) ListPlans(ctx context.Context) ([]Plan, error) {
	rows, err := r.pool.Query(ctx, listPlansSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		var p Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.Document, &p.Revision, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

const updatePlanSQL = `
UPDATE plans
SET name = $2, document = $3, revision = revision + 1, updated_at = now()
WHERE id = $1 AND revision = $4
RETURNING id, name, document, revision, created_at, updated_at`

// UpdatePlan replaces the document if the caller's revision still matches.
func (r *Repository) UpdatePlan(ctx context.Context, id uuid.UUID, req UpdatePlanRequest) (*Plan, error) {
	var p Plan
	err := r.pool.QueryRow(ctx, updatePlanSQL, id, req.Name, req.Document, req.Revision).
		Scan(&p.ID, &p.Name, &p.Document, &p.Revision, &p.CreatedAt, &p.UpdatedAt)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}

	// No row matched: distinguish a missing plan from a stale revision.
	if _, err := r.GetPlan(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrRevisionConflict
}

const deletePlanSQL = `
DELETE FROM plans WHERE id = $1`

func (r *Repository) DeletePlan(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, deletePlanSQL, id)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}
