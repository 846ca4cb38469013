package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrReportNotFound = errors.New("report not found")

// Repository implements report data access operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new report repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const insertReportSQL = `
INSERT INTO reports (id, token, title, snapshot)
VALUES ($1, $2, $3, $4)
RETURNING created_at`

// InsertReport writes the report inside the caller's tx so it commits with
// the outbox event announcing it.
func (r *Repository) InsertReport(ctx context.Context, tx pgx.Tx, rep *Report) error {
	err := tx.QueryRow(ctx, insertReportSQL, rep.ID, rep.Token, rep.Title, rep.Snapshot).
		Scan(&rep.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

const getByTokenSQL = `
SELECT id, token, title, snapshot, created_at
FROM reports
WHERE token = $1`

func (r *Repository) GetByToken(ctx context.Context, token string) (*Report, error) {
	var rep Report
	err := r.pool.QueryRow(ctx, getByTokenSQL, token).
		Scan(&rep.ID, &rep.Token, &rep.Title, &rep.Snapshot, &rep.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to get report by token: %w", err)
	}
	return &rep, nil
}
