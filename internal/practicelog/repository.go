package practicelog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jdev09/woodshed/internal/timer/protocol"
)

// Repository implements practice log data access operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new practice log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const insertEntrySQL = `
INSERT INTO practice_log (id, session_id, mode, iteration, duration_sec, practice_complete, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// InsertEntry writes an entry inside the caller's tx so it commits together
// with the outbox event announcing it.
func (r *Repository) InsertEntry(ctx context.Context, tx pgx.Tx, e Entry) error {
	_, err := tx.Exec(ctx, insertEntrySQL,
		e.ID, e.SessionID, string(e.Mode), e.Iteration, e.DurationSec, e.PracticeComplete, e.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert practice log entry: %w", err)
	}
	return nil
}

const listRangeSQL = `
SELECT id, session_id, mode, iteration, duration_sec, practice_complete, completed_at
FROM practice_log
WHERE completed_at >= $1 AND completed_at < $2
ORDER BY completed_at`

// ListRange returns entries completed in [from, to).
func (r *Repository) ListRange(ctx context.Context, from, to time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, listRangeSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list practice log entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var mode string
		if err := rows.Scan(&e.ID, &e.SessionID, &mode, &e.Iteration, &e.DurationSec, &e.PracticeComplete, &e.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan practice log entry: %w", err)
		}
		e.Mode = protocol.Mode(mode)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const dailySummarySQL = `
SELECT
    date_trunc('day', completed_at) AS day,
    count(*) FILTER (WHERE mode = 'work')                            AS work_completions,
    coalesce(sum(duration_sec) FILTER (WHERE mode = 'work'), 0)      AS work_seconds,
    count(*) FILTER (WHERE mode = 'work' AND practice_complete)     AS full_sessions
FROM practice_log
WHERE completed_at >= $1 AND completed_at < $2
GROUP BY day
ORDER BY day`

// DailySummary aggregates work completions per day in [from, to).
func (r *Repository) DailySummary(ctx context.Context, from, to time.Time) ([]DaySummary, error) {
	rows, err := r.pool.Query(ctx, dailySummarySQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize practice log: %w", err)
	}
	defer rows.Close()

	var days []DaySummary
	for rows.Next() {
		var d DaySummary
		if err := rows.Scan(&d.Day, &d.WorkCompletions, &d.WorkSeconds, &d.FullSessions); err != nil {
			return nil, fmt.Errorf("failed to scan day summary: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}
