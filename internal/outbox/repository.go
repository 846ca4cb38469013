package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads and writes outbox rows. Insert takes a pgx.Tx so the
// event commits atomically with the domain write that produced it.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const insertEventSQL = `
INSERT INTO outbox (id, session_id, event_type, payload)
VALUES ($1, $2, $3, $4)`

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID, eventType string, payload []byte) error {
	if _, err := tx.Exec(ctx, insertEventSQL, uuid.New(), sessionID, eventType, payload); err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", eventType, err)
	}
	return nil
}

const fetchUnsentSQL = `
SELECT id, session_id, event_type, payload, created_at
FROM outbox
WHERE sent_at IS NULL
ORDER BY created_at
LIMIT $1`

func (r *Repository) FetchUnsent(ctx context.Context, limit int32) ([]Event, error) {
	rows, err := r.pool.Query(ctx, fetchUnsentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

const fetchByIDSQL = `
SELECT id, session_id, event_type, payload, created_at
FROM outbox
WHERE id = $1 AND sent_at IS NULL`

func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	var e Event
	err := r.pool.QueryRow(ctx, fetchByIDSQL, id).
		Scan(&e.ID, &e.SessionID, &e.EventType, &e.Payload, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("outbox event not found or already sent")
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	return &e, nil
}

const markSentSQL = `
UPDATE outbox SET sent_at = now() WHERE id = $1`

func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, markSentSQL, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}
