package practicelog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/jdev09/woodshed/internal/outbox"
	"github.com/jdev09/woodshed/internal/sqlutil"
	"github.com/jdev09/woodshed/internal/timer/protocol"
)

// Recorder persists confirmed phase completions. The log row and the
// outbox event announcing it commit in one transaction.
type Recorder struct {
	pool   *pgxpool.Pool
	repo   *Repository
	outbox *outbox.Repository
	clock  clockwork.Clock
}

// NewRecorder creates a new Recorder.
func NewRecorder(pool *pgxpool.Pool, repo *Repository, outboxRepo *outbox.Repository, clock clockwork.Clock) *Recorder {
	return &Recorder{pool: pool, repo: repo, outbox: outboxRepo, clock: clock}
}

// RecordCompletion logs one completed phase for a session.
func (r *Recorder) RecordCompletion(ctx context.Context, sessionID uuid.UUID, completed protocol.Mode, iteration, durationSec int, practiceComplete bool) error {
	entry := Entry{
		ID:               uuid.New(),
		SessionID:        sessionID,
		Mode:             completed,
		Iteration:        iteration,
		DurationSec:      durationSec,
		PracticeComplete: practiceComplete,
		CompletedAt:      r.clock.Now().UTC(),
	}

	err := sqlutil.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := r.repo.InsertEntry(ctx, tx, entry); err != nil {
			return err
		}
		payload, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to encode completion event: %w", err)
		}
		return r.outbox.Insert(ctx, tx, sessionID, outbox.EventCompletionRecorded, payload)
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("mode", string(completed)).
		Int("iteration", iteration).
		Bool("practice_complete", practiceComplete).
		Msg("recorded completion")
	return nil
}
