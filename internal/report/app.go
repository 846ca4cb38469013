package report

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/jdev09/woodshed/internal/outbox"
	"github.com/jdev09/woodshed/internal/plan"
	"github.com/jdev09/woodshed/internal/practicelog"
	"github.com/jdev09/woodshed/internal/sqlutil"
)

const tokenBytes = 16 // 128-bit capability token

// ReportRepository defines what the app layer needs from the repository
type ReportRepository interface {
	InsertReport(ctx context.Context, tx pgx.Tx, rep *Report) error
	GetByToken(ctx context.Context, token string) (*Report, error)
}

// App builds and serves report snapshots.
type App struct {
	pool   *pgxpool.Pool
	repo   ReportRepository
	logs   *practicelog.Repository
	plans  *plan.Repository
	outbox *outbox.Repository
	clock  clockwork.Clock
}

// NewApp creates a new report App. plans may be nil when plan embedding is
// not wanted.
func NewApp(pool *pgxpool.Pool, repo ReportRepository, logs *practicelog.Repository, plans *plan.Repository, outboxRepo *outbox.Repository, clock clockwork.Clock) *App {
	return &App{pool: pool, repo: repo, logs: logs, plans: plans, outbox: outboxRepo, clock: clock}
}

// CreateReport freezes the practice log window into a snapshot and mints a
// sharing token for it.
func (a *App) CreateReport(ctx context.Context, req CreateReportRequest) (*Report, error) {
	if req.Title == "" {
		return nil, errors.New("validation failed: title is required")
	}
	if !req.To.After(req.From) {
		return nil, errors.New("validation failed: to must be after from")
	}

	snapshot, err := a.buildSnapshot(ctx, req)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	rep := &Report{
		ID:       uuid.New(),
		Token:    token,
		Title:    req.Title,
		Snapshot: raw,
	}

	err = sqlutil.WithTx(ctx, a.pool, func(tx pgx.Tx) error {
		if err := a.repo.InsertReport(ctx, tx, rep); err != nil {
			return err
		}
		payload, err := json.Marshal(map[string]string{
			"report_id": rep.ID.String(),
			"title":     rep.Title,
		})
		if err != nil {
			return fmt.Errorf("failed to encode report event: %w", err)
		}
		return a.outbox.Insert(ctx, tx, uuid.Nil, outbox.EventReportCreated, payload)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("report_id", rep.ID.String()).
		Str("title", rep.Title).
		Msg("created report")
	return rep, nil
}

// GetReport resolves a sharing token to its frozen snapshot.
func (a *App) GetReport(ctx context.Context, token string) (*Report, error) {
	return a.repo.GetByToken(ctx, token)
}

func (a *App) buildSnapshot(ctx context.Context, req CreateReportRequest) (*Snapshot, error) {
	days, err := a.logs.DailySummary(ctx, req.From, req.To)
	if err != nil {
		return nil, err
	}

	var totals SnapshotTotals
	for _, d := range days {
		totals.WorkCompletions += d.WorkCompletions
		totals.WorkSeconds += d.WorkSeconds
		totals.FullSessions += d.FullSessions
	}

	snapshot := &Snapshot{
		Title:       req.Title,
		From:        req.From,
		To:          req.To,
		GeneratedAt: a.clock.Now().UTC(),
		Days:        days,
		Totals:      totals,
	}

	if req.PlanID != nil && a.plans != nil {
		p, err := a.plans.GetPlan(ctx, *req.PlanID)
		if err != nil {
			return nil, err
		}
		snapshot.Plan = p.Document
	}
	return snapshot, nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate report token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
