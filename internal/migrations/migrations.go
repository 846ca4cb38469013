package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Up applies all pending schema migrations.
// Uses the goose v3 Provider API (no global state, context-aware).
func Up(ctx context.Context, db *sql.DB) error {
	// Strip the "sql/" prefix so goose sees files at the root of the FS.
	subFS, err := fs.Sub(migrationsFS, "sql")
	if err != nil {
		return fmt.Errorf("creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, subFS)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for _, r := range results {
		log.Info().
			Str("source", r.Source.Path).
			Int64("duration_ms", r.Duration.Milliseconds()).
			Msg("applied migration")
	}

	return nil
}
