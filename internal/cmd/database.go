package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/jdev09/woodshed/internal/dbconfig"
	"github.com/jdev09/woodshed/internal/migrations"
)

// setupDatabase opens both connection handles: a database/sql handle for
// goose migrations and a pgx pool for the repositories. The caller owns
// both and closes them at shutdown.
func setupDatabase(ctx context.Context, dbCfg dbconfig.Config) (*sql.DB, *pgxpool.Pool, error) {
	db, err := sql.Open("postgres", dbCfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrations.Up(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, dbCfg.DSN())
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping pgx pool: %w", err)
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")
	return db, pool, nil
}
