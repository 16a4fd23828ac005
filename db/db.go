// Package db provides database connection helpers, schema migration, and pool instrumentation.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/guild-recorder/config"
	"github.com/onnwee/guild-recorder/telemetry"
)

// Connect opens the pooled Postgres handle described by cfg and applies its pool limits.
// The connection is verified lazily; callers that need a live database should Ping.
func Connect(cfg *config.Config) (*sql.DB, error) {
	database, err := sql.Open("pgx", cfg.DBDsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.DBMaxOpenConns > 0 {
		database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxIdleTime(5 * time.Minute)
	return database, nil
}

// Migrate applies idempotent schema changes for the events table and its indices.
func Migrate(ctx context.Context, db *sql.DB) error { return migratePostgres(ctx, db) }

func migratePostgres(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			event_type TEXT NOT NULL,
			event_data TEXT NOT NULL,
			channel_id BIGINT,
			category_id BIGINT,
			user_id BIGINT,
			associated_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type_created ON events(event_type, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_user ON events(user_id)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// StartPoolMetrics publishes pool statistics every interval until ctx is done.
func StartPoolMetrics(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Debug("db pool metrics started", slog.Duration("interval", interval), slog.String("component", "db"))
	for {
		stats := db.Stats()
		telemetry.UpdateDatabasePoolMetrics(stats.OpenConnections, stats.InUse)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
