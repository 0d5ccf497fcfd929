package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema — таблицы воркера. Все выражения идемпотентны.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS task_receipts (
		task_id           TEXT PRIMARY KEY,
		kind              TEXT NOT NULL,
		enqueued_at       TIMESTAMPTZ NOT NULL,
		first_received_at TIMESTAMPTZ NOT NULL,
		last_received_at  TIMESTAMPTZ NOT NULL,
		deliveries        INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS task_outcomes (
		task_id      TEXT PRIMARY KEY,
		kind         TEXT NOT NULL,
		status       TEXT NOT NULL CHECK (status IN ('succeeded', 'failed-permanent')),
		attempts     INTEGER NOT NULL DEFAULT 0,
		completed_at TIMESTAMPTZ NOT NULL,
		detail       TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS task_outcomes_completed_at_idx ON task_outcomes (completed_at DESC)`,
	`CREATE INDEX IF NOT EXISTS task_outcomes_status_idx ON task_outcomes (status)`,
}

// EnsureSchema создаёт таблицы, если их нет.
// Это не система миграций: схема только дополняется.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
