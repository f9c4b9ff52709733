package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaSQL — схема хранилища run'ов.
//
// Колонки id…updated_at — проекция SessionRecord; steps, step_order,
// cache_decision и version нужны для возобновления run'а.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS onboarding_sessions (
	id              UUID PRIMARY KEY,
	property_id     TEXT,
	url             TEXT        NOT NULL,
	domain          TEXT        NOT NULL,
	force_refresh   BOOLEAN     NOT NULL DEFAULT FALSE,
	status          TEXT        NOT NULL,
	current_step    TEXT,
	completed_steps TEXT[]      NOT NULL DEFAULT '{}',
	errors          JSONB       NOT NULL DEFAULT '[]',
	steps           JSONB       NOT NULL,
	step_order      TEXT[]      NOT NULL,
	cache_decision  JSONB,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ,
	version         INTEGER     NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS onboarding_sessions_property_idx
	ON onboarding_sessions (property_id, created_at DESC);

CREATE INDEX IF NOT EXISTS onboarding_sessions_active_idx
	ON onboarding_sessions (status)
	WHERE status IN ('started', 'in_progress');
`

// EnsureSchema создаёт таблицы, если их нет.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
