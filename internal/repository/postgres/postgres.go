package postgres

/*
Общая точка подключения к PostgreSQL (pgxpool).

Ожидаемая схема:

	CREATE TABLE requests (
	    id                     TEXT PRIMARY KEY,
	    subject                TEXT NOT NULL DEFAULT '',
	    submitted_by           TEXT NOT NULL,
	    assigned_reviewer_role TEXT NOT NULL,
	    state                  TEXT NOT NULL,
	    priority               TEXT NOT NULL,
	    payload                JSONB NOT NULL,
	    deadline               TIMESTAMPTZ,
	    rescheduled_deadline   TIMESTAMPTZ,
	    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE review_history (
	    id            BIGSERIAL PRIMARY KEY,
	    request_id    TEXT NOT NULL REFERENCES requests(id),
	    reviewer_role TEXT NOT NULL,
	    from_state    TEXT NOT NULL,
	    to_state      TEXT NOT NULL,
	    comment       TEXT NOT NULL DEFAULT '',
	    ts            TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE notifications (
	    id                 TEXT PRIMARY KEY,
	    dedup_key          TEXT NOT NULL UNIQUE,
	    recipient          TEXT NOT NULL,
	    related_request_id TEXT NOT NULL,
	    kind               TEXT NOT NULL,
	    to_state           TEXT NOT NULL,
	    message            TEXT NOT NULL,
	    created_at         TIMESTAMPTZ NOT NULL,
	    is_read            BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE INDEX idx_notifications_recipient ON notifications (recipient, created_at DESC);
*/

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/reqflow/internal/infra"
)

// NewPool создает пул соединений по настройкам из конфига
func NewPool(ctx context.Context, cfg infra.DatabaseConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	return pool, nil
}
