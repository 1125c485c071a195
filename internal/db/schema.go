package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Schema is the DDL for the inboxwhats database. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id           BIGSERIAL PRIMARY KEY,
    chat_address TEXT NOT NULL UNIQUE,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS email_accounts (
    id                   BIGSERIAL PRIMARY KEY,
    user_id              BIGINT NOT NULL REFERENCES users(id),
    provider             TEXT NOT NULL,
    email_address        TEXT NOT NULL DEFAULT '',
    access_token_sealed  TEXT NOT NULL DEFAULT '',
    refresh_token_sealed TEXT NOT NULL DEFAULT '',
    token_expiry         TIMESTAMPTZ,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, provider)
);

CREATE TABLE IF NOT EXISTS email_categories (
    id           BIGSERIAL PRIMARY KEY,
    name         TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    icon         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS category_rules (
    id          BIGSERIAL PRIMARY KEY,
    user_id     BIGINT NOT NULL REFERENCES users(id),
    category_id BIGINT NOT NULL REFERENCES email_categories(id),
    rule_type   TEXT NOT NULL CHECK (rule_type IN ('sender_domain', 'sender_email', 'subject_keyword', 'from_contains')),
    pattern     TEXT NOT NULL,
    confidence  DOUBLE PRECISION NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_category_rules_user ON category_rules (user_id, confidence DESC);

CREATE TABLE IF NOT EXISTS email_metadata (
    id          BIGSERIAL PRIMARY KEY,
    user_id     BIGINT NOT NULL REFERENCES users(id),
    provider_id TEXT NOT NULL UNIQUE,
    thread_id   TEXT NOT NULL DEFAULT '',
    sender      TEXT NOT NULL DEFAULT '',
    subject     TEXT NOT NULL DEFAULT '',
    summary     TEXT NOT NULL DEFAULT '',
    category_id BIGINT REFERENCES email_categories(id),
    is_urgent   BOOLEAN NOT NULL DEFAULT FALSE,
    received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    notified    BOOLEAN NOT NULL DEFAULT FALSE,
    notified_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_email_metadata_pending ON email_metadata (user_id, category_id) WHERE notified = FALSE;
CREATE INDEX IF NOT EXISTS idx_email_metadata_notified_at ON email_metadata (user_id, notified_at DESC) WHERE notified = TRUE;

CREATE TABLE IF NOT EXISTS notification_schedules (
    id            BIGSERIAL PRIMARY KEY,
    user_id       BIGINT NOT NULL REFERENCES users(id),
    category_id   BIGINT NOT NULL REFERENCES email_categories(id),
    delivery_mode TEXT NOT NULL CHECK (delivery_mode IN ('immediate', 'batched_daily', 'batched_weekly')),
    time1         TEXT,
    time2         TEXT,
    weekly_day    SMALLINT CHECK (weekly_day BETWEEN 0 AND 6),
    weekly_time   TEXT,
    UNIQUE (user_id, category_id)
);

CREATE TABLE IF NOT EXISTS style_profiles (
    user_id              BIGINT PRIMARY KEY REFERENCES users(id),
    sample_texts         TEXT[] NOT NULL DEFAULT '{}',
    inferred_tone        TEXT NOT NULL DEFAULT 'semi-formal',
    avg_paragraph_length INT NOT NULL DEFAULT 50,
    uses_greeting        BOOLEAN NOT NULL DEFAULT TRUE,
    greeting_style       TEXT NOT NULL DEFAULT 'Hi',
    uses_signature       BOOLEAN NOT NULL DEFAULT TRUE,
    signature_style      TEXT NOT NULL DEFAULT 'Best',
    formality_score      DOUBLE PRECISION NOT NULL DEFAULT 0.5 CHECK (formality_score >= 0 AND formality_score <= 1),
    last_updated         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS preferences (
    user_id              BIGINT PRIMARY KEY REFERENCES users(id),
    promo_handling       TEXT NOT NULL DEFAULT 'weekly',
    onboarding_completed BOOLEAN NOT NULL DEFAULT FALSE,
    inbox_scanned        BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS outbox_events (
    id             BIGSERIAL PRIMARY KEY,
    aggregate_type TEXT NOT NULL,
    aggregate_id   BIGINT,
    routing_key    TEXT NOT NULL,
    payload        JSONB NOT NULL,
    status         TEXT NOT NULL DEFAULT 'pending',
    retry_count    INT NOT NULL DEFAULT 0,
    next_retry_at  TIMESTAMPTZ,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox_events (created_at) WHERE status = 'pending';
`

// Migrate applies Schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	logger.Info("Database schema is up to date")
	return nil
}
