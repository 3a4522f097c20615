package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockKey int64 = 2026031401

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS companies (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	domain TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_companies_lower_name ON companies (lower(name));

CREATE TABLE IF NOT EXISTS applications (
	id BIGSERIAL PRIMARY KEY,
	company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	position TEXT NOT NULL,
	stage TEXT NOT NULL,
	applied_date TIMESTAMPTZ NOT NULL,
	last_updated TIMESTAMPTZ,
	notes TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_applications_company_position ON applications (company_id, lower(position));

CREATE TABLE IF NOT EXISTS application_emails (
	id BIGSERIAL PRIMARY KEY,
	email_id TEXT NOT NULL UNIQUE,
	application_id BIGINT REFERENCES applications(id) ON DELETE CASCADE,
	sender TEXT NOT NULL,
	subject TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL,
	body TEXT NOT NULL,
	detected_company TEXT NOT NULL DEFAULT '',
	detected_position TEXT NOT NULL DEFAULT '',
	detected_stage TEXT NOT NULL DEFAULT '',
	is_application BOOLEAN NOT NULL,
	confidence TEXT NOT NULL DEFAULT '',
	needs_review BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_application_emails_application ON application_emails(application_id);
CREATE INDEX IF NOT EXISTS idx_application_emails_review ON application_emails(received_at DESC) WHERE needs_review;

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	fetch_limit INTEGER NOT NULL,
	summary JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_pipeline_runs_active ON pipeline_runs ((TRUE)) WHERE status IN ('pending', 'running');
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_created_at ON pipeline_runs(created_at DESC);
`

func ensureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classifyStoreError("begin schema tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker/cli startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return classifyStoreError("acquire schema lock", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return classifyStoreError("execute schema ddl", err)
	}
	if err := tx.Commit(); err != nil {
		return classifyStoreError("commit schema tx", err)
	}
	return nil
}
