package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
)

const activeRunConstraint = "uq_pipeline_runs_active"

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) CreateRun(ctx context.Context, run *domain.Run) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO pipeline_runs (id, status, fetch_limit, created_at)
VALUES ($1, $2, $3, $4)
`, run.ID, string(run.Status), run.Limit, run.CreatedAt)
	if err != nil {
		if isUniqueViolationOn(err, activeRunConstraint) {
			return domain.WrapError(domain.ErrRunInProgress, "create run", err)
		}
		return classifyStoreError("create run", err)
	}
	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, status, fetch_limit, summary, error_message, created_at, started_at, finished_at
FROM pipeline_runs
WHERE id = $1
`, id)

	var run domain.Run
	var status string
	var summaryRaw []byte
	var startedAt, finishedAt sql.NullTime
	err := row.Scan(&run.ID, &status, &run.Limit, &summaryRaw, &run.Error, &run.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRunNotFound, "get run", fmt.Errorf("id=%s", id))
		}
		return nil, classifyStoreError("get run", err)
	}

	run.Status = domain.RunStatus(status)
	if len(summaryRaw) > 0 {
		var summary domain.RunSummary
		if err := json.Unmarshal(summaryRaw, &summary); err != nil {
			return nil, fmt.Errorf("unmarshal run summary: %w", err)
		}
		run.Summary = &summary
	}
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		run.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		run.FinishedAt = &t
	}
	return &run, nil
}

func (r *RunRepository) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE pipeline_runs
SET status = $2, started_at = $3
WHERE id = $1 AND status = $4
`, id, string(domain.RunRunning), startedAt, string(domain.RunPending))
	if err != nil {
		return classifyStoreError("mark run running", err)
	}
	return requireAffected(res, "mark run running", id)
}

func (r *RunRepository) MarkFinished(
	ctx context.Context,
	id string,
	status domain.RunStatus,
	summary *domain.RunSummary,
	errMessage string,
	finishedAt time.Time,
) error {
	var summaryJSON any
	if summary != nil {
		raw, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("marshal run summary: %w", err)
		}
		summaryJSON = string(raw)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE pipeline_runs
SET status = $2, summary = $3, error_message = $4, finished_at = $5
WHERE id = $1
`, id, string(status), summaryJSON, errMessage, finishedAt)
	if err != nil {
		return classifyStoreError("mark run finished", err)
	}
	return requireAffected(res, "mark run finished", id)
}

// FailStaleRuns measures a pending run from its creation and a running one
// from its start.
func (r *RunRepository) FailStaleRuns(ctx context.Context, before time.Time, errMessage string, finishedAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE pipeline_runs
SET status = $1, error_message = $2, finished_at = $3
WHERE status IN ($4, $5) AND COALESCE(started_at, created_at) < $6
`, string(domain.RunFailed), errMessage, finishedAt, string(domain.RunPending), string(domain.RunRunning), before)
	if err != nil {
		return 0, classifyStoreError("fail stale runs", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, classifyStoreError("fail stale runs rows affected", err)
	}
	return affected, nil
}

func requireAffected(res sql.Result, op, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return classifyStoreError(op+" rows affected", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrRunNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}
