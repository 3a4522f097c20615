package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
)

func newRunRepoWithMock(t *testing.T) (*RunRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewRunRepository(db), mock, func() { _ = db.Close() }
}

func TestCreateRunWhileActiveReturnsRunInProgress(t *testing.T) {
	repo, mock, done := newRunRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO pipeline_runs").
		WithArgs("run-2", "pending", 10, now).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: activeRunConstraint})

	err := repo.CreateRun(context.Background(), &domain.Run{ID: "run-2", Status: domain.RunPending, Limit: 10, CreatedAt: now})
	if !domain.IsKind(err, domain.ErrRunInProgress) {
		t.Fatalf("expected run in progress, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRunDecodesSummary(t *testing.T) {
	repo, mock, done := newRunRepoWithMock(t)
	defer done()

	created := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	finished := created.Add(time.Minute)
	mock.ExpectQuery("FROM pipeline_runs").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "status", "fetch_limit", "summary", "error_message", "created_at", "started_at", "finished_at",
		}).AddRow("run-1", "completed", 50, []byte(`{"total_processed":3,"applications_found":1}`), "", created, created, finished))

	run, err := repo.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != domain.RunCompleted || run.Limit != 50 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.Summary == nil || run.Summary.TotalProcessed != 3 || run.Summary.ApplicationsFound != 1 {
		t.Fatalf("unexpected summary: %+v", run.Summary)
	}
	if run.FinishedAt == nil || !run.FinishedAt.Equal(finished) {
		t.Fatalf("unexpected finished_at: %v", run.FinishedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRunReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRunRepoWithMock(t)
	defer done()

	mock.ExpectQuery("FROM pipeline_runs").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.GetRun(context.Background(), "missing"); !domain.IsKind(err, domain.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestMarkRunningRequiresPendingRun(t *testing.T) {
	repo, mock, done := newRunRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE pipeline_runs").
		WithArgs("run-1", "running", sqlmock.AnyArg(), "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRunning(context.Background(), "run-1", time.Now())
	if !domain.IsKind(err, domain.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkFinishedStoresSummary(t *testing.T) {
	repo, mock, done := newRunRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE pipeline_runs").
		WithArgs("run-1", "failed", `{"total_processed":2,"applications_found":0,"high_confidence_count":0,"needs_review_count":0,"gate_rejected":0,"classification_failures":0,"saved":0,"duplicates":0,"persist_failures":1,"interrupted":0}`, "boom", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkFinished(context.Background(), "run-1", domain.RunFailed,
		&domain.RunSummary{TotalProcessed: 2, PersistFailures: 1}, "boom", time.Now())
	if err != nil {
		t.Fatalf("MarkFinished() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFailStaleRunsReleasesActiveRuns(t *testing.T) {
	repo, mock, done := newRunRepoWithMock(t)
	defer done()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-time.Hour)
	mock.ExpectExec("UPDATE pipeline_runs").
		WithArgs("failed", "abandoned", now, "pending", "running", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	released, err := repo.FailStaleRuns(context.Background(), cutoff, "abandoned", now)
	if err != nil {
		t.Fatalf("FailStaleRuns() error = %v", err)
	}
	if released != 2 {
		t.Fatalf("expected 2 released runs, got %d", released)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
