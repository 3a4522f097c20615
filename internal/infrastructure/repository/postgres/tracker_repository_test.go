package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
	"github.com/kirillkom/job-application-tracker/internal/core/ports"
)

func newTrackerWithMock(t *testing.T) (*TrackerRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewTrackerRepository(db), mock, func() { _ = db.Close() }
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newTrackerWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(schemaLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS companies").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSchemaCascadesDeletes(t *testing.T) {
	for _, ref := range []string{
		"REFERENCES companies(id) ON DELETE CASCADE",
		"REFERENCES applications(id) ON DELETE CASCADE",
	} {
		if !strings.Contains(schemaDDL, ref) {
			t.Fatalf("expected schema to contain %q", ref)
		}
	}
}

func TestFindCompanyByNameReturnsNilWhenMissing(t *testing.T) {
	repo, mock, done := newTrackerWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM companies").
		WithArgs("Acme").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "domain", "created_at"}))
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(tx ports.TrackerTx) error {
		company, err := tx.FindCompanyByName(context.Background(), "Acme")
		if err != nil {
			return err
		}
		if company != nil {
			t.Fatalf("expected nil company, got %+v", company)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateCompanyConflictIsConstraintViolation(t *testing.T) {
	repo, mock, done := newTrackerWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO companies").
		WithArgs("Acme", "acme.example", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx ports.TrackerTx) error {
		return tx.CreateCompany(context.Background(), &domain.Company{Name: "Acme", Domain: "acme.example", CreatedAt: now})
	})
	if !domain.IsKind(err, domain.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateApplicationAssignsID(t *testing.T) {
	repo, mock, done := newTrackerWithMock(t)
	defer done()

	applied := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO applications").
		WithArgs(int64(3), "SRE", "applied", applied, sqlmock.AnyArg(), "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectCommit()

	app := &domain.Application{CompanyID: 3, Position: "SRE", Stage: domain.StageApplied, AppliedDate: applied}
	err := repo.InTx(context.Background(), func(tx ports.TrackerTx) error {
		return tx.CreateApplication(context.Background(), app)
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}
	if app.ID != 11 {
		t.Fatalf("expected id 11, got %d", app.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAdvanceStageReportsUnchangedForOlderSignal(t *testing.T) {
	repo, mock, done := newTrackerWithMock(t)
	defer done()

	ts := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE applications").
		WithArgs(int64(5), "interview", ts).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(tx ports.TrackerTx) error {
		changed, err := tx.AdvanceStage(context.Background(), 5, domain.StageInterview, ts)
		if err != nil {
			return err
		}
		if changed {
			t.Fatalf("expected no change")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertEmailConflictIsDuplicate(t *testing.T) {
	repo, mock, done := newTrackerWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO application_emails").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx ports.TrackerTx) error {
		return tx.InsertEmail(context.Background(), &domain.ApplicationEmail{EmailID: "uid-1"})
	})
	if !domain.IsKind(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLostConnectionIsFatal(t *testing.T) {
	repo, mock, done := newTrackerWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("uid-1").
		WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx ports.TrackerTx) error {
		_, err := tx.EmailExists(context.Background(), "uid-1")
		return err
	})
	if !domain.IsKind(err, domain.ErrFatalStore) {
		t.Fatalf("expected fatal store error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClassifyStoreError(t *testing.T) {
	unique := classifyStoreError("op", &pgconn.PgError{Code: "23505"})
	if !domain.IsKind(unique, domain.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got %v", unique)
	}
	plain := classifyStoreError("op", errors.New("syntax error"))
	if domain.IsKind(plain, domain.ErrFatalStore) || domain.IsKind(plain, domain.ErrConstraintViolation) {
		t.Fatalf("expected unclassified error, got %v", plain)
	}
	if classifyStoreError("op", nil) != nil {
		t.Fatalf("expected nil")
	}
}

func TestGetApplicationLoadsEmails(t *testing.T) {
	repo, mock, done := newTrackerWithMock(t)
	defer done()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM applications a").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "company_id", "position", "stage", "applied_date", "last_updated", "notes", "name", "count",
		}).AddRow(int64(7), int64(2), "Backend Engineer", "interview", now, now, "", "Acme Corp", 1))
	mock.ExpectQuery("FROM application_emails").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email_id", "application_id", "sender", "subject", "received_at",
			"detected_company", "detected_position", "detected_stage", "is_application", "confidence", "needs_review", "created_at",
		}).AddRow(int64(1), "uid-1", int64(7), "a@acme.example", "Interview", now,
			"Acme Corp", "Backend Engineer", "interview", true, "high", false, now))

	view, err := repo.GetApplication(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetApplication() error = %v", err)
	}
	if view.CompanyName != "Acme Corp" || view.Stage != domain.StageInterview || view.EmailCount != 1 {
		t.Fatalf("unexpected view: %+v", view)
	}
	if len(view.Emails) != 1 || view.Emails[0].ApplicationID == nil || *view.Emails[0].ApplicationID != 7 {
		t.Fatalf("unexpected emails: %+v", view.Emails)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetApplicationReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newTrackerWithMock(t)
	defer done()

	mock.ExpectQuery("FROM applications a").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetApplication(context.Background(), 404)
	if !domain.IsKind(err, domain.ErrApplicationNotFound) {
		t.Fatalf("expected ErrApplicationNotFound, got %v", err)
	}
}

func TestListEmailsNeedingReviewDefaultsLimit(t *testing.T) {
	repo, mock, done := newTrackerWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("WHERE needs_review").
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email_id", "application_id", "sender", "subject", "received_at",
			"detected_company", "detected_position", "detected_stage", "is_application", "confidence", "needs_review", "created_at",
		}).AddRow(int64(3), "uid-3", nil, "a@b.c", "Maybe", now, "Acme", "", "", true, "low", true, now))

	emails, err := repo.ListEmailsNeedingReview(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListEmailsNeedingReview() error = %v", err)
	}
	if len(emails) != 1 || emails[0].Linked() || !emails[0].NeedsReview {
		t.Fatalf("unexpected emails: %+v", emails)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
