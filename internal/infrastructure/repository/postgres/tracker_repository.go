package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
	"github.com/kirillkom/job-application-tracker/internal/core/ports"
)

type TrackerRepository struct {
	db *sql.DB
}

func NewTrackerRepository(db *sql.DB) *TrackerRepository {
	return &TrackerRepository{db: db}
}

func (r *TrackerRepository) EnsureSchema(ctx context.Context) error {
	return ensureSchema(ctx, r.db)
}

func (r *TrackerRepository) InTx(ctx context.Context, fn func(tx ports.TrackerTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyStoreError("begin tracker tx", err)
	}
	if err := fn(&trackerTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return classifyStoreError("commit tracker tx", err)
	}
	return nil
}

type trackerTx struct {
	tx *sql.Tx
}

func (t *trackerTx) EmailExists(ctx context.Context, emailID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM application_emails WHERE email_id = $1)`, emailID).Scan(&exists)
	if err != nil {
		return false, classifyStoreError("check email exists", err)
	}
	return exists, nil
}

func (t *trackerTx) FindCompanyByName(ctx context.Context, name string) (*domain.Company, error) {
	row := t.tx.QueryRowContext(ctx, `
SELECT id, name, domain, created_at
FROM companies
WHERE lower(name) = lower($1)
`, name)

	var c domain.Company
	if err := row.Scan(&c.ID, &c.Name, &c.Domain, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyStoreError("find company", err)
	}
	return &c, nil
}

// CreateCompany uses ON CONFLICT DO NOTHING so a lost race does not abort
// the surrounding transaction.
func (t *trackerTx) CreateCompany(ctx context.Context, company *domain.Company) error {
	row := t.tx.QueryRowContext(ctx, `
INSERT INTO companies (name, domain, created_at)
VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING
RETURNING id
`, company.Name, company.Domain, company.CreatedAt)

	if err := row.Scan(&company.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrConstraintViolation, "create company", fmt.Errorf("name %q already exists", company.Name))
		}
		return classifyStoreError("create company", err)
	}
	return nil
}

func (t *trackerTx) FindApplication(ctx context.Context, companyID int64, position string) (*domain.Application, error) {
	row := t.tx.QueryRowContext(ctx, `
SELECT id, company_id, position, stage, applied_date, last_updated, notes
FROM applications
WHERE company_id = $1 AND lower(position) = lower($2)
`, companyID, position)

	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyStoreError("find application", err)
	}
	return app, nil
}

func (t *trackerTx) CreateApplication(ctx context.Context, app *domain.Application) error {
	row := t.tx.QueryRowContext(ctx, `
INSERT INTO applications (company_id, position, stage, applied_date, last_updated, notes)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT DO NOTHING
RETURNING id
`, app.CompanyID, app.Position, string(app.Stage), app.AppliedDate, nullableTime(app.LastUpdated), app.Notes)

	if err := row.Scan(&app.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrConstraintViolation, "create application",
				fmt.Errorf("position %q already exists for company %d", app.Position, app.CompanyID))
		}
		return classifyStoreError("create application", err)
	}
	return nil
}

// AdvanceStage re-checks the ordering in SQL, so concurrent writers cannot
// move the stage backwards.
func (t *trackerTx) AdvanceStage(ctx context.Context, applicationID int64, stage domain.Stage, ts time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
UPDATE applications
SET stage = $2, last_updated = $3
WHERE id = $1 AND (last_updated IS NULL OR last_updated < $3)
`, applicationID, string(stage), ts.UTC())
	if err != nil {
		return false, classifyStoreError("advance stage", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, classifyStoreError("advance stage rows affected", err)
	}
	return affected > 0, nil
}

func (t *trackerTx) InsertEmail(ctx context.Context, email *domain.ApplicationEmail) error {
	row := t.tx.QueryRowContext(ctx, `
INSERT INTO application_emails (
	email_id, application_id, sender, subject, received_at, body,
	detected_company, detected_position, detected_stage, is_application, confidence, needs_review, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (email_id) DO NOTHING
RETURNING id
`,
		email.EmailID, email.ApplicationID, email.Sender, email.Subject, email.ReceivedAt.UTC(), email.Body,
		email.DetectedCompany, email.DetectedPosition, string(email.DetectedStage), email.IsApplication,
		string(email.Confidence), email.NeedsReview, email.CreatedAt,
	)
	if err := row.Scan(&email.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrDuplicateEmail, "insert email", fmt.Errorf("email_id %s", email.EmailID))
		}
		return classifyStoreError("insert email", err)
	}
	return nil
}

const applicationViewColumns = `
SELECT a.id, a.company_id, a.position, a.stage, a.applied_date, a.last_updated, a.notes,
	c.name, (SELECT count(*) FROM application_emails e WHERE e.application_id = a.id)
FROM applications a
JOIN companies c ON c.id = a.company_id
`

func (r *TrackerRepository) GetApplication(ctx context.Context, id int64) (*domain.ApplicationView, error) {
	row := r.db.QueryRowContext(ctx, applicationViewColumns+`WHERE a.id = $1`, id)
	view, err := scanApplicationView(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrApplicationNotFound, "get application", fmt.Errorf("id=%d", id))
		}
		return nil, classifyStoreError("get application", err)
	}

	rows, err := r.db.QueryContext(ctx, emailColumns+`WHERE application_id = $1 ORDER BY received_at ASC, id ASC`, id)
	if err != nil {
		return nil, classifyStoreError("list application emails", err)
	}
	view.Emails, err = scanEmails(rows)
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (r *TrackerRepository) ListApplications(ctx context.Context) ([]domain.ApplicationView, error) {
	rows, err := r.db.QueryContext(ctx, applicationViewColumns+`ORDER BY a.last_updated DESC NULLS LAST, a.id ASC`)
	if err != nil {
		return nil, classifyStoreError("list applications", err)
	}
	defer rows.Close()

	var out []domain.ApplicationView
	for rows.Next() {
		view, err := scanApplicationView(rows)
		if err != nil {
			return nil, classifyStoreError("scan application", err)
		}
		out = append(out, *view)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyStoreError("iterate applications", err)
	}
	return out, nil
}

func (r *TrackerRepository) ListEmailsNeedingReview(ctx context.Context, limit int) ([]domain.ApplicationEmail, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, emailColumns+`WHERE needs_review ORDER BY received_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, classifyStoreError("list emails needing review", err)
	}
	return scanEmails(rows)
}

const emailColumns = `
SELECT id, email_id, application_id, sender, subject, received_at,
	detected_company, detected_position, detected_stage, is_application, confidence, needs_review, created_at
FROM application_emails
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*domain.Application, error) {
	var app domain.Application
	var stage string
	var lastUpdated sql.NullTime
	if err := row.Scan(&app.ID, &app.CompanyID, &app.Position, &stage, &app.AppliedDate, &lastUpdated, &app.Notes); err != nil {
		return nil, err
	}
	app.Stage = domain.Stage(stage)
	if lastUpdated.Valid {
		app.LastUpdated = lastUpdated.Time.UTC()
	}
	return &app, nil
}

func scanApplicationView(row rowScanner) (*domain.ApplicationView, error) {
	var view domain.ApplicationView
	var stage string
	var lastUpdated sql.NullTime
	if err := row.Scan(
		&view.ID, &view.CompanyID, &view.Position, &stage, &view.AppliedDate, &lastUpdated, &view.Notes,
		&view.CompanyName, &view.EmailCount,
	); err != nil {
		return nil, err
	}
	view.Stage = domain.Stage(stage)
	if lastUpdated.Valid {
		view.LastUpdated = lastUpdated.Time.UTC()
	}
	return &view, nil
}

func scanEmails(rows *sql.Rows) ([]domain.ApplicationEmail, error) {
	defer rows.Close()

	var out []domain.ApplicationEmail
	for rows.Next() {
		var e domain.ApplicationEmail
		var appID sql.NullInt64
		var stage, confidence string
		if err := rows.Scan(
			&e.ID, &e.EmailID, &appID, &e.Sender, &e.Subject, &e.ReceivedAt,
			&e.DetectedCompany, &e.DetectedPosition, &stage, &e.IsApplication, &confidence, &e.NeedsReview, &e.CreatedAt,
		); err != nil {
			return nil, classifyStoreError("scan email", err)
		}
		if appID.Valid {
			id := appID.Int64
			e.ApplicationID = &id
		}
		e.DetectedStage = domain.Stage(stage)
		e.Confidence = domain.Confidence(confidence)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyStoreError("iterate emails", err)
	}
	return out, nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
