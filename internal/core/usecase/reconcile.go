package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
	"github.com/kirillkom/job-application-tracker/internal/core/ports"
)

// PersistReport aggregates one PersistAll call. Emails lists the rows saved
// by this call; each carries its linked application id, if any.
type PersistReport struct {
	Saved      int
	Duplicates int
	Failed     int
	Emails     []domain.ApplicationEmail
}

// errLostInsertRace rolls back a transaction whose email row was inserted by
// a concurrent writer between the dedup check and the insert.
var errLostInsertRace = errors.New("email inserted concurrently")

type ReconcileEngine struct {
	store   ports.TrackerStore
	now     func() time.Time
	metrics ports.PipelineMetrics
}

func NewReconcileEngine(store ports.TrackerStore, metrics ports.PipelineMetrics) *ReconcileEngine {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &ReconcileEngine{
		store:   store,
		now:     func() time.Time { return time.Now().UTC() },
		metrics: metrics,
	}
}

// Persist merges one record into the tracker inside a single transaction.
// It returns nil, nil when the email was already persisted.
func (e *ReconcileEngine) Persist(ctx context.Context, record domain.EmailRecord) (*domain.ApplicationEmail, error) {
	if record.UID() == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "persist email", errors.New("empty uid"))
	}

	var saved *domain.ApplicationEmail
	err := e.store.InTx(ctx, func(tx ports.TrackerTx) error {
		exists, err := tx.EmailExists(ctx, record.UID())
		if err != nil {
			return fmt.Errorf("check email %s: %w", record.UID(), err)
		}
		if exists {
			return nil
		}

		row := domain.NewApplicationEmail(record, e.now())
		if record.Linkable() {
			appID, err := e.link(ctx, tx, record)
			if err != nil {
				return err
			}
			row.ApplicationID = &appID
		} else if record.IsApplication() && record.Extraction.Confidence.Linkable() {
			slog.Info("email_left_unlinked",
				"uid", record.UID(),
				"reason", "incomplete_extraction",
				"company", record.Extraction.Company,
				"position", record.Extraction.Position,
			)
		}

		if err := tx.InsertEmail(ctx, &row); err != nil {
			if domain.IsKind(err, domain.ErrDuplicateEmail) {
				return errLostInsertRace
			}
			return fmt.Errorf("insert email %s: %w", record.UID(), err)
		}
		saved = &row
		return nil
	})
	if errors.Is(err, errLostInsertRace) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// PersistAll persists records in order. Individual failures are counted and
// skipped; a fatal store failure stops the loop and is returned with the
// partial report. Rows committed before the failure stay committed.
func (e *ReconcileEngine) PersistAll(ctx context.Context, records []domain.EmailRecord) (PersistReport, error) {
	var report PersistReport
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		saved, err := e.Persist(ctx, record)
		switch {
		case err != nil && domain.IsKind(err, domain.ErrFatalStore):
			e.metrics.ObservePersist("failed")
			report.Failed++
			return report, err
		case err != nil:
			slog.Error("persist_failed", "uid", record.UID(), "error", err)
			e.metrics.ObservePersist("failed")
			report.Failed++
		case saved == nil:
			e.metrics.ObservePersist("duplicate")
			report.Duplicates++
		default:
			e.metrics.ObservePersist("saved")
			report.Saved++
			report.Emails = append(report.Emails, *saved)
		}
	}
	return report, nil
}

// link resolves the record's company and application and applies its stage
// if the record is the newest stage signal seen so far.
func (e *ReconcileEngine) link(ctx context.Context, tx ports.TrackerTx, record domain.EmailRecord) (int64, error) {
	company, err := e.findOrCreateCompany(ctx, tx, record)
	if err != nil {
		return 0, err
	}
	app, err := e.findOrCreateApplication(ctx, tx, company, record.Extraction.Position)
	if err != nil {
		return 0, err
	}

	stage := record.Extraction.Stage
	receivedAt := record.ReceivedAt().UTC()
	if stage != "" && app.AcceptsStageAt(receivedAt) {
		changed, err := tx.AdvanceStage(ctx, app.ID, stage, receivedAt)
		if err != nil {
			return 0, fmt.Errorf("advance stage for application %d: %w", app.ID, err)
		}
		if changed {
			slog.Debug("application_stage_advanced",
				"application_id", app.ID,
				"from", string(app.Stage),
				"to", string(stage),
				"uid", record.UID(),
			)
		}
	}
	return app.ID, nil
}

func (e *ReconcileEngine) findOrCreateCompany(ctx context.Context, tx ports.TrackerTx, record domain.EmailRecord) (*domain.Company, error) {
	name := record.Extraction.Company
	company, err := tx.FindCompanyByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("find company %q: %w", name, err)
	}
	if company != nil {
		return company, nil
	}

	company = &domain.Company{
		Name:      name,
		Domain:    record.Message.SenderDomain(),
		CreatedAt: e.now(),
	}
	err = tx.CreateCompany(ctx, company)
	if err == nil {
		return company, nil
	}
	if !domain.IsKind(err, domain.ErrConstraintViolation) {
		return nil, fmt.Errorf("create company %q: %w", name, err)
	}

	existing, err := tx.FindCompanyByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("refetch company %q: %w", name, err)
	}
	if existing == nil {
		return nil, fmt.Errorf("refetch company %q: missing after constraint violation", name)
	}
	return existing, nil
}

func (e *ReconcileEngine) findOrCreateApplication(ctx context.Context, tx ports.TrackerTx, company *domain.Company, position string) (*domain.Application, error) {
	app, err := tx.FindApplication(ctx, company.ID, position)
	if err != nil {
		return nil, fmt.Errorf("find application %q at company %d: %w", position, company.ID, err)
	}
	if app != nil {
		return app, nil
	}

	app = &domain.Application{
		CompanyID:   company.ID,
		Position:    position,
		Stage:       domain.StageApplied,
		AppliedDate: e.now(),
	}
	err = tx.CreateApplication(ctx, app)
	if err == nil {
		return app, nil
	}
	if !domain.IsKind(err, domain.ErrConstraintViolation) {
		return nil, fmt.Errorf("create application %q: %w", position, err)
	}

	existing, err := tx.FindApplication(ctx, company.ID, position)
	if err != nil {
		return nil, fmt.Errorf("refetch application %q: %w", position, err)
	}
	if existing == nil {
		return nil, fmt.Errorf("refetch application %q: missing after constraint violation", position)
	}
	return existing, nil
}
