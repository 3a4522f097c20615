package ports

import (
	"context"
	"time"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
)

// MailboxFetcher returns at most limit messages in mailbox order. An empty
// mailbox yields an empty slice, not an error.
type MailboxFetcher interface {
	Fetch(ctx context.Context, limit int) ([]domain.RawMessage, error)
}

// TextGenerator is the opaque classifier service: prompt in, raw text out.
type TextGenerator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// RelevanceGate decides whether a message is worth a classifier call.
type RelevanceGate interface {
	ShouldClassify(subject, body string) bool
}

// EmailClassifier extracts application facts from a message.
type EmailClassifier interface {
	Classify(ctx context.Context, sender, subject, body string) (domain.Extraction, error)
}

// SchemaManager creates the storage schema if it does not exist.
type SchemaManager interface {
	EnsureSchema(ctx context.Context) error
}

// TrackerStore runs reconciliation steps inside one transaction. fn's error
// rolls the transaction back.
type TrackerStore interface {
	SchemaManager
	InTx(ctx context.Context, fn func(tx TrackerTx) error) error
}

// TrackerTx is the per-transaction view of the company/application/email
// tables. Find* return nil, nil when nothing matches; name and position
// lookups are case-insensitive. Create* return domain.ErrConstraintViolation
// when a unique key is already taken; InsertEmail returns
// domain.ErrDuplicateEmail.
type TrackerTx interface {
	EmailExists(ctx context.Context, emailID string) (bool, error)
	FindCompanyByName(ctx context.Context, name string) (*domain.Company, error)
	CreateCompany(ctx context.Context, company *domain.Company) error
	FindApplication(ctx context.Context, companyID int64, position string) (*domain.Application, error)
	CreateApplication(ctx context.Context, app *domain.Application) error
	// AdvanceStage sets stage and last_updated only if ts is newer than the
	// stored last_updated. It reports whether the row changed.
	AdvanceStage(ctx context.Context, applicationID int64, stage domain.Stage, ts time.Time) (bool, error)
	InsertEmail(ctx context.Context, email *domain.ApplicationEmail) error
}

// ApplicationReader serves the read side of the tracker.
type ApplicationReader interface {
	GetApplication(ctx context.Context, id int64) (*domain.ApplicationView, error)
	ListApplications(ctx context.Context) ([]domain.ApplicationView, error)
	ListEmailsNeedingReview(ctx context.Context, limit int) ([]domain.ApplicationEmail, error)
}

// RunStore persists pipeline runs. CreateRun fails with
// domain.ErrRunInProgress while another run is pending or running.
type RunStore interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	MarkRunning(ctx context.Context, id string, startedAt time.Time) error
	MarkFinished(ctx context.Context, id string, status domain.RunStatus, summary *domain.RunSummary, errMessage string, finishedAt time.Time) error
	// FailStaleRuns fails every active run that has not progressed since
	// before and reports how many it released.
	FailStaleRuns(ctx context.Context, before time.Time, errMessage string, finishedAt time.Time) (int64, error)
}

// RunQueue hands submitted runs from the API to a worker.
type RunQueue interface {
	PublishRunRequested(ctx context.Context, runID string) error
	SubscribeRunRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// PipelineMetrics receives per-run observations.
type PipelineMetrics interface {
	ObserveEmail(outcome string)
	ObserveClassifier(duration time.Duration, err error)
	ObservePersist(result string)
	ObserveRun(status domain.RunStatus, duration time.Duration)
}
