package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
	"github.com/kirillkom/job-application-tracker/internal/core/ports"
)

func mustClassified(t *testing.T, uid string, receivedAt time.Time, x domain.Extraction) domain.EmailRecord {
	t.Helper()
	msg := domain.NewRawMessage(uid, "jobs@acme.example", "subject "+uid, "body "+uid, receivedAt)
	record, err := domain.NewEmailRecord(msg).WithExtraction(x)
	if err != nil {
		t.Fatalf("WithExtraction() error = %v", err)
	}
	return record
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func fixedZone(hours int) *time.Location {
	return time.FixedZone("", hours*3600)
}

type fetcherFake struct {
	messages []domain.RawMessage
	err      error
	limit    int
}

func (f *fetcherFake) Fetch(_ context.Context, limit int) ([]domain.RawMessage, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}

// classifierFake answers by message subject.
type classifierFake struct {
	mu       sync.Mutex
	results  map[string]domain.Extraction
	errs     map[string]error
	// blocks holds subjects whose call waits for the context to end.
	blocks   map[string]bool
	subjects []string
}

func (f *classifierFake) Classify(ctx context.Context, _, subject, _ string) (domain.Extraction, error) {
	f.mu.Lock()
	f.subjects = append(f.subjects, subject)
	if f.blocks[subject] {
		f.mu.Unlock()
		<-ctx.Done()
		return domain.Extraction{}, domain.WrapError(domain.ErrClassificationUnavailable, "classify email", ctx.Err())
	}
	defer f.mu.Unlock()
	if err, ok := f.errs[subject]; ok {
		return domain.Extraction{}, err
	}
	if x, ok := f.results[subject]; ok {
		return x, nil
	}
	return domain.NotApplication(domain.ConfidenceHigh), nil
}

func (f *classifierFake) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subjects)
}

type generatorFake struct {
	response string
	err      error
	prompt   string
	block    bool
}

func (f *generatorFake) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

// memTrackerStore is an in-memory TrackerStore with rollback on error.
type memTrackerStore struct {
	mu        sync.Mutex
	nextID    int64
	companies []domain.Company
	apps      []domain.Application
	emails    []domain.ApplicationEmail

	schemaErr   error
	schemaCalls int
	// insertErrs fails InsertEmail for the given email ids.
	insertErrs map[string]error
	// racedCompany makes the first CreateCompany for this name lose a race
	// against a concurrent writer.
	racedCompany string
}

func newMemTrackerStore() *memTrackerStore {
	return &memTrackerStore{insertErrs: map[string]error{}}
}

func (s *memTrackerStore) EnsureSchema(context.Context) error {
	s.schemaCalls++
	return s.schemaErr
}

func (s *memTrackerStore) InTx(ctx context.Context, fn func(tx ports.TrackerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	companies := append([]domain.Company(nil), s.companies...)
	apps := append([]domain.Application(nil), s.apps...)
	emails := append([]domain.ApplicationEmail(nil), s.emails...)
	nextID := s.nextID

	if err := fn(&memTx{s: s}); err != nil {
		s.companies, s.apps, s.emails, s.nextID = companies, apps, emails, nextID
		return err
	}
	return nil
}

func (s *memTrackerStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memTrackerStore) application(t *testing.T, companyName, position string) domain.Application {
	t.Helper()
	var companyID int64
	for _, c := range s.companies {
		if strings.EqualFold(c.Name, companyName) {
			companyID = c.ID
		}
	}
	for _, a := range s.apps {
		if a.CompanyID == companyID && strings.EqualFold(a.Position, position) {
			return a
		}
	}
	t.Fatalf("application %s/%s not found", companyName, position)
	return domain.Application{}
}

type memTx struct {
	s *memTrackerStore
}

func (tx *memTx) EmailExists(_ context.Context, emailID string) (bool, error) {
	for _, e := range tx.s.emails {
		if e.EmailID == emailID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memTx) FindCompanyByName(_ context.Context, name string) (*domain.Company, error) {
	for _, c := range tx.s.companies {
		if strings.EqualFold(c.Name, name) {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

func (tx *memTx) CreateCompany(_ context.Context, company *domain.Company) error {
	if tx.s.racedCompany != "" && strings.EqualFold(tx.s.racedCompany, company.Name) {
		tx.s.racedCompany = ""
		tx.s.companies = append(tx.s.companies, domain.Company{ID: tx.s.id(), Name: strings.ToUpper(company.Name)})
		return domain.WrapError(domain.ErrConstraintViolation, "create company", errors.New("lower(name) taken"))
	}
	for _, c := range tx.s.companies {
		if strings.EqualFold(c.Name, company.Name) {
			return domain.WrapError(domain.ErrConstraintViolation, "create company", errors.New("lower(name) taken"))
		}
	}
	company.ID = tx.s.id()
	tx.s.companies = append(tx.s.companies, *company)
	return nil
}

func (tx *memTx) FindApplication(_ context.Context, companyID int64, position string) (*domain.Application, error) {
	for _, a := range tx.s.apps {
		if a.CompanyID == companyID && strings.EqualFold(a.Position, position) {
			found := a
			return &found, nil
		}
	}
	return nil, nil
}

func (tx *memTx) CreateApplication(_ context.Context, app *domain.Application) error {
	if existing, _ := tx.FindApplication(context.Background(), app.CompanyID, app.Position); existing != nil {
		return domain.WrapError(domain.ErrConstraintViolation, "create application", errors.New("position taken"))
	}
	app.ID = tx.s.id()
	tx.s.apps = append(tx.s.apps, *app)
	return nil
}

func (tx *memTx) AdvanceStage(_ context.Context, applicationID int64, stage domain.Stage, ts time.Time) (bool, error) {
	for i := range tx.s.apps {
		a := &tx.s.apps[i]
		if a.ID != applicationID {
			continue
		}
		if !a.LastUpdated.IsZero() && !ts.After(a.LastUpdated) {
			return false, nil
		}
		a.Stage = stage
		a.LastUpdated = ts
		return true, nil
	}
	return false, errors.New("application missing")
}

func (tx *memTx) InsertEmail(_ context.Context, email *domain.ApplicationEmail) error {
	if err, ok := tx.s.insertErrs[email.EmailID]; ok {
		return err
	}
	for _, e := range tx.s.emails {
		if e.EmailID == email.EmailID {
			return domain.WrapError(domain.ErrDuplicateEmail, "insert email", errors.New(email.EmailID))
		}
	}
	email.ID = tx.s.id()
	tx.s.emails = append(tx.s.emails, *email)
	return nil
}
