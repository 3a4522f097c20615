package domain

import "time"

type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Application struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"company_id"`
	Position    string    `json:"position"`
	Stage       Stage     `json:"stage"`
	AppliedDate time.Time `json:"applied_date"`
	// LastUpdated is zero until the first stage signal has been applied.
	LastUpdated time.Time `json:"last_updated"`
	Notes       string    `json:"notes,omitempty"`
}

// AcceptsStageAt reports whether a stage observed at ts is newer than the
// application's current one.
func (a Application) AcceptsStageAt(ts time.Time) bool {
	if a.LastUpdated.IsZero() {
		return true
	}
	return ts.UTC().After(a.LastUpdated.UTC())
}

// ApplicationEmail is the persisted form of an EmailRecord.
type ApplicationEmail struct {
	ID               int64      `json:"id"`
	EmailID          string     `json:"email_id"`
	ApplicationID    *int64     `json:"application_id"`
	Sender           string     `json:"sender"`
	Subject          string     `json:"subject"`
	ReceivedAt       time.Time  `json:"received_at"`
	Body             string     `json:"-"`
	DetectedCompany  string     `json:"detected_company,omitempty"`
	DetectedPosition string     `json:"detected_position,omitempty"`
	DetectedStage    Stage      `json:"detected_stage,omitempty"`
	IsApplication    bool       `json:"is_application"`
	Confidence       Confidence `json:"confidence,omitempty"`
	NeedsReview      bool       `json:"needs_review"`
	CreatedAt        time.Time  `json:"created_at"`
}

// NewApplicationEmail builds the unlinked row for a record. NeedsReview is
// computed here and never changes afterwards.
func NewApplicationEmail(record EmailRecord, now time.Time) ApplicationEmail {
	msg := record.Message
	x := record.Extraction
	return ApplicationEmail{
		EmailID:          msg.UID,
		Sender:           msg.Sender,
		Subject:          msg.Subject,
		ReceivedAt:       msg.ReceivedAt.UTC(),
		Body:             msg.Body,
		DetectedCompany:  x.Company,
		DetectedPosition: x.Position,
		DetectedStage:    x.Stage,
		IsApplication:    record.IsApplication(),
		Confidence:       x.Confidence,
		NeedsReview:      record.NeedsReview(),
		CreatedAt:        now.UTC(),
	}
}

func (e ApplicationEmail) Linked() bool { return e.ApplicationID != nil }

// ApplicationView is the read model served by the API and the export.
type ApplicationView struct {
	Application
	CompanyName string             `json:"company_name"`
	EmailCount  int                `json:"email_count"`
	Emails      []ApplicationEmail `json:"emails,omitempty"`
}
