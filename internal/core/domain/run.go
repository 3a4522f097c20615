package domain

import "time"

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

func (s RunStatus) Active() bool {
	return s == RunPending || s == RunRunning
}

// RunSummary is produced once per pipeline run.
type RunSummary struct {
	TotalProcessed      int `json:"total_processed"`
	ApplicationsFound   int `json:"applications_found"`
	HighConfidenceCount int `json:"high_confidence_count"`
	NeedsReviewCount    int `json:"needs_review_count"`

	GateRejected           int `json:"gate_rejected"`
	ClassificationFailures int `json:"classification_failures"`
	Saved                  int `json:"saved"`
	Duplicates             int `json:"duplicates"`
	PersistFailures        int `json:"persist_failures"`
	Interrupted            int `json:"interrupted"`
}

type Run struct {
	ID         string      `json:"id"`
	Status     RunStatus   `json:"status"`
	Limit      int         `json:"limit"`
	Summary    *RunSummary `json:"summary,omitempty"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}
