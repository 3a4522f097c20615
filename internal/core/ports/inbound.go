package ports

import (
	"context"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
)

// PipelineRunner executes one fetch, classify and reconcile pass.
type PipelineRunner interface {
	Run(ctx context.Context, limit int) (domain.RunSummary, error)
}

// RunSubmitter is the inbound contract for run admission and inspection.
type RunSubmitter interface {
	Submit(ctx context.Context, limit int) (*domain.Run, error)
	Get(ctx context.Context, id string) (*domain.Run, error)
}

// RunExecutor executes a previously submitted run.
type RunExecutor interface {
	Execute(ctx context.Context, runID string) error
}
