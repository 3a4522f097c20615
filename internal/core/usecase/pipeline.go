package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
	"github.com/kirillkom/job-application-tracker/internal/core/ports"
)

// interruptedPersistGrace bounds persistence of a batch whose run context has
// already ended.
const interruptedPersistGrace = 30 * time.Second

// PipelineDriver sequences one run: schema, batch, reconcile, summary.
type PipelineDriver struct {
	schema ports.SchemaManager
	batch  *BatchProcessor
	engine *ReconcileEngine
}

func NewPipelineDriver(schema ports.SchemaManager, batch *BatchProcessor, engine *ReconcileEngine) *PipelineDriver {
	return &PipelineDriver{
		schema: schema,
		batch:  batch,
		engine: engine,
	}
}

// Run returns the summary even when it also returns an error, so a fatal
// store failure still reports what was committed before it.
func (d *PipelineDriver) Run(ctx context.Context, limit int) (domain.RunSummary, error) {
	if d.schema != nil {
		if err := d.schema.EnsureSchema(ctx); err != nil {
			slog.Warn("ensure_schema_failed", "error", err)
		}
	}

	batch, err := d.batch.Run(ctx, limit)
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("process batch: %w", err)
	}

	summary := summarizeBatch(batch)
	persistCtx := ctx
	if batch.Interrupted {
		slog.Warn("batch_interrupted",
			"interrupted", summary.Interrupted,
			"classified", summary.TotalProcessed-summary.Interrupted,
			"error", context.Cause(ctx),
		)
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), interruptedPersistGrace)
		defer cancel()
	}
	report, err := d.engine.PersistAll(persistCtx, batch.Applications)
	summary.Saved = report.Saved
	summary.Duplicates = report.Duplicates
	summary.PersistFailures = report.Failed
	if err != nil {
		return summary, fmt.Errorf("persist applications: %w", err)
	}

	slog.Info("pipeline_summary",
		"total_processed", summary.TotalProcessed,
		"applications_found", summary.ApplicationsFound,
		"high_confidence", summary.HighConfidenceCount,
		"needs_review", summary.NeedsReviewCount,
		"gate_rejected", summary.GateRejected,
		"classification_failures", summary.ClassificationFailures,
		"saved", summary.Saved,
		"duplicates", summary.Duplicates,
		"persist_failures", summary.PersistFailures,
		"interrupted", summary.Interrupted,
	)
	return summary, nil
}

func summarizeBatch(batch BatchResult) domain.RunSummary {
	summary := domain.RunSummary{
		TotalProcessed:    len(batch.All),
		ApplicationsFound: len(batch.Applications),
	}
	for _, record := range batch.All {
		switch record.Extraction.SkipReason {
		case domain.SkipGateRejected:
			summary.GateRejected++
		case domain.SkipClassifierFailed:
			summary.ClassificationFailures++
		case domain.SkipInterrupted:
			summary.Interrupted++
		}
	}
	for _, record := range batch.Applications {
		if record.Extraction.Confidence == domain.ConfidenceHigh {
			summary.HighConfidenceCount++
		}
		if record.NeedsReview() {
			summary.NeedsReviewCount++
		}
	}
	return summary
}
