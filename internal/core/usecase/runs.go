package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
	"github.com/kirillkom/job-application-tracker/internal/core/ports"
)

// staleRunGrace covers the work Execute and the pipeline do after the run
// timeout fires: persisting an interrupted batch and recording the result.
const staleRunGrace = time.Minute

// RunService owns the run lifecycle pending -> running -> completed|failed.
// The store admits at most one active run at a time.
type RunService struct {
	runs    ports.RunStore
	queue   ports.RunQueue
	runner  ports.PipelineRunner
	timeout time.Duration
	metrics ports.PipelineMetrics
	now     func() time.Time
}

// NewRunService wires the run lifecycle. queue may be nil when runs are only
// executed inline through RunNow.
func NewRunService(
	runs ports.RunStore,
	queue ports.RunQueue,
	runner ports.PipelineRunner,
	timeout time.Duration,
	metrics ports.PipelineMetrics,
) *RunService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &RunService{
		runs:    runs,
		queue:   queue,
		runner:  runner,
		timeout: timeout,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *RunService) Submit(ctx context.Context, limit int) (*domain.Run, error) {
	run, err := s.create(ctx, limit)
	if err != nil {
		return nil, err
	}
	if s.queue == nil {
		return run, nil
	}

	if err := s.queue.PublishRunRequested(ctx, run.ID); err != nil {
		// Release the admission slot; nothing will ever pick this run up.
		if markErr := s.runs.MarkFinished(ctx, run.ID, domain.RunFailed, nil, err.Error(), s.now()); markErr != nil {
			return nil, fmt.Errorf("publish run %s: %w; mark failed: %v", run.ID, err, markErr)
		}
		return nil, fmt.Errorf("publish run %s: %w", run.ID, err)
	}
	return run, nil
}

func (s *RunService) Get(ctx context.Context, id string) (*domain.Run, error) {
	return s.runs.GetRun(ctx, id)
}

// RunNow admits a run and executes it in the calling goroutine.
func (s *RunService) RunNow(ctx context.Context, limit int) (*domain.Run, error) {
	run, err := s.create(ctx, limit)
	if err != nil {
		return nil, err
	}
	execErr := s.Execute(ctx, run.ID)

	finished, err := s.runs.GetRun(ctx, run.ID)
	if err != nil {
		return nil, errors.Join(execErr, err)
	}
	return finished, execErr
}

// Execute drives a pending run to a terminal state.
func (s *RunService) Execute(ctx context.Context, runID string) error {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	if run.Status != domain.RunPending {
		return domain.WrapError(domain.ErrInvalidInput, "execute run", fmt.Errorf("run %s is %s", runID, run.Status))
	}

	startedAt := s.now()
	if err := s.runs.MarkRunning(ctx, runID, startedAt); err != nil {
		return fmt.Errorf("mark run %s running: %w", runID, err)
	}

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	summary, runErr := s.runner.Run(runCtx, run.Limit)
	status := domain.RunCompleted
	errMessage := ""
	if runErr != nil {
		status = domain.RunFailed
		errMessage = runErr.Error()
	}

	// The run context may already be expired; terminal state must still land.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	finishedAt := s.now()
	if err := s.runs.MarkFinished(finishCtx, runID, status, &summary, errMessage, finishedAt); err != nil {
		return errors.Join(runErr, fmt.Errorf("mark run %s %s: %w", runID, status, err))
	}
	s.metrics.ObserveRun(status, finishedAt.Sub(startedAt))

	slog.Info("run_finished",
		"run_id", runID,
		"status", string(status),
		"duration_ms", float64(finishedAt.Sub(startedAt).Microseconds())/1000.0,
		"error", errMessage,
	)
	return runErr
}

func (s *RunService) create(ctx context.Context, limit int) (*domain.Run, error) {
	if limit <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit run", fmt.Errorf("limit must be positive, got %d", limit))
	}
	if err := s.releaseStaleRuns(ctx); err != nil {
		return nil, err
	}
	run := &domain.Run{
		ID:        uuid.NewString(),
		Status:    domain.RunPending,
		Limit:     limit,
		CreatedAt: s.now(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// releaseStaleRuns fails active runs that outlived any live worker, so a
// crashed worker cannot hold the admission slot forever. Without a run
// timeout there is no bound to compare against and nothing is released.
func (s *RunService) releaseStaleRuns(ctx context.Context) error {
	if s.timeout <= 0 {
		return nil
	}
	now := s.now()
	released, err := s.runs.FailStaleRuns(ctx, now.Add(-(s.timeout + staleRunGrace)), "abandoned: exceeded run timeout without finishing", now)
	if err != nil {
		return fmt.Errorf("release stale runs: %w", err)
	}
	if released > 0 {
		slog.Warn("stale_runs_failed", "count", released)
	}
	return nil
}
