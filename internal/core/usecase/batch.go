package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
	"github.com/kirillkom/job-application-tracker/internal/core/ports"
)

// BatchResult keeps every fetched record in fetch order, plus the subset the
// classifier marked as job applications.
type BatchResult struct {
	All          []domain.EmailRecord
	Applications []domain.EmailRecord
	// Interrupted is set when the context ended before every record was
	// classified. The records left over are marked SkipInterrupted.
	Interrupted bool
}

type BatchProcessor struct {
	fetcher     ports.MailboxFetcher
	gate        ports.RelevanceGate
	classifier  ports.EmailClassifier
	concurrency int
	metrics     ports.PipelineMetrics
}

func NewBatchProcessor(
	fetcher ports.MailboxFetcher,
	gate ports.RelevanceGate,
	classifier ports.EmailClassifier,
	concurrency int,
	metrics ports.PipelineMetrics,
) *BatchProcessor {
	if concurrency <= 0 {
		concurrency = 1
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &BatchProcessor{
		fetcher:     fetcher,
		gate:        gate,
		classifier:  classifier,
		concurrency: concurrency,
		metrics:     metrics,
	}
}

func (p *BatchProcessor) Run(ctx context.Context, limit int) (BatchResult, error) {
	if limit <= 0 {
		return BatchResult{}, domain.WrapError(domain.ErrInvalidInput, "run batch", fmt.Errorf("limit must be positive, got %d", limit))
	}

	messages, err := p.fetcher.Fetch(ctx, limit)
	if err != nil {
		return BatchResult{}, fmt.Errorf("fetch messages: %w", err)
	}
	if len(messages) > limit {
		messages = messages[:limit]
	}

	records := make([]domain.EmailRecord, len(messages))
	pending := make([]int, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))

	for i, msg := range messages {
		record := domain.NewEmailRecord(msg)

		var reason domain.SkipReason
		if _, dup := seen[msg.UID]; dup {
			reason = domain.SkipDuplicateInBatch
		} else if !p.gate.ShouldClassify(msg.Subject, msg.Body) {
			reason = domain.SkipGateRejected
		}
		seen[msg.UID] = struct{}{}

		if reason == domain.SkipNone {
			records[i] = record
			pending = append(pending, i)
			continue
		}
		skipped, err := record.Skipped(reason)
		if err != nil {
			return BatchResult{}, err
		}
		records[i] = skipped
	}

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for _, idx := range pending {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			classified, err := p.classify(ctx, records[idx])
			if err != nil {
				return err
			}
			records[idx] = classified
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, fmt.Errorf("classify batch: %w", err)
	}

	result := BatchResult{All: records}
	for _, idx := range pending {
		if records[idx].Classified() {
			continue
		}
		skipped, err := records[idx].Skipped(domain.SkipInterrupted)
		if err != nil {
			return BatchResult{}, err
		}
		records[idx] = skipped
		result.Interrupted = true
	}
	for _, record := range records {
		p.metrics.ObserveEmail(emailOutcome(record))
		if record.IsApplication() {
			result.Applications = append(result.Applications, record)
		}
	}
	return result, nil
}

// classify never fails because of the classifier: an unavailable or
// malformed classification leaves the record unclassified. A record whose
// call was cut short by the batch context is returned untouched.
func (p *BatchProcessor) classify(ctx context.Context, record domain.EmailRecord) (domain.EmailRecord, error) {
	msg := record.Message
	extraction, err := p.classifier.Classify(ctx, msg.Sender, msg.Subject, msg.Body)
	if err != nil {
		if ctx.Err() != nil {
			return record, nil
		}
		slog.Warn("classify_failed",
			"uid", msg.UID,
			"malformed", domain.IsKind(err, domain.ErrMalformedResponse),
			"error", err,
		)
		return record.Skipped(domain.SkipClassifierFailed)
	}
	return record.WithExtraction(extraction)
}
