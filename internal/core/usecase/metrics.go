package usecase

import (
	"time"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
)

type noopMetrics struct{}

func (noopMetrics) ObserveEmail(string) {}
func (noopMetrics) ObserveClassifier(time.Duration, error) {}
func (noopMetrics) ObservePersist(string) {}
func (noopMetrics) ObserveRun(domain.RunStatus, time.Duration) {}

// emailOutcome is the metrics label for a processed record.
func emailOutcome(record domain.EmailRecord) string {
	if record.Extraction.Kind == domain.KindUnclassified && record.Extraction.SkipReason != domain.SkipNone {
		return string(record.Extraction.SkipReason)
	}
	return string(record.Extraction.Kind)
}
