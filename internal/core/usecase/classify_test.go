package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
)

func TestClassifyParsesJSONWrappedInProse(t *testing.T) {
	gen := &generatorFake{response: `Sure! Here is the result:
{"is_application": true, "stage": "Interview", "company": "Acme Corp", "position": "Backend Engineer", "confidence": "High"}
Let me know if you need anything else.`}
	adapter := NewClassifierAdapter(gen, ClassifierOptions{})

	x, err := adapter.Classify(context.Background(), "jobs@acme.example", "Interview", "Let's talk")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if x.Kind != domain.KindApplication {
		t.Fatalf("expected application, got %s", x.Kind)
	}
	if x.Company != "Acme Corp" || x.Position != "Backend Engineer" {
		t.Fatalf("unexpected company/position: %+v", x)
	}
	if x.Stage != domain.StageInterview || x.Confidence != domain.ConfidenceHigh {
		t.Fatalf("unexpected stage/confidence: %+v", x)
	}
}

func TestClassifySkipsBrokenObjectsBeforeValidOne(t *testing.T) {
	gen := &generatorFake{response: `{not json} and {"is_application": "yes", "stage": null, "company": "Globex", "position": "null", "confidence": "medium"}`}
	adapter := NewClassifierAdapter(gen, ClassifierOptions{})

	x, err := adapter.Classify(context.Background(), "a@b.c", "s", "b")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if x.Kind != domain.KindApplication || x.Company != "Globex" {
		t.Fatalf("unexpected extraction: %+v", x)
	}
	if x.Position != "" || x.Stage != "" {
		t.Fatalf("expected null placeholders to become empty, got %+v", x)
	}
	if x.Confidence != domain.ConfidenceMedium {
		t.Fatalf("expected medium confidence, got %q", x.Confidence)
	}
}

func TestClassifyIgnoresObjectsNestedInRejectedPayload(t *testing.T) {
	gen := &generatorFake{response: `{"is_application": "maybe", "inner": {"is_application": true, "company": "Acme", "position": "SRE", "confidence": "high"}}`}
	adapter := NewClassifierAdapter(gen, ClassifierOptions{})

	x, err := adapter.Classify(context.Background(), "a@b.c", "s", "b")
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v (extraction %+v)", err, x)
	}
}

func TestClassifyNotApplication(t *testing.T) {
	gen := &generatorFake{response: `{"is_application": false, "stage": null, "company": null, "position": null, "confidence": "high"}`}
	adapter := NewClassifierAdapter(gen, ClassifierOptions{})

	x, err := adapter.Classify(context.Background(), "a@b.c", "s", "b")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if x.Kind != domain.KindNotApplication || x.Company != "" {
		t.Fatalf("unexpected extraction: %+v", x)
	}
}

func TestClassifyMapsUnknownStageToOther(t *testing.T) {
	gen := &generatorFake{response: `{"is_application": true, "stage": "ghosted", "company": "Acme", "position": "SRE", "confidence": "low"}`}
	adapter := NewClassifierAdapter(gen, ClassifierOptions{})

	x, err := adapter.Classify(context.Background(), "a@b.c", "s", "b")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if x.Stage != domain.StageOther {
		t.Fatalf("expected other, got %q", x.Stage)
	}
}

func TestClassifyWithoutJSONIsMalformed(t *testing.T) {
	gen := &generatorFake{response: "I cannot help with that."}
	adapter := NewClassifierAdapter(gen, ClassifierOptions{})

	_, err := adapter.Classify(context.Background(), "a@b.c", "s", "b")
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
	if !errors.Is(err, domain.ErrClassificationUnavailable) {
		t.Fatalf("expected malformed response to be a classification failure, got %v", err)
	}
}

func TestClassifyGeneratorErrorIsUnavailable(t *testing.T) {
	gen := &generatorFake{err: errors.New("connection refused")}
	adapter := NewClassifierAdapter(gen, ClassifierOptions{})

	_, err := adapter.Classify(context.Background(), "a@b.c", "s", "b")
	if !domain.IsKind(err, domain.ErrClassificationUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("transport failure must not be reported as malformed")
	}
}

func TestClassifyTimesOut(t *testing.T) {
	gen := &generatorFake{block: true}
	adapter := NewClassifierAdapter(gen, ClassifierOptions{Timeout: 20 * time.Millisecond})

	_, err := adapter.Classify(context.Background(), "a@b.c", "s", "b")
	if !domain.IsKind(err, domain.ErrClassificationUnavailable) {
		t.Fatalf("expected unavailable after timeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestClassifyTruncatesBodyInPrompt(t *testing.T) {
	gen := &generatorFake{response: `{"is_application": false}`}
	adapter := NewClassifierAdapter(gen, ClassifierOptions{})
	body := strings.Repeat("é", maxClassifierBodyChars) + "TAIL-MARKER"

	if _, err := adapter.Classify(context.Background(), "a@b.c", "Subject line", body); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if strings.Contains(gen.prompt, "TAIL-MARKER") {
		t.Fatalf("expected body beyond %d characters to be dropped", maxClassifierBodyChars)
	}
	if !strings.Contains(gen.prompt, strings.Repeat("é", maxClassifierBodyChars)) {
		t.Fatalf("expected the first %d characters to be kept", maxClassifierBodyChars)
	}
	if !strings.Contains(gen.prompt, "Subject line") || !strings.Contains(gen.prompt, "a@b.c") {
		t.Fatalf("expected sender and subject in prompt")
	}
}

func TestClassifyRateLimitHonoursContext(t *testing.T) {
	gen := &generatorFake{response: `{"is_application": false}`}
	adapter := NewClassifierAdapter(gen, ClassifierOptions{RatePerSecond: 0.001})

	if _, err := adapter.Classify(context.Background(), "a@b.c", "s", "b"); err != nil {
		t.Fatalf("first Classify() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := adapter.Classify(ctx, "a@b.c", "s", "b")
	if !domain.IsKind(err, domain.ErrClassificationUnavailable) {
		t.Fatalf("expected throttled call to fail as unavailable, got %v", err)
	}
}
