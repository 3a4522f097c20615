package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
	"github.com/kirillkom/job-application-tracker/internal/core/ports"
)

type ClassifierOptions struct {
	// Timeout bounds one classifier call; zero disables it.
	Timeout time.Duration
	// RatePerSecond throttles classifier calls; zero disables throttling.
	RatePerSecond float64
	Metrics       ports.PipelineMetrics
}

// ClassifierAdapter turns the opaque text generator into an EmailClassifier
// with a fixed prompt and strict response parsing.
type ClassifierAdapter struct {
	generator ports.TextGenerator
	timeout   time.Duration
	limiter   *rate.Limiter
	metrics   ports.PipelineMetrics
}

func NewClassifierAdapter(generator ports.TextGenerator, opts ClassifierOptions) *ClassifierAdapter {
	a := &ClassifierAdapter{
		generator: generator,
		timeout:   opts.Timeout,
		metrics:   opts.Metrics,
	}
	if a.metrics == nil {
		a.metrics = noopMetrics{}
	}
	if opts.RatePerSecond > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return a
}

func (a *ClassifierAdapter) Classify(ctx context.Context, sender, subject, body string) (domain.Extraction, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return domain.Extraction{}, domain.WrapError(domain.ErrClassificationUnavailable, "classifier rate limit", err)
		}
	}

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := a.generator.GenerateJSON(callCtx, buildEmailClassificationPrompt(sender, subject, body))
	if err != nil {
		a.metrics.ObserveClassifier(time.Since(start), err)
		return domain.Extraction{}, domain.WrapError(domain.ErrClassificationUnavailable, "classifier call", err)
	}

	extraction, err := parseClassification(raw)
	a.metrics.ObserveClassifier(time.Since(start), err)
	if err != nil {
		return domain.Extraction{}, err
	}
	return extraction, nil
}

type classificationPayload struct {
	IsApplication looseBool `json:"is_application"`
	Stage         *string   `json:"stage"`
	Company       *string   `json:"company"`
	Position      *string   `json:"position"`
	Confidence    *string   `json:"confidence"`
}

// parseClassification decodes the first well-formed JSON object embedded in
// raw. Prose before or after the object is ignored.
func parseClassification(raw string) (domain.Extraction, error) {
	payload, err := firstJSONObject(raw)
	if err != nil {
		return domain.Extraction{}, err
	}

	confidence := domain.ParseConfidence(deref(payload.Confidence))
	if !bool(payload.IsApplication) {
		return domain.NotApplication(confidence), nil
	}
	return domain.ApplicationExtraction(
		cleanField(payload.Company),
		cleanField(payload.Position),
		domain.ParseStage(deref(payload.Stage)),
		confidence,
	), nil
}

func firstJSONObject(raw string) (classificationPayload, error) {
	for offset := 0; offset < len(raw); {
		idx := strings.IndexByte(raw[offset:], '{')
		if idx < 0 {
			break
		}
		start := offset + idx

		var obj json.RawMessage
		dec := json.NewDecoder(strings.NewReader(raw[start:]))
		if err := dec.Decode(&obj); err != nil {
			offset = start + 1
			continue
		}
		var payload classificationPayload
		if err := json.Unmarshal(obj, &payload); err == nil {
			return payload, nil
		}
		// A well-formed object with a bad payload is skipped whole so that
		// objects nested inside it are never taken for the answer.
		offset = start + int(dec.InputOffset())
	}

	snippet := truncateRunes(strings.TrimSpace(raw), 200)
	return classificationPayload{}, fmt.Errorf("%w: no json object in %q", domain.ErrMalformedResponse, snippet)
}

// looseBool accepts JSON booleans and the yes/no strings small models emit.
type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = looseBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("is_application: expected boolean")
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y":
		*b = true
	case "false", "no", "n", "":
		*b = false
	default:
		return fmt.Errorf("is_application: unexpected value %q", s)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cleanField(s *string) string {
	v := strings.TrimSpace(deref(s))
	switch strings.ToLower(v) {
	case "null", "none", "unknown", "n/a":
		return ""
	}
	return v
}
