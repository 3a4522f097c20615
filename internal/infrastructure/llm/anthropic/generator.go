package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
	"github.com/kirillkom/job-application-tracker/internal/infrastructure/resilience"
)

const (
	defaultMaxTokens     = 512
	jsonOnlySystemPrompt = "You classify emails for a job-application tracker. Reply with a single JSON object and nothing else."
)

type Options struct {
	MaxTokens          int64
	ResilienceExecutor *resilience.Executor
	// RequestOptions are appended to the SDK client options (base URL, HTTP
	// client).
	RequestOptions []option.RequestOption
}

// Generator is the hosted alternative to the local Ollama model.
type Generator struct {
	client    sdk.Client
	model     string
	maxTokens int64
	executor  *resilience.Executor
}

func NewGenerator(apiKey, model string, opts Options) *Generator {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	// Retries are owned by the resilience executor.
	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts.RequestOptions...)

	return &Generator{
		client:    sdk.NewClient(clientOpts...),
		model:     model,
		maxTokens: maxTokens,
		executor:  opts.ResilienceExecutor,
	}
}

func (g *Generator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	params := sdk.MessageNewParams{
		Model:       sdk.Model(g.model),
		MaxTokens:   g.maxTokens,
		System:      []sdk.TextBlockParam{{Text: jsonOnlySystemPrompt}},
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
		Temperature: sdk.Float(0),
	}

	out, err := resilience.Call(ctx, g.executor, "anthropic.messages", func(callCtx context.Context) (string, error) {
		msg, err := g.client.Messages.New(callCtx, params)
		if err != nil {
			return "", fmt.Errorf("anthropic create message: %w", err)
		}
		return messageText(msg), nil
	}, classifyAnthropicError)
	if err != nil {
		if classifyAnthropicError(err).Retryable || resilience.IsCircuitOpen(err) {
			return "", domain.WrapError(domain.ErrTemporary, "anthropic generate", err)
		}
		return "", err
	}
	return out, nil
}

func messageText(msg *sdk.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

func classifyAnthropicError(err error) resilience.ErrorClassification {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch code := apiErr.StatusCode; {
		case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}
	return resilience.ClassifyTransportError(err)
}
