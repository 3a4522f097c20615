package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/job-application-tracker/internal/config"
	"github.com/kirillkom/job-application-tracker/internal/core/ports"
	"github.com/kirillkom/job-application-tracker/internal/core/usecase"
	"github.com/kirillkom/job-application-tracker/internal/infrastructure/llm/anthropic"
	"github.com/kirillkom/job-application-tracker/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/job-application-tracker/internal/infrastructure/mailbox/imap"
	"github.com/kirillkom/job-application-tracker/internal/infrastructure/mailbox/localfs"
	"github.com/kirillkom/job-application-tracker/internal/infrastructure/queue/nats"
	"github.com/kirillkom/job-application-tracker/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/job-application-tracker/internal/infrastructure/resilience"
	"github.com/kirillkom/job-application-tracker/internal/observability/metrics"
)

type Options struct {
	// Queue connects to NATS. Without it runs can only be executed inline.
	Queue bool
	// Service labels pipeline metrics.
	Service string
}

type App struct {
	Config config.Config

	Queue   ports.RunQueue
	Tracker *postgres.TrackerRepository
	Reader  ports.ApplicationReader
	Runs    *usecase.RunService
	Metrics *metrics.PipelineMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	tracker := postgres.NewTrackerRepository(db)
	ensureSchemaBestEffort(ctx, tracker)
	runRepo := postgres.NewRunRepository(db)

	closers := []func(){func() { _ = db.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var queue ports.RunQueue
	if opts.Queue {
		q, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init run queue: %w", err)
		}
		closers = append(closers, q.Close)
		queue = q
	}

	service := opts.Service
	if service == "" {
		service = "tracker"
	}
	pipelineMetrics := metrics.NewPipelineMetrics(service)

	fetcher, err := newFetcher(cfg)
	if err != nil {
		closeAll()
		return nil, err
	}
	classifierPolicy := resilience.ClassifierCallConfig(cfg.ClassifierTimeout())
	generator, err := newGenerator(cfg, classifierPolicy)
	if err != nil {
		closeAll()
		return nil, err
	}
	vocab, err := config.LoadGateVocabulary(cfg.GateVocabularyFile)
	if err != nil {
		closeAll()
		return nil, err
	}

	gate := usecase.NewKeywordGate(vocab.Keywords, vocab.Phrases)
	classifier := usecase.NewClassifierAdapter(generator, usecase.ClassifierOptions{
		Timeout:       classifierPolicy.CallBudget(),
		RatePerSecond: cfg.ClassifierRateLimitRPS,
		Metrics:       pipelineMetrics,
	})
	batch := usecase.NewBatchProcessor(fetcher, gate, classifier, cfg.ClassifyConcurrency, pipelineMetrics)
	engine := usecase.NewReconcileEngine(tracker, pipelineMetrics)
	driver := usecase.NewPipelineDriver(tracker, batch, engine)
	runs := usecase.NewRunService(runRepo, queue, driver, cfg.RunTimeout(), pipelineMetrics)

	slog.Info("bootstrap_ready",
		"mailbox_source", cfg.MailboxSource,
		"llm_provider", cfg.LLMProvider,
		"queue", opts.Queue,
	)

	return &App{
		Config:  cfg,
		Queue:   queue,
		Tracker: tracker,
		Reader:  tracker,
		Runs:    runs,
		Metrics: pipelineMetrics,
		closeFn: closeAll,
	}, nil
}

// ensureSchemaBestEffort lets the process start while Postgres is still
// unreachable. Each pipeline run ensures the schema again before touching it.
func ensureSchemaBestEffort(ctx context.Context, schema ports.SchemaManager) bool {
	if err := schema.EnsureSchema(ctx); err != nil {
		slog.Warn("ensure_schema_failed", "error", err.Error())
		return false
	}
	return true
}

// OpenStore opens Postgres without building the pipeline.
func OpenStore(cfg config.Config) (*sql.DB, *postgres.TrackerRepository, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, postgres.NewTrackerRepository(db), nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newFetcher(cfg config.Config) (ports.MailboxFetcher, error) {
	switch cfg.MailboxSource {
	case config.MailboxIMAP:
		if cfg.EmailUser == "" || cfg.EmailPass == "" {
			return nil, fmt.Errorf("imap mailbox requires EMAIL_USER and EMAIL_PASS")
		}
		return imap.New(cfg.IMAPServer, cfg.EmailUser, cfg.EmailPass, imap.Options{
			Mailbox:            cfg.IMAPMailbox,
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		}), nil
	case config.MailboxLocalFS:
		mailbox, err := localfs.New(cfg.MaildirPath)
		if err != nil {
			return nil, fmt.Errorf("init local mailbox: %w", err)
		}
		return mailbox, nil
	default:
		return nil, fmt.Errorf("unknown MAILBOX_SOURCE %q", cfg.MailboxSource)
	}
}

func newGenerator(cfg config.Config, policy resilience.Config) (ports.TextGenerator, error) {
	executor := resilience.NewExecutor(policy)
	switch cfg.LLMProvider {
	case config.ProviderOllama:
		client := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, ollama.Options{
			ResilienceExecutor: executor,
		})
		return ollama.NewGenerator(client), nil
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY")
		}
		return anthropic.NewGenerator(cfg.AnthropicAPIKey, cfg.AnthropicModel, anthropic.Options{
			ResilienceExecutor: executor,
		}), nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}
