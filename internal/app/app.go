package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"TopicNewsletter/internal/assembly"
	"TopicNewsletter/internal/config"
	"TopicNewsletter/internal/domain"
	"TopicNewsletter/internal/httpapi"
	"TopicNewsletter/internal/infrastructure/cache"
	"TopicNewsletter/internal/infrastructure/content"
	"TopicNewsletter/internal/infrastructure/heuristic"
	"TopicNewsletter/internal/infrastructure/llm"
	"TopicNewsletter/internal/infrastructure/ml"
	"TopicNewsletter/internal/infrastructure/parser"
	"TopicNewsletter/internal/infrastructure/scheduler"
	"TopicNewsletter/internal/infrastructure/storage"
	"TopicNewsletter/internal/infrastructure/telegram"
	"TopicNewsletter/internal/infrastructure/websearch"
	"TopicNewsletter/internal/logging"
	"TopicNewsletter/internal/metrics"
	"TopicNewsletter/internal/ports"
	"TopicNewsletter/internal/search"
	"TopicNewsletter/internal/usecase"
)

const (
	httpTimeout     = 30 * time.Second
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	pipeline *usecase.Pipeline
	states   ports.StateStore
	closers  []func() error
}

// New validates cfg and connects every configured adapter. Postgres, Redis,
// Telegram and the model backends are optional; missing ones fall back to
// in-process behaviour.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Application{cfg: cfg, logger: baseLogger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(a.registry)

	httpClient := &http.Client{Timeout: httpTimeout}

	chain, err := buildSearch(cfg, httpClient, baseLogger)
	if err != nil {
		return nil, err
	}

	scorer, summarizer, reviewer := buildAgents(cfg, httpClient, baseLogger)

	var extractor ports.ContentExtractor
	if cfg.Search.EnrichSnippets {
		extractor = content.NewExtractor(httpClient, cfg.Search.UserAgent)
	}

	var repo *storage.PostgresRepository
	if cfg.Database.DSN != "" {
		db, err := connectPostgres(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		repo = storage.NewPostgresRepository(db)
	}

	var locker ports.RunLocker
	switch {
	case cfg.Redis.Addr != "":
		client, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		a.states = cache.NewStateStore(client, cfg.Redis.KeyPrefix, cfg.Redis.SnapshotTTL())
		locker = cache.NewRunLock(client, cfg.Redis.KeyPrefix)
	case repo != nil:
		a.states = repo
	}

	engineDeps := usecase.EngineDeps{
		Search:     chain,
		Scorer:     scorer,
		Summarizer: summarizer,
		Reviewer:   reviewer,
		Extractor:  extractor,
		Metrics:    recorder,
		Logger:     baseLogger.With("component", "engine"),
	}
	pipelineDeps := usecase.PipelineDeps{
		States:    a.states,
		Locker:    locker,
		LockTTL:   cfg.Workflow.LockTTL(),
		Assembler: assembly.New(assembly.Config{OutputDir: cfg.Output.Dir, SelectedTopics: cfg.Newsletter.SelectedTopics}, assembly.Collaborators{}, baseLogger),
		Logger:    baseLogger.With("component", "pipeline"),
	}
	if repo != nil {
		engineDeps.Repository = repo
		pipelineDeps.Repository = repo
	}
	if n := telegram.NewNotifier(cfg.Notifications.Telegram, nil); n.Enabled() {
		pipelineDeps.Notifier = n
	}
	pipelineDeps.Engine = usecase.NewEngine(engineDeps)
	a.pipeline = usecase.NewPipeline(pipelineDeps)

	return a, nil
}

func buildSearch(cfg config.Config, client *http.Client, logger *slog.Logger) (*search.Chain, error) {
	registry := search.NewRegistry()
	if cfg.Search.Serper.APIKey != "" {
		registry.Register(websearch.NewSerperProvider(cfg.Search.Serper, client))
	}
	if cfg.Search.Tavily.APIKey != "" {
		registry.Register(websearch.NewTavilyProvider(cfg.Search.Tavily, client))
	}
	registry.Register(parser.NewArxivProvider(client, cfg.Search.Arxiv.BaseURL, cfg.Search.UserAgent))
	return registry.Chain(cfg.Search.Providers, logger.With("component", "search"))
}

// buildAgents prefers the chat model, then lets the inference service take
// over scoring and review when configured. Without either, heuristics run.
func buildAgents(cfg config.Config, client *http.Client, logger *slog.Logger) (ports.RelevanceScorer, ports.Summarizer, ports.QualityReviewer) {
	var (
		scorer     ports.RelevanceScorer = heuristic.Scorer{}
		summarizer ports.Summarizer      = heuristic.Summarizer{}
		reviewer   ports.QualityReviewer = heuristic.Reviewer{}
		backend                          = "heuristic"
	)
	if cfg.ChatGPT.APIKey != "" {
		chat := llm.NewChatGPTClient(cfg.ChatGPT, nil)
		scorer, summarizer, reviewer = llm.NewScorer(chat), llm.NewSummarizer(chat), llm.NewReviewer(chat)
		backend = "chatgpt"
	}
	if cfg.ML.InferenceURL != "" {
		svc := ml.NewClient(cfg.ML.InferenceURL, cfg.ML.APIKey, client)
		scorer, reviewer = svc, svc
		backend += "+ml"
	}
	logger.Info("agents configured", "backend", backend)
	return scorer, summarizer, reviewer
}

func connectPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return storage.Open(cctx, dsn)
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(cctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Plan builds a run plan from configuration.
func (a *Application) Plan() usecase.Plan {
	w := a.cfg.Workflow
	opts := usecase.DefaultOptions()
	opts.RelevanceThreshold = w.RelevanceThreshold
	opts.MaxArticlesPerTopic = w.MaxArticlesPerTopic
	opts.MaxLoopIterations = w.MaxLoopIterations
	opts.StageTimeout = w.StageTimeout()
	opts.MaxSearchResults = w.MaxSearchResults
	opts.RecencyDays = w.RecencyDays
	opts.Parallelism = w.Parallelism
	opts.DefaultQualityScore = w.DefaultQualityScore
	opts.FeedbackThreshold = w.FeedbackThreshold

	topics := make([]domain.TopicSpec, len(a.cfg.Newsletter.SubTopics))
	copy(topics, a.cfg.Newsletter.SubTopics)
	return usecase.Plan{
		MainTopic:         a.cfg.Newsletter.MainTopic,
		SubTopics:         topics,
		Options:           opts,
		MinAverageQuality: w.MinAverageQuality,
	}
}

// RunOnce executes one run, optionally narrowed to topics and with a
// parallelism override (0 keeps the configured value).
func (a *Application) RunOnce(ctx context.Context, topics []string, parallelism int) (usecase.Result, error) {
	plan, err := a.Plan().WithTopics(topics)
	if err != nil {
		return usecase.Result{}, err
	}
	if parallelism > 0 {
		plan.Options.Parallelism = parallelism
	}
	return a.pipeline.Process(ctx, plan)
}

// Schedule runs the pipeline on the configured cron expression until ctx is
// done. The run API is served read-only on the metrics address when set.
func (a *Application) Schedule(ctx context.Context) error {
	driver, err := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location())
	if err != nil {
		return domain.ConfigError("%v", err)
	}
	sched := usecase.NewScheduler(driver, a.pipeline, a.Plan, a.logger.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("scheduler started",
		"cron", a.cfg.Scheduler.CronExpression,
		"timezone", a.cfg.Scheduler.Location().String(),
		"next", driver.Next(time.Now()))

	var srv *httpapi.Server
	errCh := make(chan error, 1)
	if a.cfg.Metrics.Addr != "" {
		srv = httpapi.New(httpapi.Deps{States: a.states, Metrics: metrics.Handler(a.registry), Logger: a.logger})
		go func() { errCh <- srv.Start(a.cfg.Metrics.Addr) }()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stopErr := sched.Stop(shutdownCtx)
	if srv != nil {
		stopErr = errors.Join(stopErr, srv.Shutdown(shutdownCtx))
	}
	return errors.Join(serveErr, stopErr)
}

// Serve runs the HTTP run API until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	srv := httpapi.New(httpapi.Deps{
		Runner:  a.pipeline,
		States:  a.states,
		Plan:    a.Plan,
		Metrics: metrics.Handler(a.registry),
		Logger:  a.logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(a.cfg.HTTP.Addr) }()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, srv.Shutdown(shutdownCtx))
}

// Close releases database and cache connections.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
