package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"TopicNewsletter/internal/domain"
	"TopicNewsletter/internal/ports"
)

const (
	defaultLockTTL   = 30 * time.Minute
	digestOverview   = 280
	persistTimeout   = 30 * time.Second
	digestTopArticle = 3
)

// Plan describes one newsletter run.
type Plan struct {
	MainTopic string
	SubTopics []domain.TopicSpec
	Options   Options
	// MinAverageQuality gates assembly on QualityReview.AverageQuality.
	MinAverageQuality float64
}

// WithTopics narrows the plan to the named sub-topics, keeping configured
// order. Names match case-insensitively; an unknown name is a
// ConfigurationError.
func (p Plan) WithTopics(names []string) (Plan, error) {
	if len(names) == 0 {
		return p, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.ToLower(strings.TrimSpace(n))] = true
	}
	var topics []domain.TopicSpec
	for _, t := range p.SubTopics {
		key := strings.ToLower(strings.TrimSpace(t.Name))
		if wanted[key] {
			topics = append(topics, t)
			delete(wanted, key)
		}
	}
	if len(wanted) > 0 {
		var unknown []string
		for _, n := range names {
			if wanted[strings.ToLower(strings.TrimSpace(n))] {
				unknown = append(unknown, n)
			}
		}
		return p, domain.ConfigError("unknown topics: %s", strings.Join(unknown, ", "))
	}
	p.SubTopics = topics
	return p, nil
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Engine     *Engine
	States     ports.StateStore
	Repository ports.ArticleRepository
	Locker     ports.RunLocker
	LockTTL    time.Duration
	Assembler  ports.Assembler
	Notifier   ports.Notifier
	Logger     *slog.Logger
}

// Pipeline runs the engine and hands completed runs over to assembly and delivery.
type Pipeline struct {
	engine     *Engine
	states     ports.StateStore
	repository ports.ArticleRepository
	locker     ports.RunLocker
	lockTTL    time.Duration
	assembler  ports.Assembler
	notifier   ports.Notifier
	logger     *slog.Logger
}

// Result is what Process produced. State is non-nil whenever the engine ran.
type Result struct {
	State      *domain.WorkflowState
	Newsletter *domain.Newsletter
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ttl := deps.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Pipeline{
		engine:     deps.Engine,
		states:     deps.States,
		repository: deps.Repository,
		locker:     deps.Locker,
		lockTTL:    ttl,
		assembler:  deps.Assembler,
		notifier:   deps.Notifier,
		logger:     logger,
	}
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Process executes a run end to end: lock, engine, snapshot, persistence,
// quality gate, assembly and delivery.
func (p *Pipeline) Process(ctx context.Context, plan Plan) (Result, error) {
	if p.engine == nil {
		return Result{}, domain.ConfigError("pipeline has no engine")
	}
	if plan.Options.RunID == "" {
		plan.Options.RunID = NewRunID()
	}
	runID := plan.Options.RunID
	log := p.logger.With("run_id", runID, "main_topic", plan.MainTopic)

	if p.locker != nil {
		release, ok, err := p.locker.Acquire(ctx, lockKey(plan.MainTopic), p.lockTTL)
		if err != nil {
			return Result{}, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			log.Warn("run skipped, another run holds the lock")
			return Result{}, fmt.Errorf("%w: %s", domain.ErrRunLocked, plan.MainTopic)
		}
		defer release()
	}

	p.snapshot(ctx, domain.NewWorkflowState(runID, plan.MainTopic, plan.SubTopics), log)

	state, runErr := p.engine.Run(ctx, plan.MainTopic, plan.SubTopics, plan.Options)
	res := Result{State: state}

	p.snapshot(ctx, state, log)
	if p.repository != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		if err := p.repository.SaveRun(saveCtx, state); err != nil {
			log.Warn("persist run failed", "error", err)
		}
		cancel()
	}

	if runErr != nil {
		return res, runErr
	}

	avg := 0.0
	if state.QualityReview != nil {
		avg = state.QualityReview.AverageQuality
	}
	if state.Status != domain.StatusCompleted || !(avg >= plan.MinAverageQuality) {
		log.Warn("quality gate not met", "status", state.Status, "average_quality", avg, "minimum", plan.MinAverageQuality)
		return res, fmt.Errorf("%w: average quality %.2f below %.2f", domain.ErrQualityGate, avg, plan.MinAverageQuality)
	}

	if p.assembler != nil {
		newsletter, err := p.assembler.Assemble(ctx, state)
		if err != nil {
			return res, fmt.Errorf("assemble newsletter: %w", err)
		}
		res.Newsletter = newsletter
		log.Info("newsletter assembled",
			"markdown", newsletter.Artifacts.MarkdownPath,
			"html", newsletter.Artifacts.HTMLPath,
			"warnings", len(newsletter.Warnings))
	}

	if p.notifier == nil {
		return res, nil
	}
	if err := p.notifier.PublishDigest(ctx, buildDigestMessage(state)); err != nil {
		return res, fmt.Errorf("publish digest: %w", err)
	}
	return res, nil
}

func (p *Pipeline) snapshot(ctx context.Context, state *domain.WorkflowState, log *slog.Logger) {
	if p.states == nil || state == nil {
		return
	}
	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := p.states.Put(putCtx, state); err != nil {
		log.Warn("snapshot run state failed", "status", state.Status, "error", err)
	}
}

// IsSkipped reports whether err means the run did not produce a newsletter
// for an expected reason rather than a failure.
func IsSkipped(err error) bool {
	return errors.Is(err, domain.ErrRunLocked) || errors.Is(err, domain.ErrQualityGate)
}

func lockKey(mainTopic string) string {
	return "run:" + strings.ToLower(strings.Join(strings.Fields(mainTopic), "-"))
}

// buildDigestMessage renders a short plain-text digest suitable for chat delivery.
func buildDigestMessage(state *domain.WorkflowState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", state.MainTopic)
	if state.ExecutiveSummary != nil {
		fmt.Fprintf(&b, "%s\n\n", clip(*state.ExecutiveSummary, digestOverview*2))
	}
	for _, summary := range state.TopicSummaries {
		fmt.Fprintf(&b, "- %s (quality %.2f)\n%s\n", summary.TopicName, summary.QualityScore, clip(summary.Overview, digestOverview))
		for i, article := range summary.TopArticles {
			if i == digestTopArticle {
				break
			}
			fmt.Fprintf(&b, "  %s\n  %s\n", article.Title, article.URL)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func clip(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= limit {
		return s
	}
	return strings.TrimSpace(truncateRunes(s, limit)) + "..."
}
