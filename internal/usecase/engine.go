package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"TopicNewsletter/internal/domain"
	"TopicNewsletter/internal/metrics"
	"TopicNewsletter/internal/ports"
)

// EngineDeps wires the collaborators the topic loop calls into.
type EngineDeps struct {
	Search     ports.SearchProvider
	Scorer     ports.RelevanceScorer
	Summarizer ports.Summarizer
	Reviewer   ports.QualityReviewer
	// Extractor and Repository are optional.
	Extractor  ports.ContentExtractor
	Repository ports.ArticleRepository
	Metrics    *metrics.Recorder
	Logger     *slog.Logger
	// Clock must be safe for concurrent use when Parallelism > 1.
	Clock func() time.Time
}

// Engine drives the per-topic fetch/score/summarize loop and the aggregation that follows it.
// An Engine holds no per-run state; concurrent Run calls are isolated from each other.
type Engine struct {
	search     ports.SearchProvider
	scorer     ports.RelevanceScorer
	summarizer ports.Summarizer
	reviewer   ports.QualityReviewer
	extractor  ports.ContentExtractor
	repository ports.ArticleRepository
	metrics    *metrics.Recorder
	logger     *slog.Logger
	now        func() time.Time

	// proceed is the loop continuation predicate.
	proceed func(*domain.WorkflowState) bool
}

// NewEngine constructs the workflow engine.
func NewEngine(deps EngineDeps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{
		search:     deps.Search,
		scorer:     deps.Scorer,
		summarizer: deps.Summarizer,
		reviewer:   deps.Reviewer,
		extractor:  deps.Extractor,
		repository: deps.Repository,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        now,
		proceed:    topicsRemaining,
	}
}

func topicsRemaining(state *domain.WorkflowState) bool {
	return state.CurrentTopicIndex < len(state.SubTopics)
}

// Run executes one workflow run. The returned state is always non-nil and inspectable,
// including when err is non-nil (status is then failed).
func (e *Engine) Run(ctx context.Context, mainTopic string, subTopics []domain.TopicSpec, opts Options) (*domain.WorkflowState, error) {
	state := domain.NewWorkflowState(opts.RunID, strings.TrimSpace(mainTopic), subTopics)
	log := e.logger.With("run_id", opts.RunID, "main_topic", state.MainTopic)

	opts, err := e.validate(state, opts)
	if err != nil {
		state.RecordError(domain.KindConfiguration, "", domain.StageEngine, err, e.now())
		state.Fail(e.now())
		e.metrics.RunFinished(string(state.Status))
		log.Error("run rejected", "error", err)
		return state, err
	}

	state.Start(e.now())
	log.Info("run started", "topics", len(state.SubTopics), "parallelism", opts.Parallelism)

	if err := e.loop(ctx, state, opts, log); err != nil {
		e.finishFailed(state, log, err)
		return state, err
	}

	e.review(state, opts)

	if _, err := e.aggregate(ctx, state, opts); err != nil {
		e.finishFailed(state, log, err)
		return state, err
	}

	state.Complete(e.now())
	e.metrics.RunFinished(string(state.Status))
	m := state.Metrics(e.now())
	log.Info("run completed",
		"topics_summarized", m.TopicsProcessed,
		"topics_failed", m.TopicsFailed,
		"articles", m.TotalArticles,
		"average_quality", m.AverageQuality,
		"duration", m.Duration)
	return state, nil
}

func (e *Engine) validate(state *domain.WorkflowState, opts Options) (Options, error) {
	if state.MainTopic == "" {
		return opts, domain.ConfigError("main topic is empty")
	}
	if len(state.SubTopics) == 0 {
		return opts, domain.ConfigError("no sub-topics configured")
	}
	seen := make(map[string]struct{}, len(state.SubTopics))
	for i, topic := range state.SubTopics {
		name := strings.TrimSpace(topic.Name)
		if name == "" {
			return opts, domain.ConfigError("sub-topic %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return opts, domain.ConfigError("duplicate sub-topic %q", name)
		}
		seen[name] = struct{}{}
	}
	if e.search == nil || e.scorer == nil || e.summarizer == nil || e.reviewer == nil {
		return opts, domain.ConfigError("search provider, scorer, summarizer and reviewer are required")
	}
	return opts.normalize(len(state.SubTopics))
}

func (e *Engine) finishFailed(state *domain.WorkflowState, log *slog.Logger, err error) {
	state.Fail(e.now())
	e.metrics.RunFinished(string(state.Status))
	log.Error("run failed",
		"error", err,
		"topic_index", state.CurrentTopicIndex,
		"topics_summarized", len(state.TopicSummaries))
}

// loop advances CurrentTopicIndex by exactly one per iteration until the predicate
// stops it, the loop bound is hit, or ctx is cancelled at a topic boundary.
func (e *Engine) loop(ctx context.Context, state *domain.WorkflowState, opts Options, log *slog.Logger) error {
	var prefetched []*topicOutcome
	if opts.Parallelism > 1 && len(state.SubTopics) > 1 {
		prefetched = e.prefetch(ctx, state.SubTopics, min(len(state.SubTopics), opts.MaxLoopIterations), opts)
	}

	for iterations := 0; e.proceed(state); iterations++ {
		if iterations >= opts.MaxLoopIterations || state.CurrentTopicIndex >= len(state.SubTopics) {
			err := domain.NewStageError(domain.KindLoopBoundExceeded, "", domain.StageEngine,
				fmt.Errorf("stopped after %d iterations at topic index %d of %d (bound %d)",
					iterations, state.CurrentTopicIndex, len(state.SubTopics), opts.MaxLoopIterations))
			state.RecordError(domain.KindLoopBoundExceeded, "", domain.StageEngine, err, e.now())
			return err
		}

		if cause := ctx.Err(); cause != nil {
			err := domain.NewStageError(domain.KindCancelled, "", domain.StageEngine, cause)
			state.RecordError(domain.KindCancelled, "", domain.StageEngine, err, e.now())
			return err
		}

		idx := state.CurrentTopicIndex
		topic := state.SubTopics[idx]

		var out *topicOutcome
		if prefetched != nil {
			out = prefetched[idx]
		}
		if out == nil {
			o := e.processTopic(ctx, topic, opts)
			out = &o
		}

		e.commit(state, out, log)
		state.CurrentTopicIndex++
	}
	return nil
}

// prefetch runs the first limit topics concurrently; the loop bound caps limit
// so no topic is processed that the loop could never commit. Each worker writes
// only its own slot, so commit order (and therefore TopicSummaries order) is
// configuration order.
func (e *Engine) prefetch(ctx context.Context, topics []domain.TopicSpec, limit int, opts Options) []*topicOutcome {
	outcomes := make([]*topicOutcome, len(topics))
	var g errgroup.Group
	g.SetLimit(opts.Parallelism)
	for i, topic := range topics[:limit] {
		if ctx.Err() != nil {
			break
		}
		i, topic := i, topic
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			out := e.processTopic(ctx, topic, opts)
			outcomes[i] = &out
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// callContext detaches a collaborator call from run cancellation, which is only
// honoured between topics, and bounds it with the stage timeout.
func (e *Engine) callContext(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	timeout := opts.StageTimeout
	if timeout <= 0 {
		timeout = defaultStageTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
