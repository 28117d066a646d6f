package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"TopicNewsletter/internal/domain"
)

const (
	enrichBelowChars = 200
	enrichMaxChars   = 1000
	fallbackTopCount = 5
)

// note is a non-fatal diagnostic produced while a topic is processed.
type note struct {
	kind  domain.ErrorKind
	stage string
	err   error
	at    time.Time
}

// topicOutcome is everything one topic iteration produced. Stages fill it without
// touching WorkflowState; commit applies it on the engine goroutine.
type topicOutcome struct {
	topic    domain.TopicSpec
	set      *domain.ArticleSet
	summary  *domain.TopicSummary
	failure  *domain.StageError
	notes    []note
	warnings []string
	stages   []domain.StageResult
}

func (o *topicOutcome) addNote(kind domain.ErrorKind, stage string, err error, at time.Time) {
	o.notes = append(o.notes, note{kind: kind, stage: stage, err: err, at: at})
}

func (o *topicOutcome) addStage(stage string, status domain.StageStatus, d time.Duration, detail string) {
	o.stages = append(o.stages, domain.StageResult{
		Stage:    stage,
		Topic:    o.topic.Name,
		Status:   status,
		Duration: d,
		Detail:   detail,
	})
}

func (e *Engine) processTopic(ctx context.Context, topic domain.TopicSpec, opts Options) topicOutcome {
	out := topicOutcome{topic: topic}

	set, err := e.fetchAndScore(ctx, topic, opts, &out)
	if err != nil {
		out.failure = asStageError(err, domain.KindTopicProcessing, topic.Name, domain.StageFetch)
		return out
	}
	out.set = &set

	summary, err := e.summarize(ctx, topic, set, opts, &out)
	if err != nil {
		out.failure = asStageError(err, domain.KindTopicProcessing, topic.Name, domain.StageSummarize)
		return out
	}
	out.summary = &summary
	return out
}

// commit writes a topic outcome into the run state. Only the engine goroutine calls it.
func (e *Engine) commit(state *domain.WorkflowState, out *topicOutcome, log *slog.Logger) {
	name := out.topic.Name

	for _, n := range out.notes {
		state.RecordError(n.kind, name, n.stage, n.err, n.at)
		log.Warn("topic diagnostic", "topic", name, "kind", n.kind, "stage", n.stage, "error", n.err)
	}
	for _, w := range out.warnings {
		state.AddWarning(w)
	}
	for _, r := range out.stages {
		state.AddStageResult(r)
	}
	if out.set != nil {
		state.TopicResults[name] = *out.set
	}

	if out.failure != nil {
		state.RecordError(domain.KindTopicProcessing, name, out.failure.Stage, out.failure, e.now())
		e.metrics.TopicFinished("failed")
		log.Warn("topic failed", "topic", name, "stage", out.failure.Stage, "error", out.failure.Err)
		return
	}

	if out.summary != nil {
		state.TopicSummaries = append(state.TopicSummaries, *out.summary)
		state.QualityScores[name] = out.summary.QualityScore
		e.metrics.TopicFinished("summarized")
		e.metrics.QualityScore(out.summary.QualityScore)
		log.Info("topic summarized",
			"topic", name,
			"articles", len(out.summary.TopArticles),
			"quality", out.summary.QualityScore)
	}
}

// fetchAndScore builds the relevance-filtered article set for one topic.
// Only a search failure is returned as an error; per-article problems become notes.
func (e *Engine) fetchAndScore(ctx context.Context, topic domain.TopicSpec, opts Options, out *topicOutcome) (domain.ArticleSet, error) {
	start := e.now()
	query := topic.SearchQuery()

	callCtx, cancel := e.callContext(ctx, opts)
	raw, err := e.search.Search(callCtx, query, opts.MaxSearchResults, opts.RecencyDays)
	cancel()
	if err != nil {
		e.finishStage(out, domain.StageFetch, domain.StageFailed, start, "search failed")
		return domain.ArticleSet{}, domain.NewStageError(domain.KindTopicProcessing, topic.Name, domain.StageFetch,
			fmt.Errorf("search %q: %w", query, err))
	}

	set := domain.ArticleSet{
		TopicName:  topic.Name,
		Query:      query,
		Articles:   []domain.ScoredArticle{},
		TotalFound: len(raw),
	}
	if len(raw) == 0 {
		out.warnings = append(out.warnings, fmt.Sprintf("no articles found for topic %q", topic.Name))
	}

	candidates := e.dropPublished(ctx, raw, opts, out)
	candidates = e.enrich(ctx, candidates, opts)

	topicContext := topic.Context()
	var scored []domain.ScoredArticle
	belowThreshold, scoreErrors := 0, 0
	for _, article := range candidates {
		score, err := e.score(ctx, article, topicContext, opts)
		if err != nil {
			scoreErrors++
			out.addNote(domain.KindScoring, domain.StageFetch, err, e.now())
			continue
		}
		if score < opts.RelevanceThreshold {
			belowThreshold++
			continue
		}
		scored = append(scored, article.Scored(score))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RelevanceScore > scored[j].RelevanceScore
	})
	capped := 0
	if len(scored) > opts.MaxArticlesPerTopic {
		capped = len(scored) - opts.MaxArticlesPerTopic
		scored = scored[:opts.MaxArticlesPerTopic]
	}
	set.Articles = append(set.Articles, scored...)
	set.TotalKept = len(set.Articles)
	set.FetchedAt = e.now()

	e.metrics.Articles("below_threshold", belowThreshold)
	e.metrics.Articles("score_error", scoreErrors)
	e.metrics.Articles("capped", capped)
	e.metrics.Articles("kept", set.TotalKept)

	e.finishStage(out, domain.StageFetch, domain.StageSucceeded, start,
		fmt.Sprintf("kept %d of %d", set.TotalKept, set.TotalFound))
	e.logger.Debug("topic fetched",
		"topic", topic.Name,
		"found", set.TotalFound,
		"kept", set.TotalKept,
		"below_threshold", belowThreshold,
		"score_errors", scoreErrors)
	return set, nil
}

func (e *Engine) score(ctx context.Context, article domain.RawArticle, topicContext string, opts Options) (float64, error) {
	callCtx, cancel := e.callContext(ctx, opts)
	defer cancel()

	score, err := e.scorer.Score(callCtx, article, topicContext)
	if err != nil {
		return 0, domain.NewStageError(domain.KindScoring, "", domain.StageFetch,
			fmt.Errorf("score %q: %w", article.URL, err))
	}
	if math.IsNaN(score) {
		return 0, domain.NewStageError(domain.KindScoring, "", domain.StageFetch,
			fmt.Errorf("score %q: not a number", article.URL))
	}
	return clamp01(score), nil
}

// dropPublished removes articles that already went out in an earlier newsletter.
func (e *Engine) dropPublished(ctx context.Context, raw []domain.RawArticle, opts Options, out *topicOutcome) []domain.RawArticle {
	if e.repository == nil || len(raw) == 0 {
		return raw
	}
	urls := make([]string, 0, len(raw))
	for _, a := range raw {
		if a.URL != "" {
			urls = append(urls, a.URL)
		}
	}
	if len(urls) == 0 {
		return raw
	}

	callCtx, cancel := e.callContext(ctx, opts)
	published, err := e.repository.AlreadyPublished(callCtx, urls)
	cancel()
	if err != nil {
		out.addNote(domain.KindDedupFailed, domain.StageFetch, fmt.Errorf("dedup lookup: %w", err), e.now())
		return raw
	}

	kept := make([]domain.RawArticle, 0, len(raw))
	for _, a := range raw {
		if published[a.URL] {
			continue
		}
		kept = append(kept, a)
	}
	e.metrics.Articles("duplicate", len(raw)-len(kept))
	return kept
}

// enrich replaces thin snippets with extracted article text.
func (e *Engine) enrich(ctx context.Context, articles []domain.RawArticle, opts Options) []domain.RawArticle {
	if e.extractor == nil {
		return articles
	}
	articles = slices.Clone(articles)
	for i, a := range articles {
		if a.URL == "" || utf8.RuneCountInString(a.Snippet) >= enrichBelowChars {
			continue
		}
		callCtx, cancel := e.callContext(ctx, opts)
		text, err := e.extractor.Extract(callCtx, a)
		cancel()
		if err != nil {
			e.logger.Debug("snippet enrichment failed", "url", a.URL, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			articles[i].Snippet = truncateRunes(text, enrichMaxChars)
		}
	}
	return articles
}

// summarize turns an article set into a reviewed topic summary.
func (e *Engine) summarize(ctx context.Context, topic domain.TopicSpec, set domain.ArticleSet, opts Options, out *topicOutcome) (domain.TopicSummary, error) {
	start := e.now()

	if len(set.Articles) == 0 {
		e.finishStage(out, domain.StageSummarize, domain.StageSucceeded, start, "insufficient data")
		e.finishStage(out, domain.StageReview, domain.StageSkipped, start, "no articles")
		return domain.TopicSummary{
			TopicName:     topic.Name,
			Overview:      domain.InsufficientDataOverview,
			KeyFindings:   []string{},
			NotableTrends: []string{},
			TopArticles:   []domain.ScoredArticle{},
			QualityScore:  0,
		}, nil
	}

	callCtx, cancel := e.callContext(ctx, opts)
	draft, err := e.summarizer.Summarize(callCtx, set.Articles, topic.Context())
	cancel()
	if err != nil {
		e.finishStage(out, domain.StageSummarize, domain.StageFailed, start, "summarizer failed")
		return domain.TopicSummary{}, domain.NewStageError(domain.KindTopicProcessing, topic.Name, domain.StageSummarize,
			fmt.Errorf("summarize: %w", err))
	}
	e.finishStage(out, domain.StageSummarize, domain.StageSucceeded, start, "")

	summary := domain.TopicSummary{
		TopicName:     topic.Name,
		Overview:      strings.TrimSpace(draft.Overview),
		KeyFindings:   nonNil(draft.KeyFindings),
		NotableTrends: nonNil(draft.NotableTrends),
		TopArticles:   topArticles(draft.TopArticles, set.Articles),
	}

	reviewStart := e.now()
	callCtx, cancel = e.callContext(ctx, opts)
	review, err := e.reviewer.Review(callCtx, summary)
	cancel()
	switch {
	case err != nil:
		summary.QualityScore = opts.DefaultQualityScore
		out.addNote(domain.KindQualityReviewFailed, domain.StageReview, fmt.Errorf("review: %w", err), e.now())
		e.finishStage(out, domain.StageReview, domain.StageFailed, reviewStart, "default score applied")
	case math.IsNaN(review.QualityScore):
		summary.QualityScore = opts.DefaultQualityScore
		out.addNote(domain.KindQualityReviewFailed, domain.StageReview, errors.New("review: score is not a number"), e.now())
		e.finishStage(out, domain.StageReview, domain.StageFailed, reviewStart, "default score applied")
	default:
		summary.QualityScore = clamp01(review.QualityScore)
		if review.Feedback != nil && strings.TrimSpace(*review.Feedback) != "" {
			fb := strings.TrimSpace(*review.Feedback)
			summary.Feedback = &fb
		}
		e.finishStage(out, domain.StageReview, domain.StageSucceeded, reviewStart,
			fmt.Sprintf("score %.2f", summary.QualityScore))
	}
	return summary, nil
}

func (e *Engine) finishStage(out *topicOutcome, stage string, status domain.StageStatus, start time.Time, detail string) {
	d := e.now().Sub(start)
	e.metrics.StageDuration(stage, d)
	out.addStage(stage, status, d, detail)
}

// topArticles keeps only the summarizer's picks that belong to the set,
// falling back to the highest scored articles.
func topArticles(picked, set []domain.ScoredArticle) []domain.ScoredArticle {
	byURL := make(map[string]domain.ScoredArticle, len(set))
	for _, a := range set {
		byURL[a.URL] = a
	}
	out := make([]domain.ScoredArticle, 0, len(picked))
	seen := make(map[string]struct{}, len(picked))
	for _, p := range picked {
		a, ok := byURL[p.URL]
		if !ok {
			continue
		}
		if _, dup := seen[p.URL]; dup {
			continue
		}
		seen[p.URL] = struct{}{}
		out = append(out, a)
	}
	if len(out) > 0 {
		return out
	}
	n := min(fallbackTopCount, len(set))
	return append(out, set[:n]...)
}

func asStageError(err error, kind domain.ErrorKind, topic, stage string) *domain.StageError {
	var se *domain.StageError
	if errors.As(err, &se) {
		return se
	}
	return domain.NewStageError(kind, topic, stage, err)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func nonNil(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
