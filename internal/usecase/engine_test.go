package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"TopicNewsletter/internal/domain"
)

func summaryNames(state *domain.WorkflowState) []string {
	names := make([]string, 0, len(state.TopicSummaries))
	for _, s := range state.TopicSummaries {
		names = append(names, s.TopicName)
	}
	return names
}

func requireFiltered(t *testing.T, state *domain.WorkflowState, threshold float64, maxArticles int) {
	t.Helper()
	for name, set := range state.TopicResults {
		require.LessOrEqual(t, len(set.Articles), maxArticles, name)
		require.Equal(t, len(set.Articles), set.TotalKept, name)
		for i, a := range set.Articles {
			require.GreaterOrEqual(t, a.RelevanceScore, threshold, name)
			if i > 0 {
				require.GreaterOrEqual(t, set.Articles[i-1].RelevanceScore, a.RelevanceScore, name)
			}
		}
	}
}

func TestRunTwoTopicsCompletes(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topics := []domain.TopicSpec{
		f.addTopic("Cancer Research", 5, 3),
		f.addTopic("Early Detection", 8, 4),
	}

	state, err := f.engine().Run(context.Background(), "Oncology", topics, DefaultOptions())
	require.NoError(t, err)

	require.Equal(t, domain.StatusCompleted, state.Status)
	require.Equal(t, len(topics), state.CurrentTopicIndex)
	require.Equal(t, 3, state.TopicResults["Cancer Research"].TotalKept)
	require.Equal(t, 5, state.TopicResults["Cancer Research"].TotalFound)
	require.Equal(t, 4, state.TopicResults["Early Detection"].TotalKept)
	require.Equal(t, 8, state.TopicResults["Early Detection"].TotalFound)
	require.Len(t, state.TopicSummaries, 2)
	require.Empty(t, cmp.Diff([]string{"Cancer Research", "Early Detection"}, summaryNames(state)))
	require.NotNil(t, state.ExecutiveSummary)
	require.Contains(t, *state.ExecutiveSummary, "Oncology")
	require.Empty(t, state.Errors)
	require.Equal(t, 0.8, state.QualityScores["Cancer Research"])
	require.False(t, state.FinishedAt.IsZero())
	requireFiltered(t, state, 0.5, 10)

	for _, summary := range state.TopicSummaries {
		set := state.TopicResults[summary.TopicName]
		for _, top := range summary.TopArticles {
			require.Contains(t, set.Articles, top)
		}
	}

	m := state.Metrics(time.Now())
	require.Equal(t, 7, m.TotalArticles)
	require.Equal(t, 2, m.TopicsProcessed)
	require.Zero(t, m.TopicsFailed)
	require.InDelta(t, 0.8, m.AverageQuality, 1e-9)
}

func TestRunEmptySearchYieldsInsufficientData(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topic := f.addTopic("Rare Disease", 0, 0)

	state, err := f.engine().Run(context.Background(), "Medicine", []domain.TopicSpec{topic}, DefaultOptions())
	require.NoError(t, err)

	require.Equal(t, domain.StatusCompleted, state.Status)
	set := state.TopicResults["Rare Disease"]
	require.NotNil(t, set.Articles)
	require.Empty(t, set.Articles)
	require.Zero(t, set.TotalFound)

	require.Len(t, state.TopicSummaries, 1)
	summary := state.TopicSummaries[0]
	require.Equal(t, 0.0, summary.QualityScore)
	require.Equal(t, domain.InsufficientDataOverview, summary.Overview)
	require.Equal(t, 0.0, state.QualityScores["Rare Disease"])
	require.NotEmpty(t, state.Warnings)
	require.Empty(t, state.Errors)
}

func TestRunLoopBoundExceeded(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topics := []domain.TopicSpec{f.addTopic("A", 2, 1), f.addTopic("B", 2, 1), f.addTopic("C", 2, 1)}

	engine := f.engine()
	engine.proceed = func(*domain.WorkflowState) bool { return true }

	opts := DefaultOptions()
	opts.MaxLoopIterations = 1
	state, err := engine.Run(context.Background(), "Main", topics, opts)

	require.ErrorIs(t, err, domain.ErrLoopBoundExceeded)
	require.Equal(t, domain.StatusFailed, state.Status)
	require.Less(t, state.CurrentTopicIndex, 3)
	require.True(t, state.HasErrorKind(domain.KindLoopBoundExceeded))
	require.Nil(t, state.ExecutiveSummary)
}

func TestRunParallelRespectsLoopBound(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topics := []domain.TopicSpec{f.addTopic("A", 2, 1), f.addTopic("B", 2, 1), f.addTopic("C", 2, 1)}

	engine := f.engine()
	engine.proceed = func(*domain.WorkflowState) bool { return true }

	opts := DefaultOptions()
	opts.MaxLoopIterations = 1
	opts.Parallelism = 3
	state, err := engine.Run(context.Background(), "Main", topics, opts)

	require.ErrorIs(t, err, domain.ErrLoopBoundExceeded)
	require.Equal(t, 1, state.CurrentTopicIndex)
	require.Equal(t, []string{"q-A"}, f.search.calls())
}

func TestRunBrokenPredicateStopsAtLastTopic(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topics := []domain.TopicSpec{f.addTopic("A", 2, 1), f.addTopic("B", 2, 1)}

	engine := f.engine()
	engine.proceed = func(*domain.WorkflowState) bool { return true }

	state, err := engine.Run(context.Background(), "Main", topics, DefaultOptions())
	require.ErrorIs(t, err, domain.ErrLoopBoundExceeded)
	require.Equal(t, domain.StatusFailed, state.Status)
	require.Equal(t, 2, state.CurrentTopicIndex)
	require.Len(t, state.TopicSummaries, 2)
	require.Len(t, f.search.calls(), 2)
}

func TestRunIterationsNeverExceedTopicCount(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topics := []domain.TopicSpec{f.addTopic("A", 1, 1), f.addTopic("B", 1, 1), f.addTopic("C", 1, 1)}

	calls := 0
	engine := f.engine()
	engine.proceed = func(s *domain.WorkflowState) bool {
		calls++
		return topicsRemaining(s)
	}

	state, err := engine.Run(context.Background(), "Main", topics, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 3, state.CurrentTopicIndex)
	require.Equal(t, 4, calls)
	require.Len(t, f.search.calls(), 3)
}

func TestRunOneTopicFetchFails(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topics := []domain.TopicSpec{f.addTopic("A", 3, 2), f.addTopic("B", 3, 2), f.addTopic("C", 3, 2)}
	f.search.errs["q-B"] = errBoom

	state, err := f.engine().Run(context.Background(), "Main", topics, DefaultOptions())
	require.NoError(t, err)

	require.Equal(t, domain.StatusCompleted, state.Status)
	require.Len(t, state.TopicSummaries, 2)
	require.Empty(t, cmp.Diff([]string{"A", "C"}, summaryNames(state)))

	records := state.ErrorsFor("B")
	require.Len(t, records, 1)
	require.Equal(t, domain.KindTopicProcessing, records[0].Kind)
	require.Equal(t, domain.StageFetch, records[0].Stage)
	require.Contains(t, records[0].Message, "boom")
	require.NotContains(t, state.TopicResults, "B")
	require.Equal(t, 1, state.FailedTopics())
}

func TestRunSummarizerFailureSkipsTopic(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topics := []domain.TopicSpec{f.addTopic("A", 3, 2), f.addTopic("B", 3, 2)}
	f.summarizer.errs[topics[0].Context()] = errBoom

	state, err := f.engine().Run(context.Background(), "Main", topics, DefaultOptions())
	require.NoError(t, err)

	require.Equal(t, domain.StatusCompleted, state.Status)
	require.Empty(t, cmp.Diff([]string{"B"}, summaryNames(state)))
	records := state.ErrorsFor("A")
	require.Len(t, records, 1)
	require.Equal(t, domain.StageSummarize, records[0].Stage)
	// The fetch result of a topic whose summary failed is still kept.
	require.Equal(t, 2, state.TopicResults["A"].TotalKept)
	require.NotContains(t, state.QualityScores, "A")
}

func TestRunAllTopicsFailIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topics := []domain.TopicSpec{f.addTopic("A", 3, 2), f.addTopic("B", 3, 2)}
	f.search.errs["q-A"] = errBoom
	f.search.errs["q-B"] = errBoom

	state, err := f.engine().Run(context.Background(), "Main", topics, DefaultOptions())
	require.ErrorIs(t, err, domain.ErrAggregation)
	require.Equal(t, domain.StatusFailed, state.Status)
	require.Nil(t, state.ExecutiveSummary)
	require.Empty(t, state.TopicSummaries)
	require.Equal(t, 2, state.CurrentTopicIndex)
	require.True(t, state.HasErrorKind(domain.KindAggregation))
	require.Empty(t, f.summarizer.synthesized)
}

func TestRunSynthesisFailureIsAggregationError(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topics := []domain.TopicSpec{f.addTopic("A", 3, 2)}
	f.summarizer.synthErr = errBoom

	state, err := f.engine().Run(context.Background(), "Main", topics, DefaultOptions())
	require.ErrorIs(t, err, domain.ErrAggregation)
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, domain.StatusFailed, state.Status)
	require.Nil(t, state.ExecutiveSummary)
	require.Len(t, state.TopicSummaries, 1)
}

func TestRunConfigurationErrors(t *testing.T) {
	t.Parallel()

	valid := []domain.TopicSpec{{Name: "A", Query: "q-A"}}
	cases := []struct {
		name   string
		main   string
		topics []domain.TopicSpec
		opts   func(*Options)
		engine func(*fixture) *Engine
	}{
		{name: "no sub-topics", main: "Main"},
		{name: "blank main topic", main: "  ", topics: valid},
		{name: "blank topic name", main: "Main", topics: []domain.TopicSpec{{Name: " ", Query: "q"}}},
		{name: "duplicate topics", main: "Main", topics: []domain.TopicSpec{{Name: "A"}, {Name: "A"}}},
		{name: "threshold out of range", main: "Main", topics: valid, opts: func(o *Options) { o.RelevanceThreshold = 1.5 }},
		{name: "threshold NaN", main: "Main", topics: valid, opts: func(o *Options) { o.RelevanceThreshold = math.NaN() }},
		{name: "default quality NaN", main: "Main", topics: valid, opts: func(o *Options) { o.DefaultQualityScore = math.NaN() }},
		{name: "feedback threshold NaN", main: "Main", topics: valid, opts: func(o *Options) { o.FeedbackThreshold = math.NaN() }},
		{name: "negative cap", main: "Main", topics: valid, opts: func(o *Options) { o.MaxArticlesPerTopic = -1 }},
		{
			name: "missing scorer", main: "Main", topics: valid,
			engine: func(f *fixture) *Engine {
				return NewEngine(EngineDeps{Search: f.search, Summarizer: f.summarizer, Reviewer: f.reviewer})
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			engine := f.engine()
			if tc.engine != nil {
				engine = tc.engine(f)
			}
			opts := DefaultOptions()
			if tc.opts != nil {
				tc.opts(&opts)
			}

			state, err := engine.Run(context.Background(), tc.main, tc.topics, opts)
			require.ErrorIs(t, err, domain.ErrConfiguration)
			require.Equal(t, domain.StatusFailed, state.Status)
			require.True(t, state.HasErrorKind(domain.KindConfiguration))
			require.Empty(t, f.search.calls())
		})
	}
}

func TestRunScoringErrorDropsArticle(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topic := f.addTopic("A", 4, 4)
	f.scorer.errs["A-1"] = errBoom

	state, err := f.engine().Run(context.Background(), "Main", []domain.TopicSpec{topic}, DefaultOptions())
	require.NoError(t, err)

	set := state.TopicResults["A"]
	require.Equal(t, 4, set.TotalFound)
	require.Equal(t, 3, set.TotalKept)
	for _, a := range set.Articles {
		require.NotEqual(t, "A-1", a.URL)
	}

	records := state.ErrorsFor("A")
	require.Len(t, records, 1)
	require.Equal(t, domain.KindScoring, records[0].Kind)
	require.Contains(t, records[0].Message, "A-1")
	require.Equal(t, domain.StatusCompleted, state.Status)
}

func TestRunScoresAreClampedAndCapped(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topic := f.addTopic("A", 6, 6)
	f.scorer.scores["A-5"] = 7

	opts := DefaultOptions()
	opts.MaxArticlesPerTopic = 3
	opts.RelevanceThreshold = 0.7
	state, err := f.engine().Run(context.Background(), "Main", []domain.TopicSpec{topic}, opts)
	require.NoError(t, err)

	set := state.TopicResults["A"]
	require.Len(t, set.Articles, 3)
	require.Equal(t, "A-5", set.Articles[0].URL)
	require.Equal(t, 1.0, set.Articles[0].RelevanceScore)
	requireFiltered(t, state, 0.7, 3)
}

func TestRunReviewerFailureUsesDefaultScore(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topic := f.addTopic("A", 3, 3)
	f.reviewer.err = errBoom

	state, err := f.engine().Run(context.Background(), "Main", []domain.TopicSpec{topic}, DefaultOptions())
	require.NoError(t, err)

	require.Equal(t, domain.StatusCompleted, state.Status)
	require.Len(t, state.TopicSummaries, 1)
	require.Equal(t, 0.5, state.TopicSummaries[0].QualityScore)
	require.Equal(t, 0.5, state.QualityScores["A"])
	require.True(t, state.HasErrorKind(domain.KindQualityReviewFailed))

	require.NotNil(t, state.QualityReview)
	require.Contains(t, state.QualityReview.Feedback, "Low quality summary for A: score 0.50")
}

func TestRunReviewerFeedbackIsKept(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topic := f.addTopic("A", 3, 3)
	feedback := "needs more sources"
	f.reviewer.score = 0.4
	f.reviewer.feedback = &feedback

	state, err := f.engine().Run(context.Background(), "Main", []domain.TopicSpec{topic}, DefaultOptions())
	require.NoError(t, err)

	summary := state.TopicSummaries[0]
	require.NotNil(t, summary.Feedback)
	require.Equal(t, feedback, *summary.Feedback)
	require.Empty(t, cmp.Diff([]string{
		"Low quality summary for A: score 0.40",
		"A: needs more sources",
	}, state.QualityReview.Feedback))
	require.InDelta(t, 0.4, state.QualityReview.AverageQuality, 1e-9)
}

func TestRunStageTimeoutFailsOnlyThatTopic(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topics := []domain.TopicSpec{f.addTopic("Slow", 2, 2), f.addTopic("Fast", 2, 2)}
	f.search.block["q-Slow"] = true

	opts := DefaultOptions()
	opts.StageTimeout = 20 * time.Millisecond
	state, err := f.engine().Run(context.Background(), "Main", topics, opts)
	require.NoError(t, err)

	require.Equal(t, domain.StatusCompleted, state.Status)
	require.Empty(t, cmp.Diff([]string{"Fast"}, summaryNames(state)))
	records := state.ErrorsFor("Slow")
	require.Len(t, records, 1)
	require.Equal(t, domain.KindTopicProcessing, records[0].Kind)
	require.Contains(t, records[0].Message, context.DeadlineExceeded.Error())
}

func TestRunCancelledBetweenTopics(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topics := []domain.TopicSpec{f.addTopic("A", 2, 2), f.addTopic("B", 2, 2), f.addTopic("C", 2, 2)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Cancelling mid-topic lets the current topic finish.
	f.summarizer.onSummarize = func(topicContext string) {
		if topicContext == topics[0].Context() {
			cancel()
		}
	}

	state, err := f.engine().Run(ctx, "Main", topics, DefaultOptions())
	require.ErrorIs(t, err, domain.ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, domain.StatusFailed, state.Status)
	require.Equal(t, 1, state.CurrentTopicIndex)
	require.Empty(t, cmp.Diff([]string{"A"}, summaryNames(state)))
	require.True(t, state.HasErrorKind(domain.KindCancelled))
	require.Nil(t, state.ExecutiveSummary)
	require.Len(t, f.search.calls(), 1)
}

func TestRunParallelKeepsConfigurationOrder(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topics := []domain.TopicSpec{
		f.addTopic("A", 2, 2),
		f.addTopic("B", 2, 2),
		f.addTopic("C", 2, 2),
		f.addTopic("D", 2, 2),
	}
	f.search.errs["q-C"] = errBoom
	// Earlier topics answer last.
	f.search.delays["q-A"] = 60 * time.Millisecond
	f.search.delays["q-B"] = 40 * time.Millisecond
	f.search.delays["q-D"] = 1 * time.Millisecond

	opts := DefaultOptions()
	opts.Parallelism = 4
	state, err := f.engine().Run(context.Background(), "Main", topics, opts)
	require.NoError(t, err)

	require.Equal(t, domain.StatusCompleted, state.Status)
	require.Equal(t, 4, state.CurrentTopicIndex)
	require.Empty(t, cmp.Diff([]string{"A", "B", "D"}, summaryNames(state)))
	require.Len(t, state.ErrorsFor("C"), 1)
	require.Len(t, f.summarizer.synthesized, 1)
	require.Empty(t, cmp.Diff([]string{"A", "B", "D"}, f.summarizer.synthesized[0]))
	requireFiltered(t, state, 0.5, 10)
}

func TestRunDedupDropsPublishedArticles(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topic := f.addTopic("A", 4, 4)
	repo := &fakeRepository{published: map[string]bool{"A-0": true}}

	engine := NewEngine(EngineDeps{
		Search:     f.search,
		Scorer:     f.scorer,
		Summarizer: f.summarizer,
		Reviewer:   f.reviewer,
		Repository: repo,
	})
	state, err := engine.Run(context.Background(), "Main", []domain.TopicSpec{topic}, DefaultOptions())
	require.NoError(t, err)

	set := state.TopicResults["A"]
	require.Equal(t, 4, set.TotalFound)
	require.Equal(t, 3, set.TotalKept)
	for _, a := range set.Articles {
		require.NotEqual(t, "A-0", a.URL)
	}
}

func TestRunDedupFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topic := f.addTopic("A", 3, 3)
	engine := NewEngine(EngineDeps{
		Search:     f.search,
		Scorer:     f.scorer,
		Summarizer: f.summarizer,
		Reviewer:   f.reviewer,
		Repository: &fakeRepository{err: errBoom},
	})

	state, err := engine.Run(context.Background(), "Main", []domain.TopicSpec{topic}, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 3, state.TopicResults["A"].TotalKept)
	require.True(t, state.HasErrorKind(domain.KindDedupFailed))
	require.Len(t, state.TopicSummaries, 1)
}

func TestRunEnrichesShortSnippets(t *testing.T) {
	t.Parallel()

	f := newFixture()
	topic := f.addTopic("A", 2, 2)
	long := make([]rune, 1500)
	for i := range long {
		long[i] = 'x'
	}
	engine := NewEngine(EngineDeps{
		Search:     f.search,
		Scorer:     f.scorer,
		Summarizer: f.summarizer,
		Reviewer:   f.reviewer,
		Extractor:  &fakeExtractor{text: map[string]string{"A-0": string(long)}},
	})

	state, err := engine.Run(context.Background(), "Main", []domain.TopicSpec{topic}, DefaultOptions())
	require.NoError(t, err)

	byURL := map[string]domain.ScoredArticle{}
	for _, a := range state.TopicResults["A"].Articles {
		byURL[a.URL] = a
	}
	require.Len(t, byURL["A-0"].Snippet, 1000)
	require.Equal(t, "snippet", byURL["A-1"].Snippet)

	// the provider's own results are left untouched
	require.Equal(t, "snippet", f.search.results["q-A"][0].Snippet)
}

func TestRunIsolatedAcrossConcurrentRuns(t *testing.T) {
	t.Parallel()

	f := newFixture()
	first := []domain.TopicSpec{f.addTopic("A", 2, 2)}
	second := []domain.TopicSpec{f.addTopic("B", 3, 1)}
	engine := f.engine()

	type result struct {
		state *domain.WorkflowState
		err   error
	}
	results := make(chan result, 2)
	for _, topics := range [][]domain.TopicSpec{first, second} {
		topics := topics
		go func() {
			state, err := engine.Run(context.Background(), "Main "+topics[0].Name, topics, DefaultOptions())
			results <- result{state, err}
		}()
	}

	for i := 0; i < 2; i++ {
		r := <-results
		require.NoError(t, r.err)
		require.Len(t, r.state.TopicSummaries, 1)
		require.Len(t, r.state.TopicResults, 1)
	}
}

func TestStageErrorMatchesKindSentinel(t *testing.T) {
	t.Parallel()

	err := domain.NewStageError(domain.KindTopicProcessing, "A", domain.StageFetch, errBoom)
	require.True(t, errors.Is(err, domain.ErrTopicProcessing))
	require.True(t, errors.Is(err, errBoom))
	require.False(t, errors.Is(err, domain.ErrAggregation))
}
