package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"TopicNewsletter/internal/domain"
)

type scriptedCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (s *scriptedCompleter) Complete(_ context.Context, _, user string) (string, error) {
	s.prompts = append(s.prompts, user)
	return s.reply, s.err
}

var errUpstream = errors.New("upstream unavailable")

func sampleArticles() []domain.ScoredArticle {
	return []domain.ScoredArticle{
		{Title: "Model flags tumours", URL: "https://a.example/1", Source: "a", Snippet: "A model found tumours earlier.", RelevanceScore: 0.9},
		{Title: "Screening trial", URL: "https://b.example/2", Source: "b", Snippet: "Trial results.", RelevanceScore: 0.8},
	}
}

func TestScorerParsesNumber(t *testing.T) {
	t.Parallel()

	llm := &scriptedCompleter{reply: "Relevance: 0.82"}
	score, err := NewScorer(llm).Score(context.Background(), domain.RawArticle{Title: "T", Snippet: "S"}, "Oncology: AI")
	require.NoError(t, err)
	require.InDelta(t, 0.82, score, 1e-9)
	require.Contains(t, llm.prompts[0], "Oncology: AI")
}

func TestScorerErrors(t *testing.T) {
	t.Parallel()

	_, err := NewScorer(&scriptedCompleter{reply: "very relevant"}).Score(context.Background(), domain.RawArticle{}, "x")
	require.ErrorIs(t, err, domain.ErrScoring)

	_, err = NewScorer(&scriptedCompleter{err: errUpstream}).Score(context.Background(), domain.RawArticle{}, "x")
	require.ErrorIs(t, err, domain.ErrScoring)
	require.ErrorIs(t, err, errUpstream)
}

func TestSummarizerParsesFencedJSON(t *testing.T) {
	t.Parallel()

	reply := "Here you go:\n```json\n" + `{
  "overview": "AI screening is maturing.",
  "key_findings": ["Earlier detection", "Fewer false positives"],
  "notable_trends": ["Growing adoption"],
  "top_articles": ["https://b.example/2", "https://unknown.example"]
}` + "\n```"
	llm := &scriptedCompleter{reply: reply}

	draft, err := NewSummarizer(llm).Summarize(context.Background(), sampleArticles(), "Early Detection")
	require.NoError(t, err)
	require.Equal(t, "AI screening is maturing.", draft.Overview)
	require.Equal(t, []string{"Earlier detection", "Fewer false positives"}, draft.KeyFindings)
	require.Equal(t, []string{"Growing adoption"}, draft.NotableTrends)
	require.Len(t, draft.TopArticles, 1)
	require.Equal(t, "https://b.example/2", draft.TopArticles[0].URL)
	require.Contains(t, llm.prompts[0], "https://a.example/1")
}

func TestSummarizerFallsBackToPlainText(t *testing.T) {
	t.Parallel()

	reply := "Researchers found that the new AI model improved cancer diagnosis accuracy in a clinical study. Short one.\n- Growing adoption of screening tools"
	draft, err := NewSummarizer(&scriptedCompleter{reply: reply}).Summarize(context.Background(), sampleArticles(), "Early Detection")
	require.NoError(t, err)
	require.Equal(t, reply, draft.Overview)
	require.NotEmpty(t, draft.KeyFindings)
	require.True(t, strings.HasPrefix(draft.KeyFindings[0], "Researchers found"))
	require.Equal(t, []string{"Growing adoption of screening tools"}, draft.NotableTrends)
	require.Empty(t, draft.TopArticles)
}

func TestSummarizerErrors(t *testing.T) {
	t.Parallel()

	_, err := NewSummarizer(&scriptedCompleter{err: errUpstream}).Summarize(context.Background(), sampleArticles(), "x")
	require.ErrorIs(t, err, domain.ErrSummarization)

	_, err = NewSummarizer(&scriptedCompleter{reply: "   "}).Summarize(context.Background(), sampleArticles(), "x")
	require.ErrorIs(t, err, domain.ErrSummarization)
}

func TestSynthesizeKeepsTopicOrder(t *testing.T) {
	t.Parallel()

	llm := &scriptedCompleter{reply: " Executive summary. "}
	summaries := []domain.TopicSummary{
		{TopicName: "Second", Overview: "two"},
		{TopicName: "First", Overview: "one", KeyFindings: []string{"finding"}},
	}
	out, err := NewSummarizer(llm).Synthesize(context.Background(), summaries, "Oncology")
	require.NoError(t, err)
	require.Equal(t, "Executive summary.", out)

	prompt := llm.prompts[0]
	require.Less(t, strings.Index(prompt, "## Second"), strings.Index(prompt, "## First"))
	require.Contains(t, prompt, "- finding")

	_, err = NewSummarizer(llm).Synthesize(context.Background(), nil, "Oncology")
	require.ErrorIs(t, err, domain.ErrSummarization)
}

func TestReviewerReadsJSONAndBareNumbers(t *testing.T) {
	t.Parallel()

	summary := domain.TopicSummary{TopicName: "A", Overview: "o", KeyFindings: []string{"k"}}

	review, err := NewReviewer(&scriptedCompleter{reply: `{"quality_score": 0.7, "feedback": " add sources "}`}).Review(context.Background(), summary)
	require.NoError(t, err)
	require.InDelta(t, 0.7, review.QualityScore, 1e-9)
	require.NotNil(t, review.Feedback)
	require.Equal(t, "add sources", *review.Feedback)

	review, err = NewReviewer(&scriptedCompleter{reply: "Score: 85"}).Review(context.Background(), summary)
	require.NoError(t, err)
	require.InDelta(t, 0.85, review.QualityScore, 1e-9)
	require.Nil(t, review.Feedback)

	_, err = NewReviewer(&scriptedCompleter{reply: "looks fine"}).Review(context.Background(), summary)
	require.Error(t, err)

	_, err = NewReviewer(&scriptedCompleter{err: errUpstream}).Review(context.Background(), summary)
	require.ErrorIs(t, err, errUpstream)
}

func TestClipText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "abc", clipText(" abc ", 5))
	require.Equal(t, "ab...", clipText("abcdef", 2))
}
