package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"TopicNewsletter/internal/domain"
	"TopicNewsletter/internal/ports"
	"TopicNewsletter/internal/textutil"
)

const (
	maxPromptArticles = 10
	maxSnippetChars   = 600
	keyPointCount     = 5
	trendCount        = 3
)

// Scorer rates article relevance with a completion model.
type Scorer struct {
	llm Completer
}

var _ ports.RelevanceScorer = (*Scorer)(nil)

// NewScorer wraps a completer.
func NewScorer(llm Completer) *Scorer {
	return &Scorer{llm: llm}
}

// Score asks for a single number between 0 and 1.
func (s *Scorer) Score(ctx context.Context, article domain.RawArticle, topicContext string) (float64, error) {
	prompt := fmt.Sprintf(`Rate how relevant this article is to the topic on a scale from 0 to 1.
Reply with the number only.

Topic: %s

Title: %s
Source: %s
Snippet: %s`, topicContext, article.Title, article.Source, clipText(article.Snippet, maxSnippetChars))

	reply, err := s.llm.Complete(ctx, "", prompt)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrScoring, err)
	}
	score, ok := textutil.ParseScore(reply)
	if !ok {
		return 0, fmt.Errorf("%w: no score in reply %q", domain.ErrScoring, clipText(reply, 80))
	}
	return score, nil
}

// Summarizer writes topic summaries and the executive synthesis.
type Summarizer struct {
	llm Completer
}

var _ ports.Summarizer = (*Summarizer)(nil)

// NewSummarizer wraps a completer.
func NewSummarizer(llm Completer) *Summarizer {
	return &Summarizer{llm: llm}
}

type summaryReply struct {
	Overview      string   `json:"overview"`
	KeyFindings   []string `json:"key_findings"`
	NotableTrends []string `json:"notable_trends"`
	TopArticles   []string `json:"top_articles"`
}

// Summarize asks for a JSON summary. Replies without usable JSON are treated
// as a plain overview and mined for key points and trends.
func (s *Summarizer) Summarize(ctx context.Context, articles []domain.ScoredArticle, topicContext string) (domain.SummaryDraft, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following articles about %q for a newsletter.\n", topicContext)
	b.WriteString(`Reply with JSON: {"overview": string, "key_findings": [string], "notable_trends": [string], "top_articles": [url]}` + "\n\n")
	for i, a := range articles {
		if i == maxPromptArticles {
			break
		}
		fmt.Fprintf(&b, "%d. %s (%s, relevance %.2f)\nURL: %s\n%s\n\n", i+1, a.Title, a.Source, a.RelevanceScore, a.URL, clipText(a.Snippet, maxSnippetChars))
	}

	reply, err := s.llm.Complete(ctx, "", b.String())
	if err != nil {
		return domain.SummaryDraft{}, fmt.Errorf("%w: %w", domain.ErrSummarization, err)
	}
	if strings.TrimSpace(reply) == "" {
		return domain.SummaryDraft{}, fmt.Errorf("%w: empty reply", domain.ErrSummarization)
	}

	draft, ok := parseSummary(reply, articles)
	if ok {
		return draft, nil
	}
	return domain.SummaryDraft{
		Overview:      reply,
		KeyFindings:   textutil.ExtractKeyPoints(reply, keyPointCount),
		NotableTrends: textutil.ExtractTrends(reply, trendCount),
	}, nil
}

func parseSummary(reply string, articles []domain.ScoredArticle) (domain.SummaryDraft, bool) {
	raw, err := textutil.ExtractJSON(reply)
	if err != nil {
		return domain.SummaryDraft{}, false
	}
	var parsed summaryReply
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || strings.TrimSpace(parsed.Overview) == "" {
		return domain.SummaryDraft{}, false
	}

	byURL := make(map[string]domain.ScoredArticle, len(articles))
	for _, a := range articles {
		byURL[a.URL] = a
	}
	draft := domain.SummaryDraft{
		Overview:      parsed.Overview,
		KeyFindings:   parsed.KeyFindings,
		NotableTrends: parsed.NotableTrends,
	}
	if len(draft.KeyFindings) == 0 {
		draft.KeyFindings = textutil.ExtractKeyPoints(parsed.Overview, keyPointCount)
	}
	if len(draft.NotableTrends) == 0 {
		draft.NotableTrends = textutil.ExtractTrends(parsed.Overview, trendCount)
	}
	for _, u := range parsed.TopArticles {
		if a, ok := byURL[strings.TrimSpace(u)]; ok {
			draft.TopArticles = append(draft.TopArticles, a)
		}
	}
	return draft, true
}

// Synthesize writes the cross-topic executive summary. Topics are presented
// in the order given.
func (s *Summarizer) Synthesize(ctx context.Context, summaries []domain.TopicSummary, mainTopic string) (string, error) {
	if len(summaries) == 0 {
		return "", fmt.Errorf("%w: nothing to synthesize", domain.ErrSummarization)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write a three paragraph executive summary of recent developments in %q based on these topic summaries.\n\n", mainTopic)
	for _, summary := range summaries {
		fmt.Fprintf(&b, "## %s\n%s\n", summary.TopicName, summary.Overview)
		for _, f := range summary.KeyFindings {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}

	reply, err := s.llm.Complete(ctx, "", b.String())
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrSummarization, err)
	}
	return strings.TrimSpace(reply), nil
}

// Reviewer grades topic summaries with a completion model.
type Reviewer struct {
	llm Completer
}

var _ ports.QualityReviewer = (*Reviewer)(nil)

// NewReviewer wraps a completer.
func NewReviewer(llm Completer) *Reviewer {
	return &Reviewer{llm: llm}
}

type reviewReply struct {
	QualityScore *float64 `json:"quality_score"`
	Feedback     string   `json:"feedback"`
}

// Review asks for {"quality_score", "feedback"}; a bare number is accepted too.
func (r *Reviewer) Review(ctx context.Context, summary domain.TopicSummary) (domain.Review, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Review this newsletter section about %q for accuracy and clarity.\n", summary.TopicName)
	b.WriteString(`Reply with JSON: {"quality_score": number between 0 and 1, "feedback": string}` + "\n\n")
	fmt.Fprintf(&b, "Overview: %s\n", summary.Overview)
	for _, f := range summary.KeyFindings {
		fmt.Fprintf(&b, "- %s\n", f)
	}

	reply, err := r.llm.Complete(ctx, "", b.String())
	if err != nil {
		return domain.Review{}, err
	}

	if raw, err := textutil.ExtractJSON(reply); err == nil {
		var parsed reviewReply
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil && parsed.QualityScore != nil {
			score, _ := textutil.ParseScore(fmt.Sprintf("%g", *parsed.QualityScore))
			review := domain.Review{QualityScore: score}
			if fb := strings.TrimSpace(parsed.Feedback); fb != "" {
				review.Feedback = &fb
			}
			return review, nil
		}
	}

	score, ok := textutil.ParseScore(reply)
	if !ok {
		return domain.Review{}, errors.New("review reply has no score")
	}
	return domain.Review{QualityScore: score}, nil
}

func clipText(s string, limit int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
