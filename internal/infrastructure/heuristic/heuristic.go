// Package heuristic provides offline stand-ins for the model-backed agents.
// They are used when neither a chat model nor an inference service is
// configured, so a run still produces a newsletter from search data alone.
package heuristic

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"TopicNewsletter/internal/domain"
	"TopicNewsletter/internal/ports"
	"TopicNewsletter/internal/textutil"
)

const (
	keyPointCount   = 5
	trendCount      = 3
	topArticleCount = 3
	minTermLength   = 3
)

var stopWords = map[string]struct{}{
	"and": {}, "the": {}, "for": {}, "with": {}, "from": {}, "into": {},
	"that": {}, "this": {}, "are": {}, "its": {}, "their": {}, "about": {},
}

// Scorer rates relevance by the share of topic terms found in the article.
// Title matches count double.
type Scorer struct{}

var _ ports.RelevanceScorer = Scorer{}

func (Scorer) Score(_ context.Context, article domain.RawArticle, topicContext string) (float64, error) {
	terms := Terms(topicContext)
	if len(terms) == 0 {
		return 0, fmt.Errorf("%w: topic context has no terms", domain.ErrScoring)
	}

	title := termSet(article.Title)
	body := termSet(article.Snippet)
	var points float64
	for _, term := range terms {
		switch {
		case has(title, term):
			points += 2
		case has(body, term):
			points++
		}
	}
	score := points / float64(2*len(terms))
	if score > 1 {
		score = 1
	}
	return score, nil
}

// Summarizer builds extractive summaries from article snippets.
type Summarizer struct{}

var _ ports.Summarizer = Summarizer{}

func (Summarizer) Summarize(_ context.Context, articles []domain.ScoredArticle, topicContext string) (domain.SummaryDraft, error) {
	if len(articles) == 0 {
		return domain.SummaryDraft{}, fmt.Errorf("%w: no articles", domain.ErrSummarization)
	}

	var corpus strings.Builder
	lead := make([]string, 0, topArticleCount)
	for i, a := range articles {
		snippet := strings.TrimSpace(a.Snippet)
		if snippet == "" {
			snippet = a.Title
		}
		corpus.WriteString(snippet)
		corpus.WriteString(". \n")
		if i < topArticleCount {
			lead = append(lead, firstSentence(snippet))
		}
	}

	overview := fmt.Sprintf("%d recent articles cover %s. %s", len(articles), topicContext, strings.Join(lead, " "))
	findings := textutil.ExtractKeyPoints(corpus.String(), keyPointCount)
	if len(findings) == 0 {
		for i := 0; i < len(articles) && i < keyPointCount; i++ {
			findings = append(findings, articles[i].Title)
		}
	}

	top := articles
	if len(top) > topArticleCount {
		top = top[:topArticleCount]
	}
	return domain.SummaryDraft{
		Overview:      strings.TrimSpace(overview),
		KeyFindings:   findings,
		NotableTrends: textutil.ExtractTrends(corpus.String(), trendCount),
		TopArticles:   append([]domain.ScoredArticle(nil), top...),
	}, nil
}

func (Summarizer) Synthesize(_ context.Context, summaries []domain.TopicSummary, mainTopic string) (string, error) {
	if len(summaries) == 0 {
		return "", fmt.Errorf("%w: nothing to synthesize", domain.ErrSummarization)
	}

	names := make([]string, 0, len(summaries))
	var b strings.Builder
	for _, s := range summaries {
		names = append(names, s.TopicName)
	}
	fmt.Fprintf(&b, "This edition on %s covers %s.", mainTopic, strings.Join(names, ", "))
	for _, s := range summaries {
		if len(s.KeyFindings) > 0 {
			fmt.Fprintf(&b, " In %s: %s", s.TopicName, strings.TrimSuffix(s.KeyFindings[0], ".")+".")
		}
	}
	return b.String(), nil
}

// Reviewer grades summaries by completeness.
type Reviewer struct{}

var _ ports.QualityReviewer = Reviewer{}

func (Reviewer) Review(_ context.Context, summary domain.TopicSummary) (domain.Review, error) {
	score := 0.4
	var missing []string
	if len(summary.KeyFindings) >= 3 {
		score += 0.2
	} else {
		missing = append(missing, "fewer than three key findings")
	}
	if len(strings.Fields(summary.Overview)) >= 40 {
		score += 0.2
	} else {
		missing = append(missing, "short overview")
	}
	if len(summary.TopArticles) >= topArticleCount {
		score += 0.2
	} else {
		missing = append(missing, "few supporting articles")
	}

	review := domain.Review{QualityScore: score}
	if len(missing) > 0 {
		fb := strings.Join(missing, "; ")
		review.Feedback = &fb
	}
	return review, nil
}

// Terms lowercases text and returns its distinct content words in order.
func Terms(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) < minTermLength {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func termSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Terms(text) {
		set[t] = struct{}{}
	}
	return set
}

func has(set map[string]struct{}, term string) bool {
	_, ok := set[term]
	return ok
}

func firstSentence(s string) string {
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	if !strings.HasSuffix(s, ".") {
		return s + "."
	}
	return s
}
