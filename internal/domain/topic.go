package domain

import (
	"fmt"
	"strings"
)

// TopicSpec is one configured sub-topic. It drives a single loop iteration.
type TopicSpec struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Query       string `json:"query" yaml:"query"`
}

// Context renders the topic as the free-text context handed to scorers and summarizers.
func (t TopicSpec) Context() string {
	if strings.TrimSpace(t.Description) == "" {
		return t.Name
	}
	return fmt.Sprintf("%s: %s", t.Name, t.Description)
}

// SearchQuery returns the configured query, or a query derived from name and description.
func (t TopicSpec) SearchQuery() string {
	if q := strings.TrimSpace(t.Query); q != "" {
		return q
	}
	return strings.TrimSpace(t.Name + " " + t.Description)
}

// SummaryDraft is what a Summarizer returns for a set of articles.
type SummaryDraft struct {
	Overview      string          `json:"overview"`
	KeyFindings   []string        `json:"key_findings"`
	NotableTrends []string        `json:"notable_trends"`
	TopArticles   []ScoredArticle `json:"top_articles"`
}

// Review is the Quality Reviewer's verdict on a topic summary.
type Review struct {
	QualityScore float64 `json:"quality_score"`
	Feedback     *string `json:"feedback,omitempty"`
}

// TopicSummary is the per-topic output of the summarize stage.
type TopicSummary struct {
	TopicName     string          `json:"topic_name"`
	Overview      string          `json:"overview"`
	KeyFindings   []string        `json:"key_findings"`
	NotableTrends []string        `json:"notable_trends"`
	TopArticles   []ScoredArticle `json:"top_articles"`
	QualityScore  float64         `json:"quality_score"`
	Feedback      *string         `json:"feedback,omitempty"`
}

// InsufficientDataOverview is the overview used when a topic has no retained articles.
const InsufficientDataOverview = "Insufficient data: no relevant articles were found for this topic in the selected period."
