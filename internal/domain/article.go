package domain

import "time"

// RawArticle is a search hit before relevance scoring.
type RawArticle struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Snippet     string    `json:"snippet"`
	PublishedAt time.Time `json:"published_at"`
}

// ScoredArticle is a RawArticle that passed through the relevance scorer.
type ScoredArticle struct {
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Source         string    `json:"source"`
	Snippet        string    `json:"snippet"`
	PublishedAt    time.Time `json:"published_at"`
	RelevanceScore float64   `json:"relevance_score"`
}

// Scored attaches a relevance score to the raw article.
func (a RawArticle) Scored(score float64) ScoredArticle {
	return ScoredArticle{
		Title:          a.Title,
		URL:            a.URL,
		Source:         a.Source,
		Snippet:        a.Snippet,
		PublishedAt:    a.PublishedAt,
		RelevanceScore: score,
	}
}

// ArticleSet is the filtered, capped result of fetching one topic.
// Articles are ordered by descending relevance score.
type ArticleSet struct {
	TopicName  string          `json:"topic_name"`
	Query      string          `json:"query"`
	Articles   []ScoredArticle `json:"articles"`
	TotalFound int             `json:"total_found"`
	TotalKept  int             `json:"total_kept"`
	FetchedAt  time.Time       `json:"fetched_at"`
}
