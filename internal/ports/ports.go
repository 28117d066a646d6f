package ports

import (
	"context"
	"time"

	"TopicNewsletter/internal/domain"
)

// SearchProvider returns raw articles for a query. An empty result is not an error.
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults, recencyDays int) ([]domain.RawArticle, error)
}

// RelevanceScorer rates an article against a topic context in [0,1].
type RelevanceScorer interface {
	Score(ctx context.Context, article domain.RawArticle, topicContext string) (float64, error)
}

// Summarizer condenses articles for a topic and synthesises topic summaries into one overview.
type Summarizer interface {
	Summarize(ctx context.Context, articles []domain.ScoredArticle, topicContext string) (domain.SummaryDraft, error)
	Synthesize(ctx context.Context, summaries []domain.TopicSummary, mainTopic string) (string, error)
}

// QualityReviewer scores a finished topic summary.
type QualityReviewer interface {
	Review(ctx context.Context, summary domain.TopicSummary) (domain.Review, error)
}

// ContentExtractor pulls readable text for an article whose snippet is too thin.
type ContentExtractor interface {
	Extract(ctx context.Context, article domain.RawArticle) (string, error)
}

// ArticleRepository persists runs and remembers which articles were already published.
type ArticleRepository interface {
	AlreadyPublished(ctx context.Context, urls []string) (map[string]bool, error)
	SaveRun(ctx context.Context, state *domain.WorkflowState) error
}

// StateStore keeps run snapshots for inspection after (or during) a run.
type StateStore interface {
	Put(ctx context.Context, state *domain.WorkflowState) error
	Get(ctx context.Context, runID string) (*domain.WorkflowState, error)
	Recent(ctx context.Context, limit int) ([]string, error)
}

// RunLocker guards against two concurrent runs for the same key.
type RunLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Assembler turns a completed run into rendered newsletter artifacts.
type Assembler interface {
	Assemble(ctx context.Context, state *domain.WorkflowState) (*domain.Newsletter, error)
}

// Notifier streams assembled digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// CoverImageGenerator renders a cover image and returns its location.
type CoverImageGenerator interface {
	GenerateCover(ctx context.Context, mainTopic, executiveSummary string, topics []string) (string, error)
}

// KnowledgeGraphBuilder extracts entities and relationships from a newsletter.
type KnowledgeGraphBuilder interface {
	Build(ctx context.Context, executiveSummary string, summaries []domain.TopicSummary) (domain.GraphStats, []string, error)
}

// GlossaryGenerator defines the most important terms of a newsletter.
type GlossaryGenerator interface {
	Define(ctx context.Context, mainTopic string, terms []string) ([]domain.GlossaryTerm, error)
}
