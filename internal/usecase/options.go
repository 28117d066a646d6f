package usecase

import (
	"time"

	"TopicNewsletter/internal/domain"
)

const (
	defaultRelevanceThreshold  = 0.5
	defaultMaxArticlesPerTopic = 10
	defaultLoopBoundFactor     = 5
	defaultStageTimeout        = 120 * time.Second
	defaultMaxSearchResults    = 15
	defaultRecencyDays         = 7
	defaultQualityScore        = 0.5
	defaultFeedbackThreshold   = 0.7
)

// Options tunes a single engine run.
type Options struct {
	// RunID is stamped on the produced state.
	RunID string

	RelevanceThreshold  float64
	MaxArticlesPerTopic int
	// MaxLoopIterations is a hard bound on topic iterations; zero means 5 x len(subTopics).
	MaxLoopIterations int
	// StageTimeout bounds every collaborator call.
	StageTimeout     time.Duration
	MaxSearchResults int
	RecencyDays      int
	// Parallelism > 1 processes topics concurrently. Results are still committed in topic order.
	Parallelism int
	// DefaultQualityScore is used when the quality reviewer fails.
	DefaultQualityScore float64
	// FeedbackThreshold marks topics whose quality needs attention.
	FeedbackThreshold float64
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		RelevanceThreshold:  defaultRelevanceThreshold,
		MaxArticlesPerTopic: defaultMaxArticlesPerTopic,
		StageTimeout:        defaultStageTimeout,
		MaxSearchResults:    defaultMaxSearchResults,
		RecencyDays:         defaultRecencyDays,
		Parallelism:         1,
		DefaultQualityScore: defaultQualityScore,
		FeedbackThreshold:   defaultFeedbackThreshold,
	}
}

// normalize fills unset integer and duration fields and validates ranges.
func (o Options) normalize(topicCount int) (Options, error) {
	if !inUnitRange(o.RelevanceThreshold) {
		return o, domain.ConfigError("relevance threshold %.2f outside [0,1]", o.RelevanceThreshold)
	}
	if !inUnitRange(o.DefaultQualityScore) {
		return o, domain.ConfigError("default quality score %.2f outside [0,1]", o.DefaultQualityScore)
	}
	if !inUnitRange(o.FeedbackThreshold) {
		return o, domain.ConfigError("feedback threshold %.2f outside [0,1]", o.FeedbackThreshold)
	}
	if o.MaxArticlesPerTopic < 0 || o.MaxLoopIterations < 0 || o.MaxSearchResults < 0 || o.RecencyDays < 0 {
		return o, domain.ConfigError("negative limits are not allowed")
	}

	if o.MaxArticlesPerTopic == 0 {
		o.MaxArticlesPerTopic = defaultMaxArticlesPerTopic
	}
	if o.MaxLoopIterations == 0 {
		o.MaxLoopIterations = defaultLoopBoundFactor * topicCount
	}
	if o.StageTimeout <= 0 {
		o.StageTimeout = defaultStageTimeout
	}
	if o.MaxSearchResults == 0 {
		o.MaxSearchResults = defaultMaxSearchResults
	}
	if o.RecencyDays == 0 {
		o.RecencyDays = defaultRecencyDays
	}
	if o.Parallelism < 1 {
		o.Parallelism = 1
	}
	return o, nil
}

// inUnitRange reports whether v is in [0,1]. NaN is outside.
func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}
