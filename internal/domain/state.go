package domain

import (
	"errors"
	"time"
)

// Status is the engine-level run state: pending -> running -> completed | failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage names used in error records and stage results.
const (
	StageFetch     = "fetch_and_score"
	StageSummarize = "summarize"
	StageReview    = "quality_review"
	StageAggregate = "aggregate"
	StageEngine    = "engine"
)

// StageStatus is the outcome of one stage invocation.
type StageStatus string

const (
	StageSucceeded StageStatus = "success"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// ErrorRecord is an append-only diagnostic entry.
type ErrorRecord struct {
	Kind    ErrorKind `json:"kind"`
	Topic   string    `json:"topic,omitempty"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// StageResult records how a single stage invocation went.
type StageResult struct {
	Stage    string        `json:"stage"`
	Topic    string        `json:"topic,omitempty"`
	Status   StageStatus   `json:"status"`
	Duration time.Duration `json:"duration"`
	Detail   string        `json:"detail,omitempty"`
}

// QualityReview aggregates per-topic quality scores after the topic loop.
type QualityReview struct {
	AverageQuality float64   `json:"average_quality"`
	Feedback       []string  `json:"feedback"`
	ReviewedAt     time.Time `json:"reviewed_at"`
}

// WorkflowState is threaded through every stage of one run.
// It is owned by a single engine run and must not be shared between runs.
type WorkflowState struct {
	RunID             string                `json:"run_id"`
	MainTopic         string                `json:"main_topic"`
	SubTopics         []TopicSpec           `json:"sub_topics"`
	CurrentTopicIndex int                   `json:"current_topic_index"`
	TopicResults      map[string]ArticleSet `json:"topic_results"`
	TopicSummaries    []TopicSummary        `json:"topic_summaries"`
	QualityScores     map[string]float64    `json:"quality_scores"`
	ExecutiveSummary  *string               `json:"executive_summary,omitempty"`
	QualityReview     *QualityReview        `json:"quality_review,omitempty"`
	Status            Status                `json:"status"`
	Errors            []ErrorRecord         `json:"errors"`
	Warnings          []string              `json:"warnings"`
	StageResults      []StageResult         `json:"stage_results"`
	StartedAt         time.Time             `json:"started_at"`
	FinishedAt        time.Time             `json:"finished_at,omitzero"`
}

// NewWorkflowState creates a pending state for the given topics.
func NewWorkflowState(runID, mainTopic string, subTopics []TopicSpec) *WorkflowState {
	topics := make([]TopicSpec, len(subTopics))
	copy(topics, subTopics)
	return &WorkflowState{
		RunID:         runID,
		MainTopic:     mainTopic,
		SubTopics:     topics,
		TopicResults:  make(map[string]ArticleSet, len(topics)),
		QualityScores: make(map[string]float64, len(topics)),
		Status:        StatusPending,
	}
}

// Start moves a pending state to running.
func (s *WorkflowState) Start(now time.Time) bool {
	if s.Status != StatusPending {
		return false
	}
	s.Status = StatusRunning
	s.StartedAt = now
	return true
}

// Complete moves a running state to completed.
func (s *WorkflowState) Complete(now time.Time) bool {
	if s.Status != StatusRunning {
		return false
	}
	s.Status = StatusCompleted
	s.FinishedAt = now
	return true
}

// Fail moves a non-terminal state to failed.
func (s *WorkflowState) Fail(now time.Time) bool {
	if s.Status.Terminal() {
		return false
	}
	s.Status = StatusFailed
	s.FinishedAt = now
	return true
}

// RecordError appends a diagnostic derived from err.
func (s *WorkflowState) RecordError(kind ErrorKind, topic, stage string, err error, now time.Time) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	var se *StageError
	if errors.As(err, &se) && se.Err != nil {
		msg = se.Err.Error()
	}
	s.Errors = append(s.Errors, ErrorRecord{
		Kind:    kind,
		Topic:   topic,
		Stage:   stage,
		Message: msg,
		At:      now,
	})
}

// AddWarning appends a non-error notice.
func (s *WorkflowState) AddWarning(msg string) {
	s.Warnings = append(s.Warnings, msg)
}

// AddStageResult appends a stage outcome.
func (s *WorkflowState) AddStageResult(r StageResult) {
	s.StageResults = append(s.StageResults, r)
}

// ErrorsFor returns the error records attached to a topic.
func (s *WorkflowState) ErrorsFor(topic string) []ErrorRecord {
	var out []ErrorRecord
	for _, rec := range s.Errors {
		if rec.Topic == topic {
			out = append(out, rec)
		}
	}
	return out
}

// HasErrorKind reports whether any record of the given kind was appended.
func (s *WorkflowState) HasErrorKind(kind ErrorKind) bool {
	for _, rec := range s.Errors {
		if rec.Kind == kind {
			return true
		}
	}
	return false
}

// FailedTopics returns the number of configured topics that produced no summary.
func (s *WorkflowState) FailedTopics() int {
	processed := s.CurrentTopicIndex
	if processed > len(s.SubTopics) {
		processed = len(s.SubTopics)
	}
	failed := processed - len(s.TopicSummaries)
	if failed < 0 {
		return 0
	}
	return failed
}

// Metrics summarises the run.
type Metrics struct {
	TotalArticles   int           `json:"total_articles"`
	TopicsProcessed int           `json:"topics_processed"`
	TopicsFailed    int           `json:"topics_failed"`
	SuccessRate     float64       `json:"success_rate"`
	Duration        time.Duration `json:"duration"`
	ErrorCount      int           `json:"error_count"`
	WarningCount    int           `json:"warning_count"`
	AverageQuality  float64       `json:"average_quality"`
}

// Metrics computes run metrics; now is used while the run is still in flight.
func (s *WorkflowState) Metrics(now time.Time) Metrics {
	m := Metrics{
		TopicsProcessed: len(s.TopicSummaries),
		TopicsFailed:    s.FailedTopics(),
		ErrorCount:      len(s.Errors),
		WarningCount:    len(s.Warnings),
	}
	for _, set := range s.TopicResults {
		m.TotalArticles += set.TotalKept
	}

	succeeded := 0
	for _, r := range s.StageResults {
		if r.Status == StageSucceeded {
			succeeded++
		}
	}
	if len(s.StageResults) > 0 {
		m.SuccessRate = float64(succeeded) / float64(len(s.StageResults))
	}

	if !s.StartedAt.IsZero() {
		end := s.FinishedAt
		if end.IsZero() {
			end = now
		}
		m.Duration = end.Sub(s.StartedAt)
	}

	if s.QualityReview != nil {
		m.AverageQuality = s.QualityReview.AverageQuality
	}
	return m
}
