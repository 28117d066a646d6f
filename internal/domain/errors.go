package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure recorded in WorkflowState.Errors.
type ErrorKind string

const (
	KindConfiguration       ErrorKind = "ConfigurationError"
	KindTopicProcessing     ErrorKind = "TopicProcessingError"
	KindScoring             ErrorKind = "ScoringError"
	KindAggregation         ErrorKind = "AggregationError"
	KindLoopBoundExceeded   ErrorKind = "LoopBoundExceeded"
	KindCancelled           ErrorKind = "Cancelled"
	KindQualityReviewFailed ErrorKind = "QualityReviewFailed"
	KindDedupFailed         ErrorKind = "DedupFailed"
)

// Fatal reports whether an error of this kind ends the run.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindConfiguration, KindAggregation, KindLoopBoundExceeded, KindCancelled:
		return true
	default:
		return false
	}
}

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrTopicProcessing   = errors.New("topic processing error")
	ErrScoring           = errors.New("scoring error")
	ErrAggregation       = errors.New("aggregation error")
	ErrLoopBoundExceeded = errors.New("loop bound exceeded")
	ErrCancelled         = errors.New("run cancelled")
	ErrSearchProvider    = errors.New("search provider error")
	ErrSummarization     = errors.New("summarization error")
	ErrQualityGate       = errors.New("quality gate not met")
	ErrRunLocked         = errors.New("run already in progress")
	ErrRunNotFound       = errors.New("run not found")
)

var kindSentinels = map[ErrorKind]error{
	KindConfiguration:     ErrConfiguration,
	KindTopicProcessing:   ErrTopicProcessing,
	KindScoring:           ErrScoring,
	KindAggregation:       ErrAggregation,
	KindLoopBoundExceeded: ErrLoopBoundExceeded,
	KindCancelled:         ErrCancelled,
}

// StageError carries the topic and stage a failure happened in.
type StageError struct {
	Kind  ErrorKind
	Topic string
	Stage string
	Err   error
}

// NewStageError wraps err with its classification.
func NewStageError(kind ErrorKind, topic, stage string, err error) *StageError {
	return &StageError{Kind: kind, Topic: topic, Stage: stage, Err: err}
}

func (e *StageError) Error() string {
	switch {
	case e.Topic != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s [%s]: %v", e.Kind, e.Stage, e.Topic, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Stage, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Stage)
	}
}

func (e *StageError) Unwrap() error { return e.Err }

// Is matches the sentinel that corresponds to the error kind.
func (e *StageError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// ConfigError builds a ConfigurationError with a formatted message.
func ConfigError(format string, args ...any) error {
	return NewStageError(KindConfiguration, "", "configuration", fmt.Errorf(format, args...))
}
