package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"TopicNewsletter/internal/domain"
)

// review computes the run-level quality review over the summarized topics.
func (e *Engine) review(state *domain.WorkflowState, opts Options) {
	qr := &domain.QualityReview{Feedback: []string{}, ReviewedAt: e.now()}
	if n := len(state.TopicSummaries); n > 0 {
		total := 0.0
		for _, s := range state.TopicSummaries {
			total += s.QualityScore
			if s.QualityScore >= opts.FeedbackThreshold {
				continue
			}
			qr.Feedback = append(qr.Feedback,
				fmt.Sprintf("Low quality summary for %s: score %.2f", s.TopicName, s.QualityScore))
			if s.Feedback != nil {
				qr.Feedback = append(qr.Feedback, fmt.Sprintf("%s: %s", s.TopicName, *s.Feedback))
			}
		}
		qr.AverageQuality = total / float64(n)
	}
	state.QualityReview = qr
}

// aggregate synthesises the executive summary. Having nothing to synthesise, or a
// synthesis failure, is fatal for the run; ExecutiveSummary then stays unset.
func (e *Engine) aggregate(ctx context.Context, state *domain.WorkflowState, opts Options) (string, error) {
	start := e.now()
	fail := func(cause error, detail string) (string, error) {
		err := domain.NewStageError(domain.KindAggregation, "", domain.StageAggregate, cause)
		state.RecordError(domain.KindAggregation, "", domain.StageAggregate, err, e.now())
		d := e.now().Sub(start)
		e.metrics.StageDuration(domain.StageAggregate, d)
		state.AddStageResult(domain.StageResult{
			Stage:    domain.StageAggregate,
			Status:   domain.StageFailed,
			Duration: d,
			Detail:   detail,
		})
		return "", err
	}

	if len(state.TopicSummaries) == 0 {
		return fail(errors.New("no topic produced a summary"), "no summaries")
	}

	summaries := make([]domain.TopicSummary, len(state.TopicSummaries))
	copy(summaries, state.TopicSummaries)

	callCtx, cancel := e.callContext(ctx, opts)
	text, err := e.summarizer.Synthesize(callCtx, summaries, state.MainTopic)
	cancel()
	if err != nil {
		return fail(fmt.Errorf("synthesize: %w", err), "synthesis failed")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fail(errors.New("synthesize: empty executive summary"), "empty synthesis")
	}

	state.ExecutiveSummary = &text
	d := e.now().Sub(start)
	e.metrics.StageDuration(domain.StageAggregate, d)
	state.AddStageResult(domain.StageResult{
		Stage:    domain.StageAggregate,
		Status:   domain.StageSucceeded,
		Duration: d,
		Detail:   fmt.Sprintf("%d topics", len(summaries)),
	})
	return text, nil
}
