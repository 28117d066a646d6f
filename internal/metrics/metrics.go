package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newsletter"

// Recorder exposes workflow counters. A nil *Recorder records nothing.
type Recorder struct {
	runs          *prometheus.CounterVec
	topics        *prometheus.CounterVec
	articles      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	quality       prometheus.Histogram
}

// New registers the workflow collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Workflow runs by terminal status.",
		}, []string{"status"}),
		topics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topics_total",
			Help:      "Topic iterations by outcome.",
		}, []string{"outcome"}),
		articles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_total",
			Help:      "Search results by disposition.",
		}, []string{"disposition"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of workflow stages.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		quality: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "topic_quality_score",
			Help:      "Quality scores assigned to topic summaries.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
	if reg != nil {
		reg.MustRegister(r.runs, r.topics, r.articles, r.stageDuration, r.quality)
	}
	return r
}

// RunFinished counts a run in its terminal status.
func (r *Recorder) RunFinished(status string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(status).Inc()
}

// TopicFinished counts a topic iteration outcome ("summarized", "failed").
func (r *Recorder) TopicFinished(outcome string) {
	if r == nil {
		return
	}
	r.topics.WithLabelValues(outcome).Inc()
}

// Articles adds n search results with the given disposition ("kept", "below_threshold", "score_error", "duplicate", "capped").
func (r *Recorder) Articles(disposition string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.articles.WithLabelValues(disposition).Add(float64(n))
}

// StageDuration observes the duration of a stage.
func (r *Recorder) StageDuration(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// QualityScore observes a topic quality score.
func (r *Recorder) QualityScore(score float64) {
	if r == nil {
		return
	}
	r.quality.Observe(score)
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
