package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	stageDuration *prometheus.HistogramVec
	costUSD       *prometheus.CounterVec
	tokens        *prometheus.CounterVec
	synthesis     *prometheus.CounterVec
	analyses      *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
}

// New registers the collectors on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalforge_stage_duration_seconds",
				Help:    "Wall time per pipeline stage",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120},
			},
			[]string{"stage"},
		),
		costUSD: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_stage_cost_usd_total",
				Help: "Estimated spend in USD per stage",
			},
			[]string{"stage"},
		),
		tokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_llm_tokens_total",
				Help: "LLM tokens per stage and direction",
			},
			[]string{"stage", "direction"},
		),
		synthesis: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_synth_outcome_total",
				Help: "Final synthesis state per analysis",
			},
			[]string{"state"},
		),
		analyses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_analyses_total",
				Help: "Completed analyses by item type and decision",
			},
			[]string{"item_type", "decision"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

func (r *Recorder) RecordStage(stage string, seconds float64) {
	r.stageDuration.WithLabelValues(stage).Observe(seconds)
}

func (r *Recorder) RecordCost(stage string, usd float64) {
	if usd > 0 {
		r.costUSD.WithLabelValues(stage).Add(usd)
	}
}

func (r *Recorder) RecordTokens(stage string, in, out int) {
	if in > 0 {
		r.tokens.WithLabelValues(stage, "input").Add(float64(in))
	}
	if out > 0 {
		r.tokens.WithLabelValues(stage, "output").Add(float64(out))
	}
}

func (r *Recorder) RecordSynthesis(state string) {
	r.synthesis.WithLabelValues(state).Inc()
}

func (r *Recorder) RecordAnalysis(itemType, decision string) {
	r.analyses.WithLabelValues(itemType, decision).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
