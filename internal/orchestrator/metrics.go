package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
	"github.com/lucasnoah/fixfactory/internal/stage"
)

// Metrics are the Prometheus collectors updated by an Orchestrator. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	fixes       *prometheus.CounterVec
	iterations  prometheus.Histogram
	duration    prometheus.Histogram
	scores      prometheus.Histogram
	stageErrors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixfactory",
			Name:      "runs_total",
			Help:      "Completed repair runs by reported status",
		}, []string{"status"}),
		fixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixfactory",
			Name:      "fixes_total",
			Help:      "Fix attempts by bug type and outcome",
		}, []string{"bug_type", "status"}),
		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fixfactory",
			Name:      "test_iterations",
			Help:      "Failing test runs per completed repair run",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fixfactory",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of completed repair runs",
			Buckets:   []float64{30, 60, 120, 300, 600, 1200, 2400},
		}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fixfactory",
			Name:      "run_score",
			Help:      "Final score of completed repair runs",
			Buckets:   []float64{0, 20, 40, 60, 80, 100, 110},
		}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixfactory",
			Name:      "stage_errors_total",
			Help:      "Fatal stage failures by stage",
		}, []string{"stage"}),
	}
	reg.MustRegister(m.runs, m.fixes, m.iterations, m.duration, m.scores, m.stageErrors)
	return m
}

// ObserveRun records a completed run.
func (m *Metrics) ObserveRun(r *pipeline.RunReport) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(r.Status).Inc()
	for _, f := range r.State.Fixes {
		m.fixes.WithLabelValues(string(f.Type), string(f.Status)).Inc()
	}
	m.iterations.Observe(float64(r.State.Iterations))
	m.duration.Observe(r.Duration.Seconds())
	m.scores.Observe(float64(r.Score.Final))
}

// StageFailed records a fatal failure of s.
func (m *Metrics) StageFailed(s stage.Name) {
	if m == nil {
		return
	}
	m.stageErrors.WithLabelValues(string(s)).Inc()
}
