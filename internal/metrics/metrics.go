package metrics

import (
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"agora/internal/pipeline"
)

// Metrics tracks pipeline activity for the /metrics endpoint.
type Metrics struct {
	transitions *prometheus.CounterVec
	runsStarted prometheus.Counter
	runsFailed  prometheus.Counter
	evaluations prometheus.Counter

	mu      sync.Mutex
	lastRun uuid.UUID
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_pipeline_transitions_total",
			Help: "Pipeline state transitions by target state.",
		}, []string{"state"}),
		runsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_pipeline_runs_started_total",
			Help: "Pipeline runs started.",
		}),
		runsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_pipeline_runs_failed_total",
			Help: "Pipeline runs that ended in the error state.",
		}),
		evaluations: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_proposals_evaluated_total",
			Help: "Proposals scored, including direct HTTP evaluations.",
		}),
	}
}

// Observer returns the pipeline observer feeding these counters.
func (m *Metrics) Observer() pipeline.Observer {
	return func(ev pipeline.Event) {
		m.transitions.WithLabelValues(string(ev.State)).Inc()

		// A run's first transition starts it, whatever state that is:
		// Recording for voice runs, Transcribing or Evaluating for
		// submissions. Runs failing before Evaluating still count.
		m.mu.Lock()
		if ev.RunID != m.lastRun {
			m.lastRun = ev.RunID
			m.runsStarted.Inc()
		}
		m.mu.Unlock()

		if ev.State == pipeline.StateError {
			m.runsFailed.Inc()
		}
	}
}

// EvaluationServed counts a direct scoring request outside a pipeline run.
func (m *Metrics) EvaluationServed() {
	m.evaluations.Inc()
}
