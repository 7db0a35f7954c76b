package generation

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts generation activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	attempts   *prometheus.CounterVec
	candidates prometheus.Counter
	runs       *prometheus.CounterVec
	inflight   prometheus.Gauge
}

// NewMetrics builds the collectors and registers them on reg when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portraitgen",
			Name:      "generation_attempts_total",
			Help:      "Generation client calls by outcome.",
		}, []string{"outcome"}),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portraitgen",
			Name:      "candidates_stored_total",
			Help:      "Candidates written to the result ledger.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portraitgen",
			Name:      "generation_runs_total",
			Help:      "Finished generation runs by status.",
		}, []string{"status"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "portraitgen",
			Name:      "generation_runs_inflight",
			Help:      "Dispatched runs that have not finished yet.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.candidates, m.runs, m.inflight)
	}
	return m
}

func (m *Metrics) attempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) candidateStored() {
	if m == nil {
		return
	}
	m.candidates.Inc()
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) runFinished(status string) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	m.runs.WithLabelValues(status).Inc()
}
