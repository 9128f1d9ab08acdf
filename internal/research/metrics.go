package research

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the orchestrator's Prometheus instruments. A nil *Metrics is a no-op.
type Metrics struct {
	submitted prometheus.Counter
	finished  *prometheus.CounterVec
	facts     prometheus.Counter
	running   prometheus.Gauge
	duration  prometheus.Histogram
}

// NewMetrics registers the instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "researcher_jobs_submitted_total",
			Help: "Research jobs accepted for execution.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "researcher_jobs_finished_total",
			Help: "Research jobs that reached a terminal status.",
		}, []string{"status"}),
		facts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "researcher_facts_recorded_total",
			Help: "Facts persisted by running jobs.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "researcher_jobs_running",
			Help: "Research jobs currently executing in this process.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "researcher_job_duration_seconds",
			Help:    "Wall time from RUNNING to a terminal status.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
	}
	reg.MustRegister(m.submitted, m.finished, m.facts, m.running, m.duration)
	return m
}

func (m *Metrics) jobSubmitted() {
	if m != nil {
		m.submitted.Inc()
	}
}

func (m *Metrics) jobStarted() {
	if m != nil {
		m.running.Inc()
	}
}

func (m *Metrics) jobFinished(status Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.running.Dec()
	m.finished.WithLabelValues(string(status)).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) factRecorded() {
	if m != nil {
		m.facts.Inc()
	}
}
