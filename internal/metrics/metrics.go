package metrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vk/phylogrid/internal/executor"
	"github.com/vk/phylogrid/internal/job"
)

const namespace = "phylogrid"

// Recorder holds the collectors for one process.
type Recorder struct {
	Transitions *prometheus.CounterVec
	Running     prometheus.Gauge
	Duration    *prometheus.HistogramVec
	UpToDate    *prometheus.CounterVec

	mu      sync.Mutex
	running map[string]bool
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		Transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_transitions_total",
				Help:      "Job state transitions by template and state.",
			},
			[]string{"template", "state"},
		),
		Running: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_running",
				Help:      "Jobs currently running.",
			},
		),
		Duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Wall time of jobs that ran, by template and final state.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
			},
			[]string{"template", "state"},
		),
		UpToDate: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_up_to_date_total",
				Help:      "Jobs skipped because their outputs were fresh.",
			},
			[]string{"template"},
		),
		running: make(map[string]bool),
	}
}

// Observe records one executor event. It has the executor.Observer
// signature.
func (r *Recorder) Observe(_ context.Context, ev executor.Event) {
	r.Transitions.WithLabelValues(ev.Template, ev.State.String()).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.State == job.Running {
		r.running[ev.Job] = true
		r.Running.Inc()
		return
	}
	if !ev.State.Terminal() {
		return
	}
	if ev.UpToDate {
		r.UpToDate.WithLabelValues(ev.Template).Inc()
	}
	if r.running[ev.Job] {
		delete(r.running, ev.Job)
		r.Running.Dec()
		r.Duration.WithLabelValues(ev.Template, ev.State.String()).Observe(ev.Duration.Seconds())
	}
}
