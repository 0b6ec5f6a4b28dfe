// Package metrics records scenario step timings on a private registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the scenario collectors.
type Recorder struct {
	registry *prometheus.Registry
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
	runs     *prometheus.CounterVec
	lastRun  prometheus.Gauge
}

// New registers the collectors on a fresh registry. driver is attached as a
// constant label.
func New(driver string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"driver": driver}
	return &Recorder{
		registry: reg,
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "staticpress_e2e_step_duration_seconds",
			Help:        "Duration of scenario steps",
			Buckets:     []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 180},
			ConstLabels: labels,
		}, []string{"step"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "staticpress_e2e_step_failures_total",
			Help:        "Scenario steps that failed, by failure kind",
			ConstLabels: labels,
		}, []string{"step", "kind"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "staticpress_e2e_runs_total",
			Help:        "Scenario runs by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "staticpress_e2e_last_run_timestamp_seconds",
			Help:        "Unix time the last scenario run finished",
			ConstLabels: labels,
		}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveStep records a finished step. kind is empty on success.
func (r *Recorder) ObserveStep(step string, d time.Duration, kind string) {
	r.duration.WithLabelValues(step).Observe(d.Seconds())
	if kind != "" {
		r.failures.WithLabelValues(step, kind).Inc()
	}
}

// ObserveRun records the outcome of a whole run.
func (r *Recorder) ObserveRun(ok bool, at time.Time) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	r.runs.WithLabelValues(outcome).Inc()
	r.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry for the node exporter textfile
// collector. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
