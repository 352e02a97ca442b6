package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Step and iteration outcomes used as the "result" label.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Metrics collects run counters on a private registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	steps        *prometheus.CounterVec
	iterations   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
}

// NewMetrics builds the collectors and registers them.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scenario",
			Name:      "steps_total",
			Help:      "Steps dispatched, by action kind and result.",
		}, []string{"kind", "result"}),
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scenario",
			Name:      "iterations_total",
			Help:      "Main phase iterations, by result.",
		}, []string{"result"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scenario",
			Name:      "step_duration_seconds",
			Help:      "Wall time of a single step.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"kind"}),
	}
	m.registry.MustRegister(m.steps, m.iterations, m.stepDuration)
	return m
}

// ObserveStep records one dispatched step.
func (m *Metrics) ObserveStep(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(kind, result(err)).Inc()
	m.stepDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveIteration records one finished main-phase iteration.
func (m *Metrics) ObserveIteration(err error) {
	if m == nil {
		return
	}
	m.iterations.WithLabelValues(result(err)).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile dumps the registry in the text exposition format for the node exporter
// textfile collector. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return ResultFailed
	}
	return ResultOK
}
