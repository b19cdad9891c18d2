package sandbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder records sandbox metrics.
type MetricsRecorder interface {
	SandboxStarted(language string)
	SandboxFinished(language string, status Status, duration time.Duration)
}

// NoopMetricsRecorder is a default recorder that does nothing.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) SandboxStarted(string) {}

func (NoopMetricsRecorder) SandboxFinished(string, Status, time.Duration) {}

// PrometheusMetrics exports sandbox counters, durations and the number of
// sandboxes in flight.
type PrometheusMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewPrometheusMetrics registers the sandbox collectors with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coderunner",
			Subsystem: "sandbox",
			Name:      "runs_total",
			Help:      "Finished sandbox requests by language and status.",
		}, []string{"language", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coderunner",
			Subsystem: "sandbox",
			Name:      "duration_seconds",
			Help:      "Wall-clock execution time of sandboxed programs.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 255},
		}, []string{"language"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coderunner",
			Subsystem: "sandbox",
			Name:      "in_flight",
			Help:      "Sandboxes currently admitted.",
		}),
	}

	for _, c := range []prometheus.Collector{m.runs, m.duration, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) SandboxStarted(string) {
	m.inFlight.Inc()
}

func (m *PrometheusMetrics) SandboxFinished(language string, status Status, duration time.Duration) {
	m.inFlight.Dec()
	m.runs.WithLabelValues(language, string(status)).Inc()
	if status != StatusIOError {
		m.duration.WithLabelValues(language).Observe(duration.Seconds())
	}
}
