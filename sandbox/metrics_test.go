package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewPrometheusMetrics(reg)
	require.NoError(t, err)

	metrics.SandboxStarted("python")
	metrics.SandboxStarted("python")
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.inFlight), 0)

	metrics.SandboxFinished("python", StatusSucceeded, 120*time.Millisecond)
	metrics.SandboxFinished("python", StatusIOError, 0)

	assert.InDelta(t, 0, testutil.ToFloat64(metrics.inFlight), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.runs.WithLabelValues("python", "succeeded")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.runs.WithLabelValues("python", "io_error")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.duration))
}

func TestPrometheusMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusMetrics(reg)
	require.NoError(t, err)

	_, err = NewPrometheusMetrics(reg)
	require.Error(t, err)
}

func TestRunnerExportsPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewPrometheusMetrics(reg)
	require.NoError(t, err)
	runner, _ := newTestRunner(t, pythonLike, WithMetrics(metrics))

	_, err = runner.Run(context.Background(), Request{
		Language:       "node",
		SourceLines:    []string{"print('x')"},
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.runs.WithLabelValues("node", "succeeded")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.inFlight), 0)
}
