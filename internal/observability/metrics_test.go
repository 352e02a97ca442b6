package observability

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.ObserveStep("click", 20*time.Millisecond, nil)
	m.ObserveStep("click", 30*time.Millisecond, errors.New("boom"))
	m.ObserveStep("input", time.Millisecond, nil)
	m.ObserveIteration(nil)
	m.ObserveIteration(errors.New("boom"))
	m.ObserveIteration(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.steps.WithLabelValues("click", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.steps.WithLabelValues("click", ResultFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.iterations.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.iterations.WithLabelValues(ResultFailed)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.stepDuration))

	t.Run("textfile export", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "scenario.prom")
		require.NoError(t, m.WriteTextfile(path))

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), `scenario_iterations_total{result="failed"} 1`)
		assert.Contains(t, string(content), "scenario_step_duration_seconds_bucket")
	})
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStep("wait", time.Second, nil)
		m.ObserveIteration(nil)
	})
	assert.NoError(t, m.WriteTextfile("/nonexistent/path.prom"))
}
