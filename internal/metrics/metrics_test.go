package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRule(t *testing.T) {
	m := New()
	m.ObserveRule("is_a_transitive", 3, time.Millisecond)
	m.ObserveRule("is_a_transitive", 2, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ruleExecutions.WithLabelValues("is_a_transitive")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ruleHits.WithLabelValues("is_a_transitive")))
}

func TestObserveConstructs(t *testing.T) {
	m := New()
	m.ObserveConstructs(map[string]int{"created": 4, "empty_or": 1})
	m.ObserveConstructs(map[string]int{"created": 1})

	assert.Equal(t, 5.0, testutil.ToFloat64(m.constructEvents.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.constructEvents.WithLabelValues("empty_or")))
}

func TestWriteFile(t *testing.T) {
	m := New()
	m.ObserveRun("consistent")
	m.ObserveStage("main", 20*time.Millisecond)

	path := filepath.Join(t.TempDir(), "subsume.prom")
	require.NoError(t, m.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `subsume_runs_total{outcome="consistent"} 1`)
	assert.Contains(t, string(data), `subsume_stage_duration_seconds_count{stage="main"} 1`)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRule("r", 1, time.Second)
		m.ObserveStage("s", time.Second)
		m.ObserveConstructs(map[string]int{"created": 1})
		m.ObserveRun("consistent")
	})
	assert.NoError(t, m.WriteFile(filepath.Join(t.TempDir(), "never.prom")))
	assert.Nil(t, m.Registry())
}
