package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveStageIncrementsCounter(t *testing.T) {
	m := New()
	m.ObserveStage("refine", "success", 10*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StageTotal.WithLabelValues("refine", "success")))
}

func TestObserveToolRun(t *testing.T) {
	m := New()
	m.ObserveToolRun("dummy", "succeeded", time.Second)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ToolRunsTotal.WithLabelValues("dummy", "succeeded")))
}

func TestObserveHTTP(t *testing.T) {
	m := New()
	m.ObserveHTTP("/tasks", "POST", "201", 5*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/tasks", "POST", "201")))
}
