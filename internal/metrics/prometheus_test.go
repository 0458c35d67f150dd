package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workpool/internal/pool"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := NewPrometheus(reg, "test")

	prom.JobSubmitted()
	prom.JobSubmitted()
	prom.JobFinished(success(time.Millisecond))
	prom.JobFinished(failure(time.Millisecond))
	prom.WorkerRestarted(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(prom.submitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.finished.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.finished.WithLabelValues("panic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.restarts.WithLabelValues("2")))

	n, err := testutil.GatherAndCount(reg, "workpool_job_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPrometheusObservePool(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := NewPrometheus(reg, "observed")

	p, err := pool.NewWithConfig(pool.Config{Name: "observed", Size: 3, Recorder: prom})
	require.NoError(t, err)
	prom.ObservePool(p)

	expected := `
# HELP workpool_workers_alive Number of worker goroutines that have not exited
# TYPE workpool_workers_alive gauge
workpool_workers_alive{pool="observed"} 3
# HELP workpool_workers_configured Fixed number of workers in the pool
# TYPE workpool_workers_configured gauge
workpool_workers_configured{pool="observed"} 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"workpool_workers_alive", "workpool_workers_configured"))

	p.Stop()

	alive := `
# HELP workpool_workers_alive Number of worker goroutines that have not exited
# TYPE workpool_workers_alive gauge
workpool_workers_alive{pool="observed"} 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(alive), "workpool_workers_alive"))
}

func TestTee(t *testing.T) {
	a, b := New(), New()
	tee := Tee{a, b}

	tee.JobSubmitted()
	tee.JobFinished(success(time.Millisecond))
	tee.WorkerRestarted(0)

	for i, m := range []*Metrics{a, b} {
		assert.Equal(t, uint64(1), m.SubmittedJobs(), "recorder %d", i)
		assert.Equal(t, uint64(1), m.CompletedJobs(), "recorder %d", i)
		assert.Equal(t, uint64(1), m.Restarts(), "recorder %d", i)
	}
}
