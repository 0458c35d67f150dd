package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"workpool/internal/pool"
)

var _ pool.Recorder = (*Prometheus)(nil)

// Prometheus exports pool activity as Prometheus metrics, labelled by pool name
type Prometheus struct {
	registerer prometheus.Registerer

	submitted   prometheus.Counter
	finished    *prometheus.CounterVec
	restarts    *prometheus.CounterVec
	jobDuration prometheus.Histogram
	jobWait     prometheus.Histogram
}

// NewPrometheus registers the pool metrics on registerer.
// A nil registerer falls back to prometheus.DefaultRegisterer.
func NewPrometheus(registerer prometheus.Registerer, poolName string) *Prometheus {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"pool": poolName}, registerer)
	factory := promauto.With(reg)

	return &Prometheus{
		registerer: reg,
		submitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "workpool_jobs_submitted_total",
			Help: "Total number of jobs accepted by the pool",
		}),
		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workpool_jobs_finished_total",
			Help: "Total number of jobs executed, by outcome",
		}, []string{"outcome"}),
		restarts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workpool_worker_restarts_total",
			Help: "Total number of worker goroutines respawned after a fault",
		}, []string{"worker"}),
		jobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "workpool_job_duration_seconds",
			Help:    "Job execution time in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		jobWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "workpool_job_wait_seconds",
			Help:    "Time a job spent queued before a worker took it",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObservePool exposes live gauges read from p on every scrape
func (m *Prometheus) ObservePool(p *pool.Pool) {
	factory := promauto.With(m.registerer)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "workpool_workers_alive",
		Help: "Number of worker goroutines that have not exited",
	}, func() float64 { return float64(p.Alive()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "workpool_workers_configured",
		Help: "Fixed number of workers in the pool",
	}, func() float64 { return float64(p.Size()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "workpool_queue_length",
		Help: "Messages waiting in the pool queue",
	}, func() float64 { return float64(p.QueueLen()) })
}

// JobSubmitted increments the submitted counter
func (m *Prometheus) JobSubmitted() {
	m.submitted.Inc()
}

// JobFinished counts the job by outcome and observes its run and wait durations
func (m *Prometheus) JobFinished(o pool.Outcome) {
	outcome := "success"
	if o.Failed() {
		outcome = "panic"
	}
	m.finished.WithLabelValues(outcome).Inc()
	m.jobDuration.Observe(o.Duration.Seconds())
	m.jobWait.Observe(o.Waited.Seconds())
}

// WorkerRestarted counts a restart against the worker id label
func (m *Prometheus) WorkerRestarted(workerID int) {
	m.restarts.WithLabelValues(strconv.Itoa(workerID)).Inc()
}

// Tee fans every call out to all recorders
type Tee []pool.Recorder

// JobSubmitted forwards to every recorder
func (t Tee) JobSubmitted() {
	for _, r := range t {
		r.JobSubmitted()
	}
}

// JobFinished forwards o to every recorder
func (t Tee) JobFinished(o pool.Outcome) {
	for _, r := range t {
		r.JobFinished(o)
	}
}

// WorkerRestarted forwards workerID to every recorder
func (t Tee) WorkerRestarted(workerID int) {
	for _, r := range t {
		r.WorkerRestarted(workerID)
	}
}
