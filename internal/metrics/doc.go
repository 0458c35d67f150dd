// Package metrics records job outcomes reported by a worker pool.
//
// Two pool.Recorder implementations are provided. Metrics keeps in-process
// counters and a latency sample for reports. Prometheus exports the same
// activity as Prometheus collectors, labelled with the pool name. Tee
// forwards to several recorders at once.
//
// # Basic Usage
//
//	m := metrics.New()
//	prom := metrics.NewPrometheus(registry, "default")
//
//	p, _ := pool.NewWithConfig(pool.Config{
//	    Size:     4,
//	    Recorder: metrics.Tee{m, prom},
//	})
//	prom.ObservePool(p)
//
//	// ... submit jobs, stop the pool ...
//
//	fmt.Printf("Finished: %d, Failed: %d, P99: %v\n",
//	    m.FinishedJobs(), m.FailedJobs(), m.P99Latency())
//
// # Configuration
//
// Use NewWithConfig for a larger latency sample:
//
//	m := metrics.NewWithConfig(metrics.Config{MaxLatencySamples: 5000})
//
// # Thread Safety
//
// Counters are atomic; the latency sample is guarded by a RWMutex.
package metrics
