// Package pool provides a fixed-size worker pool for fire-and-forget jobs.
//
// A Pool owns a fixed set of worker goroutines, all spawned by the
// constructor, that take jobs from one shared FIFO queue. Submit only
// enqueues; which worker runs a job, and in what order relative to other
// jobs, is decided by whichever idle worker dequeues it first. The queue
// lock covers the dequeue only, never job execution.
//
// # Basic Usage
//
//	p, err := pool.New(4)
//	if err != nil {
//	    return err // pool.ErrSizeLteZero
//	}
//	defer p.Stop()
//
//	for i := 0; i < 100; i++ {
//	    if err := p.Submit(func() { /* do work */ }); err != nil {
//	        return err // *pool.FailureError once the pool is stopped
//	    }
//	}
//
// # Shutdown
//
// Stop closes submission and enqueues one terminate signal per worker
// behind every job already accepted, then joins the workers in id order.
// Every Submit that returned nil has run by the time Stop returns; every
// Submit that lost the race to Stop got a *FailureError. Stop is one-shot:
// later calls return immediately.
//
// # Faults
//
// Config.FaultPolicy decides what a panicking job does:
//   - FaultIsolate: the panic is recovered into the job's Outcome and the
//     worker keeps serving.
//   - FaultRestart: the panic is recovered, the worker goroutine exits and a
//     fresh one is respawned under the same id.
//   - FaultPropagate: the panic is not recovered and terminates the process.
package pool
