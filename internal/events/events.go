// Package events provides lifecycle and job outcome notifications for worker pools.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	// EventPoolStarted is emitted once every worker of a pool has been spawned
	EventPoolStarted EventType = "pool_started"
	// EventPoolStopping is emitted when teardown has enqueued the terminate signals
	EventPoolStopping EventType = "pool_stopping"
	// EventPoolStopped is emitted after every worker has been joined
	EventPoolStopped EventType = "pool_stopped"
	// EventJobCompleted is emitted when a job returns normally
	EventJobCompleted EventType = "job_completed"
	// EventJobFailed is emitted when a job panics and the panic is contained
	EventJobFailed EventType = "job_failed"
	// EventWorkerRestarted is emitted when a worker goroutine is respawned after a fault
	EventWorkerRestarted EventType = "worker_restarted"
	// EventWorkerJoined is emitted when teardown has joined a worker
	EventWorkerJoined EventType = "worker_joined"
)

// NoWorker is used as WorkerID for pool-wide events
const NoWorker = -1

// Event represents a pool lifecycle or job outcome event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Pool      string    `json:"pool"`
	WorkerID  int       `json:"worker_id"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	JobID    string `json:"job_id,omitempty"`
	Duration string `json:"duration,omitempty"`
	Workers  int    `json:"workers,omitempty"`
	Restarts int    `json:"restarts,omitempty"`
	Error    string `json:"error,omitempty"`
}

func newEvent(t EventType, pool string, workerID int) Event {
	return Event{
		Type:      t,
		Timestamp: time.Now(),
		Pool:      pool,
		WorkerID:  workerID,
	}
}

// NewPoolStartedEvent creates a pool started event
func NewPoolStartedEvent(pool string, workers int) Event {
	e := newEvent(EventPoolStarted, pool, NoWorker)
	e.Data.Workers = workers
	return e
}

// NewPoolStoppingEvent creates a pool stopping event
func NewPoolStoppingEvent(pool string, workers int) Event {
	e := newEvent(EventPoolStopping, pool, NoWorker)
	e.Data.Workers = workers
	return e
}

// NewPoolStoppedEvent creates a pool stopped event
func NewPoolStoppedEvent(pool string, workers int) Event {
	e := newEvent(EventPoolStopped, pool, NoWorker)
	e.Data.Workers = workers
	return e
}

// NewJobCompletedEvent creates a job completed event
func NewJobCompletedEvent(pool string, workerID int, jobID uuid.UUID, d time.Duration) Event {
	e := newEvent(EventJobCompleted, pool, workerID)
	e.Data.JobID = jobID.String()
	e.Data.Duration = d.String()
	return e
}

// NewJobFailedEvent creates a job failed event
func NewJobFailedEvent(pool string, workerID int, jobID uuid.UUID, d time.Duration, err error) Event {
	e := newEvent(EventJobFailed, pool, workerID)
	e.Data.JobID = jobID.String()
	e.Data.Duration = d.String()
	if err != nil {
		e.Data.Error = err.Error()
	}
	return e
}

// NewWorkerRestartedEvent creates a worker restarted event
func NewWorkerRestartedEvent(pool string, workerID, restarts int) Event {
	e := newEvent(EventWorkerRestarted, pool, workerID)
	e.Data.Restarts = restarts
	return e
}

// NewWorkerJoinedEvent creates a worker joined event
func NewWorkerJoinedEvent(pool string, workerID int) Event {
	return newEvent(EventWorkerJoined, pool, workerID)
}
