package events

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewBus(t *testing.T) {
	bus := NewBus()
	if bus == nil {
		t.Fatal("expected non-nil bus")
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestBusSubscribe(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	if bus.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}

	ch2 := bus.Subscribe(EventJobFailed)
	if bus.SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers, got %d", bus.SubscriberCount())
	}

	if ch1 == nil || ch2 == nil {
		t.Error("expected non-nil channels")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	ch := bus.Subscribe()
	bus.Unsubscribe(ch)
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestBusPublish(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()

	bus.Publish(NewPoolStartedEvent("p", 4))

	select {
	case received := <-ch:
		if received.Type != EventPoolStarted {
			t.Errorf("expected type %s, got %s", EventPoolStarted, received.Type)
		}
		if received.WorkerID != NoWorker {
			t.Errorf("expected pool-wide event, got worker %d", received.WorkerID)
		}
		if received.Data.Workers != 4 {
			t.Errorf("expected 4 workers, got %d", received.Data.Workers)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestBusPublishFiltered(t *testing.T) {
	bus := NewBus()
	failures := bus.Subscribe(EventJobFailed)

	bus.Publish(NewJobCompletedEvent("p", 0, uuid.New(), time.Millisecond))
	bus.Publish(NewJobFailedEvent("p", 1, uuid.New(), time.Millisecond, errors.New("boom")))

	select {
	case received := <-failures:
		if received.Type != EventJobFailed {
			t.Fatalf("expected only %s, got %s", EventJobFailed, received.Type)
		}
		if received.Data.Error != "boom" {
			t.Errorf("expected error boom, got %q", received.Data.Error)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for failure event")
	}

	select {
	case extra := <-failures:
		t.Errorf("unexpected extra event %s", extra.Type)
	default:
	}
}

func TestBusPublishMultipleSubscribers(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()

	bus.Publish(NewWorkerJoinedEvent("p", 2))

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.Type != EventWorkerJoined {
				t.Errorf("subscriber %d: expected type %s, got %s", i, EventWorkerJoined, received.Type)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("subscriber %d: timeout waiting for event", i)
		}
	}
}

func TestBusPublishNonBlocking(t *testing.T) {
	bus := NewBus()
	bus.bufferSize = 1

	ch := bus.Subscribe()

	bus.Publish(NewWorkerJoinedEvent("p", 0))
	bus.Publish(NewWorkerJoinedEvent("p", 1))
	bus.Publish(NewWorkerJoinedEvent("p", 2))

	if bus.Dropped() != 2 {
		t.Errorf("expected 2 dropped deliveries, got %d", bus.Dropped())
	}

	select {
	case e := <-ch:
		if e.WorkerID != 0 {
			t.Errorf("expected first event to survive, got worker %d", e.WorkerID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for first event")
	}
}

func TestBusClose(t *testing.T) {
	bus := NewBus()

	ch := bus.Subscribe()
	bus.Close()

	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", bus.SubscriberCount())
	}

	_, ok := <-ch
	if ok {
		t.Error("expected channel to be closed")
	}
}

func TestEventCreation(t *testing.T) {
	t.Run("JobCompleted", func(t *testing.T) {
		id := uuid.New()
		event := NewJobCompletedEvent("p", 3, id, 5*time.Millisecond)
		if event.Type != EventJobCompleted {
			t.Errorf("expected %s, got %s", EventJobCompleted, event.Type)
		}
		if event.Data.JobID != id.String() {
			t.Errorf("expected job id %s, got %s", id, event.Data.JobID)
		}
		if event.Data.Duration != "5ms" {
			t.Errorf("expected 5ms, got %s", event.Data.Duration)
		}
	})

	t.Run("JobFailedNilError", func(t *testing.T) {
		event := NewJobFailedEvent("p", 0, uuid.New(), 0, nil)
		if event.Data.Error != "" {
			t.Errorf("expected empty error, got %q", event.Data.Error)
		}
	})

	t.Run("WorkerRestarted", func(t *testing.T) {
		event := NewWorkerRestartedEvent("p", 1, 2)
		if event.WorkerID != 1 || event.Data.Restarts != 2 {
			t.Errorf("unexpected event %+v", event)
		}
	})

	t.Run("PoolLifecycle", func(t *testing.T) {
		if NewPoolStoppingEvent("p", 2).Type != EventPoolStopping {
			t.Error("expected pool_stopping")
		}
		if NewPoolStoppedEvent("p", 2).Type != EventPoolStopped {
			t.Error("expected pool_stopped")
		}
	})
}
