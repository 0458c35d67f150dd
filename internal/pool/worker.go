package pool

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"workpool/internal/events"
)

// State はワーカーの状態を表す
type State int32

const (
	StateRunning State = iota
	StateRestarting
	StateStopping
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateRestarting:
		return "restarting"
	case StateStopping:
		return "stopping"
	case StateJoined:
		return "joined"
	default:
		return "unknown"
	}
}

// Worker はキューからジョブを取り出して実行する常駐ゴルーチン
type Worker struct {
	id   int
	key  string
	pool *Pool

	state    atomic.Int32
	done     chan struct{} // ゴルーチン終了時にクローズ
	executed atomic.Uint64
	failed   atomic.Uint64
	restarts atomic.Uint32
}

// WorkerInfo はワーカーのスナップショット
type WorkerInfo struct {
	ID       int    `json:"id"`
	State    State  `json:"-"`
	Status   string `json:"state"`
	Alive    bool   `json:"alive"`
	Executed uint64 `json:"executed"`
	Failed   uint64 `json:"failed"`
	Restarts uint32 `json:"restarts"`
}

func newWorker(id int, p *Pool) *Worker {
	w := &Worker{
		id:   id,
		key:  fmt.Sprintf("%s/worker-%d", p.name, id),
		pool: p,
		done: make(chan struct{}),
	}
	w.state.Store(int32(StateRunning))
	return w
}

// spawn はワーカーのゴルーチンを起動する
func (w *Worker) spawn() {
	go w.loop()
}

// loop はTerminateを受け取るまでジョブを処理し続ける
func (w *Worker) loop() {
	respawn := false
	defer func() {
		if respawn {
			w.respawn()
			return
		}
		close(w.done)
	}()

	w.state.CompareAndSwap(int32(StateRestarting), int32(StateRunning))

	for {
		// ロックは取り出しの間だけ保持される
		msg, ok := w.pool.queue.Pop()
		if !ok {
			return
		}

		switch msg.kind {
		case msgTerminate:
			w.pool.log.Debug(w.key, "Worker %d was told to terminate", w.id)
			return
		case msgNewJob:
			w.pool.log.Debug(w.key, "Worker %d got job %s; executing", w.id, msg.task.id)
			out := w.execute(msg.task)
			w.pool.report(w, out)
			if out.Failed() && w.pool.policy == FaultRestart {
				respawn = true
				return
			}
		}
	}
}

// execute はジョブを一度だけ実行し、結果を返す
func (w *Worker) execute(t *task) (out Outcome) {
	out = Outcome{
		JobID:    t.id,
		WorkerID: w.id,
		Waited:   time.Since(t.submitted),
	}
	start := time.Now()

	if w.pool.policy == FaultPropagate {
		t.fn()
		out.Duration = time.Since(start)
		return out
	}

	defer func() {
		out.Duration = time.Since(start)
		if r := recover(); r != nil {
			out.Err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	t.fn()
	return out
}

// respawn は障害後に同じIDで新しいゴルーチンを起動する
func (w *Worker) respawn() {
	w.state.CompareAndSwap(int32(StateRunning), int32(StateRestarting))
	n := w.restarts.Add(1)

	w.pool.log.Warn(w.key, "Worker %d restarting after fault (restart #%d)", w.id, n)
	w.pool.recorder.WorkerRestarted(w.id)
	w.pool.publish(events.NewWorkerRestartedEvent(w.pool.name, w.id, int(n)))

	w.spawn()
}

// join はゴルーチンの終了を待つ
func (w *Worker) join() {
	<-w.done
	w.state.Store(int32(StateJoined))
}

func (w *Worker) alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w *Worker) info() WorkerInfo {
	s := State(w.state.Load())
	return WorkerInfo{
		ID:       w.id,
		State:    s,
		Status:   s.String(),
		Alive:    w.alive(),
		Executed: w.executed.Load(),
		Failed:   w.failed.Load(),
		Restarts: w.restarts.Load(),
	}
}
