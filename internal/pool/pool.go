package pool

import (
	"fmt"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"workpool/internal/events"
	"workpool/internal/logger"
	"workpool/internal/queue"
)

// Config はワーカープールの設定
type Config struct {
	Name        string         // ログやイベントに使うプール名
	Size        int            // ワーカー数（1以上）
	FaultPolicy FaultPolicy    // ジョブのパニック時の扱い
	EventBus    *events.Bus    // nilでイベント発行なし
	Recorder    Recorder       // nilで記録なし
	Logger      *logger.Logger // nilでlogger.Default
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Name:        "default",
		Size:        runtime.NumCPU(),
		FaultPolicy: FaultIsolate,
	}
}

// Pool は固定数のワーカーと投入口を管理する
type Pool struct {
	name     string
	policy   FaultPolicy
	workers  []*Worker
	queue    *queue.Queue[message]
	bus      *events.Bus
	recorder Recorder
	log      *logger.Logger

	stopOnce sync.Once
	stopped  atomic.Bool
}

// New は size 個のワーカーを持つプールを作成する
func New(size int) (*Pool, error) {
	config := DefaultConfig()
	config.Size = size
	return NewWithConfig(config)
}

// NewWithConfig は設定を指定してプールを作成する
// 全ワーカーはこの関数の中で起動される
func NewWithConfig(config Config) (*Pool, error) {
	if config.Size <= 0 {
		return nil, ErrSizeLteZero
	}
	if !config.FaultPolicy.valid() {
		return nil, fmt.Errorf("invalid fault policy: %d", config.FaultPolicy)
	}
	if config.Name == "" {
		config.Name = "default"
	}

	p := &Pool{
		name:     config.Name,
		policy:   config.FaultPolicy,
		queue:    queue.New[message](),
		bus:      config.EventBus,
		recorder: config.Recorder,
		log:      config.Logger,
	}
	if p.recorder == nil {
		p.recorder = noopRecorder{}
	}
	if p.log == nil {
		p.log = logger.Default
	}

	p.workers = make([]*Worker, config.Size)
	for i := range config.Size {
		p.workers[i] = newWorker(i, p)
	}
	for _, w := range p.workers {
		w.spawn()
	}

	p.log.Info(p.name, "Pool started with %d workers (fault policy: %s)", config.Size, p.policy)
	p.publish(events.NewPoolStartedEvent(p.name, config.Size))

	return p, nil
}

// Submit はジョブをキューに投入する
// 実行ではなく投入の成功を返す。停止後は *FailureError を返す
func (p *Pool) Submit(job Job) error {
	if job == nil {
		return newFailure(ErrNilJob)
	}

	// 投入の記録はワーカーが取り出すより先に行う
	if err := p.queue.PushFunc(newJobMessage(job), p.recorder.JobSubmitted); err != nil {
		return newFailure(err)
	}
	return nil
}

// Stop はワーカー数と同じ数のTerminateを送り、全ワーカーの終了を待つ
// 受け付け済みのジョブはすべて実行される。2回目以降の呼び出しは何もしない
func (p *Pool) Stop() {
	p.stopOnce.Do(p.teardown)
}

func (p *Pool) teardown() {
	n := len(p.workers)

	p.log.Info(p.name, "Sending terminate message to all %d workers", n)
	for _, w := range p.workers {
		w.state.Store(int32(StateStopping))
	}

	// 投入口のクローズとTerminateの追加は不可分
	if err := p.queue.CloseWith(slices.Repeat([]message{terminateMessage}, n)...); err != nil {
		panic(fmt.Sprintf("pool %s: broadcast terminate: %v", p.name, err))
	}
	p.publish(events.NewPoolStoppingEvent(p.name, n))

	p.log.Info(p.name, "Shutting down all workers")
	for _, w := range p.workers {
		p.log.Info(p.name, "Shutting down worker %d", w.id)
		w.join()
		p.publish(events.NewWorkerJoinedEvent(p.name, w.id))
	}

	p.stopped.Store(true)
	p.publish(events.NewPoolStoppedEvent(p.name, n))
	p.log.Info(p.name, "Pool stopped")
}

// report はジョブの実行結果を記録する
func (p *Pool) report(w *Worker, out Outcome) {
	w.executed.Add(1)

	if out.Failed() {
		w.failed.Add(1)
		p.log.Error(w.key, "Job %s panicked: %v", out.JobID, out.Err)
		p.publish(events.NewJobFailedEvent(p.name, w.id, out.JobID, out.Duration, out.Err))
	} else {
		p.publish(events.NewJobCompletedEvent(p.name, w.id, out.JobID, out.Duration))
	}

	p.recorder.JobFinished(out)
}

func (p *Pool) publish(event events.Event) {
	if p.bus != nil {
		p.bus.Publish(event)
	}
}

// Name はプール名を返す
func (p *Pool) Name() string {
	return p.name
}

// Size はワーカー数を返す
func (p *Pool) Size() int {
	return len(p.workers)
}

// Policy はフォールトポリシーを返す
func (p *Pool) Policy() FaultPolicy {
	return p.policy
}

// Alive は終了していないワーカーゴルーチンの数を返す
func (p *Pool) Alive() int {
	alive := 0
	for _, w := range p.workers {
		if w.alive() {
			alive++
		}
	}
	return alive
}

// QueueLen はキューに残っているメッセージ数を返す
func (p *Pool) QueueLen() int {
	return p.queue.Len()
}

// Stopped は全ワーカーのjoinが完了したかどうかを返す
func (p *Pool) Stopped() bool {
	return p.stopped.Load()
}

// Workers は全ワーカーのスナップショットをID順に返す
func (p *Pool) Workers() []WorkerInfo {
	infos := make([]WorkerInfo, len(p.workers))
	for i, w := range p.workers {
		infos[i] = w.info()
	}
	return infos
}

// Worker は指定IDのワーカーのスナップショットを返す
func (p *Pool) Worker(id int) (WorkerInfo, bool) {
	if id < 0 || id >= len(p.workers) {
		return WorkerInfo{}, false
	}
	return p.workers[id].info(), true
}
