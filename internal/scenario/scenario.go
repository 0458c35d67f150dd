package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"workpool/internal/events"
	"workpool/internal/logger"
	"workpool/internal/metrics"
	"workpool/internal/pool"
)

// Config はシナリオの設定
type Config struct {
	Name        string // シナリオ名
	Description string // 説明
	PoolName    string // プール名（空でシナリオ名）

	// プール設定
	Workers     int              // ワーカー数
	FaultPolicy pool.FaultPolicy // パニック時の扱い

	// 負荷設定
	Jobs        int           // 投入するジョブ総数
	Producers   int           // 同時に投入するゴルーチン数
	Interval    time.Duration // プロデューサーごとの投入間隔（0で間隔なし）
	JobDuration time.Duration // 1ジョブの処理時間
	Jitter      float64       // 処理時間の揺らぎ（0.0〜1.0）
	PanicEvery  int           // N件ごとにパニックを注入（0で無効）
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Name:        "default",
		Description: "Default scenario",
		Workers:     4,
		FaultPolicy: pool.FaultIsolate,
		Jobs:        1000,
		Producers:   4,
		JobDuration: time.Millisecond,
		Jitter:      0.2,
	}
}

// Validate は設定を検証する
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers: %w", pool.ErrSizeLteZero)
	}
	if c.Jobs <= 0 {
		return errors.New("jobs must be positive")
	}
	if c.Producers <= 0 {
		return errors.New("producers must be positive")
	}
	if c.JobDuration < 0 {
		return errors.New("job duration must be non-negative")
	}
	if c.Interval < 0 {
		return errors.New("interval must be non-negative")
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return errors.New("jitter must be between 0 and 1")
	}
	if c.PanicEvery < 0 {
		return errors.New("panic_every must be non-negative")
	}
	return nil
}

// Result はシナリオ実行結果
type Result struct {
	ScenarioName string        `json:"scenario_name"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration_ns"`
	Cancelled    bool          `json:"cancelled"`

	Workers     int    `json:"workers"`
	FaultPolicy string `json:"fault_policy"`

	// 投入統計
	Submitted uint64 `json:"submitted"`
	Rejected  uint64 `json:"rejected"`

	// 実行統計
	Completed   uint64        `json:"completed"`
	Failed      uint64        `json:"failed"`
	Restarts    uint64        `json:"restarts"`
	FailureRate float64       `json:"failure_rate"`
	Throughput  float64       `json:"throughput"`
	AvgLatency  time.Duration `json:"avg_latency_ns"`
	AvgWait     time.Duration `json:"avg_wait_ns"`
	P99Latency  time.Duration `json:"p99_latency_ns"`

	// ワーカー状態
	FinalWorkers []pool.WorkerInfo `json:"final_workers"`
}

// Engine はシナリオ実行エンジン
type Engine struct {
	config     Config
	eventBus   *events.Bus
	registerer prometheus.Registerer

	mu      sync.RWMutex
	running bool
	pool    *pool.Pool
	metrics *metrics.Metrics
}

// New は新しいEngineを作成する
func New(config Config) *Engine {
	return &Engine{
		config: config,
	}
}

// SetEventBus はイベントバスを設定する
func (e *Engine) SetEventBus(bus *events.Bus) {
	e.eventBus = bus
}

// SetRegisterer はPrometheusの登録先を設定する
// 同じ登録先で複数回Runすると登録が衝突するため、実行ごとに新しいレジストリを渡すこと
func (e *Engine) SetRegisterer(reg prometheus.Registerer) {
	e.registerer = reg
}

// Run はシナリオを実行する
// ctx がキャンセルされると投入を止め、受け付け済みのジョブを実行してから返る
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("scenario is already running")
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	logger.Info("", "=== Scenario '%s' started ===", e.config.Name)
	logger.Info("", "Description: %s", e.config.Description)

	result := &Result{
		ScenarioName: e.config.Name,
		StartTime:    time.Now(),
		Workers:      e.config.Workers,
		FaultPolicy:  e.config.FaultPolicy.String(),
	}

	p, m, err := e.setup()
	if err != nil {
		return nil, fmt.Errorf("setup failed: %w", err)
	}

	submitted, rejected := e.produce(ctx, p)

	logger.Info("", "All jobs submitted (%d accepted, %d rejected), draining pool...", submitted, rejected)
	p.Stop()

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Cancelled = ctx.Err() != nil
	result.Submitted = submitted
	result.Rejected = rejected
	e.collectResults(result, p, m)

	logger.Info("", "=== Scenario '%s' completed ===", e.config.Name)

	return result, nil
}

// setup はプールとメトリクスを作成する
func (e *Engine) setup() (*pool.Pool, *metrics.Metrics, error) {
	m := metrics.New()

	var recorder pool.Recorder = m
	var prom *metrics.Prometheus
	name := e.config.PoolName
	if name == "" {
		name = e.config.Name
	}
	if e.registerer != nil {
		prom = metrics.NewPrometheus(e.registerer, name)
		recorder = metrics.Tee{m, prom}
	}

	p, err := pool.NewWithConfig(pool.Config{
		Name:        name,
		Size:        e.config.Workers,
		FaultPolicy: e.config.FaultPolicy,
		EventBus:    e.eventBus,
		Recorder:    recorder,
	})
	if err != nil {
		return nil, nil, err
	}
	if prom != nil {
		prom.ObservePool(p)
	}

	e.mu.Lock()
	e.pool = p
	e.metrics = m
	e.mu.Unlock()

	return p, m, nil
}

// produce は Producers 個のゴルーチンで Jobs 件のジョブを投入する
func (e *Engine) produce(ctx context.Context, p *pool.Pool) (submitted, rejected uint64) {
	var seq atomic.Int64
	var accepted, refused atomic.Uint64
	total := int64(e.config.Jobs)

	g, gctx := errgroup.WithContext(ctx)
	for range e.config.Producers {
		g.Go(func() error {
			for {
				if gctx.Err() != nil {
					return nil
				}
				n := seq.Add(1)
				if n > total {
					return nil
				}
				if err := p.Submit(e.job(n)); err != nil {
					refused.Add(1)
					return err
				}
				accepted.Add(1)

				if e.config.Interval > 0 {
					select {
					case <-gctx.Done():
						return nil
					case <-time.After(e.config.Interval):
					}
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		logger.Warn("", "Producer stopped: %v", err)
	}
	return accepted.Load(), refused.Load()
}

// job は n 番目のジョブを作る
func (e *Engine) job(n int64) pool.Job {
	d := e.config.JobDuration
	if e.config.Jitter > 0 && d > 0 {
		delta := (rand.Float64()*2 - 1) * e.config.Jitter
		d = time.Duration(float64(d) * (1 + delta))
	}
	shouldPanic := e.config.PanicEvery > 0 && n%int64(e.config.PanicEvery) == 0

	return func() {
		if d > 0 {
			time.Sleep(d)
		}
		if shouldPanic {
			panic(fmt.Errorf("injected fault in job %d", n))
		}
	}
}

// collectResults は結果を収集する
func (e *Engine) collectResults(result *Result, p *pool.Pool, m *metrics.Metrics) {
	snapshot := m.Snapshot()
	result.Completed = snapshot.CompletedJobs
	result.Failed = snapshot.FailedJobs
	result.Restarts = snapshot.Restarts
	result.FailureRate = snapshot.FailureRate
	result.AvgLatency = snapshot.AverageLatency
	result.AvgWait = snapshot.AverageWait
	result.P99Latency = snapshot.P99Latency
	if secs := result.Duration.Seconds(); secs > 0 {
		result.Throughput = float64(result.Completed+result.Failed) / secs
	}
	result.FinalWorkers = p.Workers()
}

// Report は結果をフォーマットして返す
func (r *Result) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, `
================================================================================
                         SCENARIO REPORT: %s
================================================================================

EXECUTION SUMMARY
-----------------
  Start Time:     %s
  End Time:       %s
  Duration:       %v
  Cancelled:      %v

POOL
----
  Workers:        %d
  Fault Policy:   %s

SUBMISSION
----------
  Accepted:         %d
  Rejected:         %d

EXECUTION
---------
  Completed:        %d
  Failed:           %d
  Failure Rate:     %.2f%%
  Throughput:       %.1f jobs/s
  Avg Latency:      %v
  Avg Queue Wait:   %v
  P99 Latency:      %v
  Worker Restarts:  %d

FINAL WORKER STATUS
-------------------
`,
		r.ScenarioName,
		r.StartTime.Format("2006-01-02 15:04:05"),
		r.EndTime.Format("2006-01-02 15:04:05"),
		r.Duration.Round(time.Millisecond),
		r.Cancelled,
		r.Workers,
		r.FaultPolicy,
		r.Submitted,
		r.Rejected,
		r.Completed,
		r.Failed,
		r.FailureRate*100,
		r.Throughput,
		r.AvgLatency.Round(time.Microsecond),
		r.AvgWait.Round(time.Microsecond),
		r.P99Latency.Round(time.Microsecond),
		r.Restarts,
	)

	for _, w := range r.FinalWorkers {
		fmt.Fprintf(&b, "  worker-%-13d %-10s executed=%d failed=%d restarts=%d\n",
			w.ID, w.Status, w.Executed, w.Failed, w.Restarts)
	}

	b.WriteString("\n================================================================================")

	return b.String()
}

// IsRunning は実行中かどうかを返す
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Pool は直近に作成したプールを返す（未実行ならnil）
func (e *Engine) Pool() *pool.Pool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pool
}

// Metrics はジョブメトリクスを返す（未実行ならnil）
func (e *Engine) Metrics() *metrics.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.metrics == nil {
		return nil
	}
	snapshot := e.metrics.Snapshot()
	return &snapshot
}

// SampleMetrics は Metrics と同じだが、スループットのウィンドウを開始し直す
// 定期的に呼ぶと Throughput は直前の呼び出しからの値になる
func (e *Engine) SampleMetrics() *metrics.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.metrics == nil {
		return nil
	}
	snapshot := e.metrics.Sample()
	return &snapshot
}
