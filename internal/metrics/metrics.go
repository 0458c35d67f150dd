package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"workpool/internal/pool"
)

// Ensure Metrics implements pool.Recorder
var _ pool.Recorder = (*Metrics)(nil)

// Config はメトリクスの設定
type Config struct {
	MaxLatencySamples int // P99計算用に保持する直近のサンプル数
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{MaxLatencySamples: 1000}
}

// Metrics はジョブの実行統計を収集する
type Metrics struct {
	submittedJobs  atomic.Uint64
	completedJobs  atomic.Uint64
	failedJobs     atomic.Uint64
	restarts       atomic.Uint64
	totalLatencyNs atomic.Uint64
	totalWaitNs    atomic.Uint64

	mu                sync.RWMutex
	startTime         time.Time
	windowStart       time.Time
	windowJobs        uint64
	latencies         []time.Duration // 満杯になると最も古いサンプルを上書きする
	nextSample        int
	maxLatencySamples int
}

// New は新しいメトリクスを作成する
func New() *Metrics {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig は設定を指定してメトリクスを作成する
func NewWithConfig(config Config) *Metrics {
	if config.MaxLatencySamples <= 0 {
		config.MaxLatencySamples = DefaultConfig().MaxLatencySamples
	}
	now := time.Now()
	return &Metrics{
		startTime:         now,
		windowStart:       now,
		latencies:         make([]time.Duration, 0, config.MaxLatencySamples),
		maxLatencySamples: config.MaxLatencySamples,
	}
}

// JobSubmitted は投入されたジョブを記録する
func (m *Metrics) JobSubmitted() {
	m.submittedJobs.Add(1)
}

// JobFinished はジョブの実行結果を記録する
func (m *Metrics) JobFinished(o pool.Outcome) {
	if o.Failed() {
		m.failedJobs.Add(1)
	} else {
		m.completedJobs.Add(1)
	}
	m.totalLatencyNs.Add(uint64(o.Duration.Nanoseconds()))
	m.totalWaitNs.Add(uint64(o.Waited.Nanoseconds()))

	m.mu.Lock()
	m.windowJobs++
	if !o.Failed() {
		m.recordLatency(o.Duration)
	}
	m.mu.Unlock()
}

// recordLatency はサンプルを追加する（ロック保持中に呼ぶ）
func (m *Metrics) recordLatency(d time.Duration) {
	if len(m.latencies) < m.maxLatencySamples {
		m.latencies = append(m.latencies, d)
		return
	}
	m.latencies[m.nextSample] = d
	m.nextSample = (m.nextSample + 1) % m.maxLatencySamples
}

// WorkerRestarted はワーカーの再起動を記録する
func (m *Metrics) WorkerRestarted(int) {
	m.restarts.Add(1)
}

// SubmittedJobs は投入ジョブ数を返す
func (m *Metrics) SubmittedJobs() uint64 {
	return m.submittedJobs.Load()
}

// CompletedJobs は正常終了したジョブ数を返す
func (m *Metrics) CompletedJobs() uint64 {
	return m.completedJobs.Load()
}

// FailedJobs はパニックしたジョブ数を返す
func (m *Metrics) FailedJobs() uint64 {
	return m.failedJobs.Load()
}

// FinishedJobs は実行済みジョブ数を返す
func (m *Metrics) FinishedJobs() uint64 {
	return m.completedJobs.Load() + m.failedJobs.Load()
}

// Restarts はワーカー再起動回数を返す
func (m *Metrics) Restarts() uint64 {
	return m.restarts.Load()
}

// Throughput は前回の Sample 以降の毎秒実行ジョブ数を返す
func (m *Metrics) Throughput() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.windowThroughput(time.Now())
}

func (m *Metrics) windowThroughput(now time.Time) float64 {
	elapsed := now.Sub(m.windowStart).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.windowJobs) / elapsed
}

// OverallThroughput は開始からの平均スループットを返す
func (m *Metrics) OverallThroughput() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.FinishedJobs()) / elapsed
}

// AverageLatency は平均実行時間を返す
func (m *Metrics) AverageLatency() time.Duration {
	total := m.FinishedJobs()
	if total == 0 {
		return 0
	}
	return time.Duration(m.totalLatencyNs.Load() / total)
}

// AverageWait は平均キュー滞留時間を返す
func (m *Metrics) AverageWait() time.Duration {
	total := m.FinishedJobs()
	if total == 0 {
		return 0
	}
	return time.Duration(m.totalWaitNs.Load() / total)
}

// P99Latency は直近サンプルのP99実行時間を返す
func (m *Metrics) P99Latency() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// FailureRate は失敗率を返す（0.0〜1.0）
func (m *Metrics) FailureRate() float64 {
	total := m.FinishedJobs()
	if total == 0 {
		return 0
	}
	return float64(m.failedJobs.Load()) / float64(total)
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	SubmittedJobs     uint64        `json:"submitted_jobs"`
	CompletedJobs     uint64        `json:"completed_jobs"`
	FailedJobs        uint64        `json:"failed_jobs"`
	Restarts          uint64        `json:"restarts"`
	Throughput        float64       `json:"throughput"`
	OverallThroughput float64       `json:"overall_throughput"`
	AverageLatency    time.Duration `json:"average_latency_ns"`
	AverageWait       time.Duration `json:"average_wait_ns"`
	P99Latency        time.Duration `json:"p99_latency_ns"`
	FailureRate       float64       `json:"failure_rate"`
	Elapsed           time.Duration `json:"elapsed_ns"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		SubmittedJobs:     m.SubmittedJobs(),
		CompletedJobs:     m.CompletedJobs(),
		FailedJobs:        m.FailedJobs(),
		Restarts:          m.Restarts(),
		Throughput:        m.Throughput(),
		OverallThroughput: m.OverallThroughput(),
		AverageLatency:    m.AverageLatency(),
		AverageWait:       m.AverageWait(),
		P99Latency:        m.P99Latency(),
		FailureRate:       m.FailureRate(),
		Elapsed:           time.Since(m.startTime),
	}
}

// Sample はスナップショットを返し、スループットのウィンドウを開始し直す
// 返す Throughput は前回の Sample からこの呼び出しまでの値
// 累計とレイテンシのサンプルは保持される
func (m *Metrics) Sample() Snapshot {
	snapshot := m.Snapshot()

	m.mu.Lock()
	now := time.Now()
	snapshot.Throughput = m.windowThroughput(now)
	m.windowJobs = 0
	m.windowStart = now
	m.mu.Unlock()

	return snapshot
}
