package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"

	"workpool/internal/events"
	"workpool/internal/logger"
	"workpool/internal/metrics"
	"workpool/internal/pool"
	"workpool/internal/scenario"
)

// Server はAPIサーバー
type Server struct {
	addr           string
	bus            *events.Bus
	defaults       scenario.Config
	statusInterval time.Duration // 状態とスループットを配信する間隔

	mu         sync.RWMutex
	running    bool
	engine     *scenario.Engine
	config     scenario.Config
	registry   *prometheus.Registry
	cancel     context.CancelFunc
	lastResult *scenario.Result
	wsClients  map[*websocket.Conn]bool

	server *http.Server
}

// NewServer は新しいAPIサーバーを作成する
func NewServer(addr string) *Server {
	return &Server{
		addr:           addr,
		bus:            events.NewBus(),
		defaults:       scenario.QuickScenario(),
		statusInterval: time.Second,
		registry:       newRegistry(),
		wsClients:      make(map[*websocket.Conn]bool),
	}
}

// SetDefaultScenario はプリセット未指定時に使うシナリオを設定する
func (s *Server) SetDefaultScenario(config scenario.Config) {
	s.defaults = config
}

// newRegistry はランタイムのコレクタを登録した新しいレジストリを作る
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/workers", s.handleWorkers)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/scenario/start", s.handleScenarioStart)
	mux.HandleFunc("/api/scenario/stop", s.handleScenarioStop)
	mux.HandleFunc("/api/scenario/result", s.handleScenarioResult)
	mux.HandleFunc("/api/presets", s.handlePresets)

	// Prometheus
	mux.Handle("/metrics", http.HandlerFunc(s.handlePrometheus))

	// WebSocket
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))

	return mux
}

// Start はサーバーを開始する
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.startLoops(ctx)

	logger.Info("", "API Server starting on http://%s", s.addr)

	go func() {
		<-ctx.Done()
		s.stopScenario()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// startLoops はイベント転送と状態配信をバックグラウンドで開始する
func (s *Server) startLoops(ctx context.Context) {
	// ジョブ完了イベントは件数が多いため転送しない
	ch := s.bus.Subscribe(
		events.EventPoolStarted,
		events.EventPoolStopping,
		events.EventPoolStopped,
		events.EventJobFailed,
		events.EventWorkerRestarted,
		events.EventWorkerJoined,
	)
	go s.forwardEvents(ctx, ch)
	go s.broadcastLoop(ctx)
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Running      bool   `json:"running"`
	ScenarioName string `json:"scenario_name,omitempty"`
	PoolName     string `json:"pool_name,omitempty"`
	FaultPolicy  string `json:"fault_policy,omitempty"`
	Workers      int    `json:"workers"`
	AliveWorkers int    `json:"alive_workers"`
	QueueLength  int    `json:"queue_length"`
	Stopped      bool   `json:"stopped"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, s.status())
}

func (s *Server) status() StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := StatusResponse{
		Running:      s.running,
		ScenarioName: s.config.Name,
	}

	if s.engine == nil {
		return resp
	}
	if p := s.engine.Pool(); p != nil {
		resp.PoolName = p.Name()
		resp.FaultPolicy = p.Policy().String()
		resp.Workers = p.Size()
		resp.AliveWorkers = p.Alive()
		resp.QueueLength = p.QueueLen()
		resp.Stopped = p.Stopped()
	}
	return resp
}

func (s *Server) currentPool() *pool.Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.engine == nil {
		return nil
	}
	return s.engine.Pool()
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	workers := []pool.WorkerInfo{}
	if p := s.currentPool(); p != nil {
		workers = p.Workers()
	}

	s.writeJSON(w, workers)
}

// MetricsResponse はメトリクスレスポンス
type MetricsResponse struct {
	SubmittedJobs       uint64  `json:"submitted_jobs"`
	CompletedJobs       uint64  `json:"completed_jobs"`
	FailedJobs          uint64  `json:"failed_jobs"`
	Restarts            uint64  `json:"restarts"`
	JobsPerSecond       float64 `json:"jobs_per_second"`
	RecentJobsPerSecond float64 `json:"recent_jobs_per_second"` // 直近の状態配信以降
	AvgLatencyMs        float64 `json:"avg_latency_ms"`
	AvgWaitMs           float64 `json:"avg_wait_ms"`
	P99LatencyMs        float64 `json:"p99_latency_ms"`
	FailureRate         float64 `json:"failure_rate"`
}

func newMetricsResponse(snap *metrics.Snapshot) MetricsResponse {
	if snap == nil {
		return MetricsResponse{}
	}
	return MetricsResponse{
		SubmittedJobs:       snap.SubmittedJobs,
		CompletedJobs:       snap.CompletedJobs,
		FailedJobs:          snap.FailedJobs,
		Restarts:            snap.Restarts,
		JobsPerSecond:       snap.OverallThroughput,
		RecentJobsPerSecond: snap.Throughput,
		AvgLatencyMs:        millis(snap.AverageLatency),
		AvgWaitMs:           millis(snap.AverageWait),
		P99LatencyMs:        millis(snap.P99Latency),
		FailureRate:         snap.FailureRate,
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()

	resp := MetricsResponse{}
	if engine != nil {
		resp = newMetricsResponse(engine.Metrics())
	}

	s.writeJSON(w, resp)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// handlePrometheus は現在のレジストリをスクレイプ用に公開する
// レジストリはシナリオ開始ごとに作り直される
func (s *Server) handlePrometheus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	reg := s.registry
	s.mu.RUnlock()

	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// ScenarioRequest はシナリオ開始リクエスト
type ScenarioRequest struct {
	Preset      string `json:"preset"`
	Workers     int    `json:"workers,omitempty"`
	Jobs        int    `json:"jobs,omitempty"`
	Producers   int    `json:"producers,omitempty"`
	Interval    string `json:"interval,omitempty"`
	JobDuration string `json:"job_duration,omitempty"`
	PanicEvery  int    `json:"panic_every,omitempty"`
	FaultPolicy string `json:"fault_policy,omitempty"`
}

// apply はリクエストの指定値で設定を上書きする
func (req ScenarioRequest) apply(config *scenario.Config) error {
	if req.Workers > 0 {
		config.Workers = req.Workers
	}
	if req.Jobs > 0 {
		config.Jobs = req.Jobs
	}
	if req.Producers > 0 {
		config.Producers = req.Producers
	}
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil {
			return err
		}
		config.Interval = d
	}
	if req.JobDuration != "" {
		d, err := time.ParseDuration(req.JobDuration)
		if err != nil {
			return err
		}
		config.JobDuration = d
	}
	if req.PanicEvery > 0 {
		config.PanicEvery = req.PanicEvery
	}
	if req.FaultPolicy != "" {
		policy, err := pool.ParseFaultPolicy(req.FaultPolicy)
		if err != nil {
			return err
		}
		config.FaultPolicy = policy
	}
	// propagate はサーバープロセスごと落とすため受け付けない
	if config.FaultPolicy == pool.FaultPropagate {
		return fmt.Errorf("fault policy %s is not allowed here", config.FaultPolicy)
	}
	return config.Validate()
}

func (s *Server) handleScenarioStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// プリセット取得
	config := s.defaults
	if req.Preset != "" {
		preset, ok := scenario.GetPreset(req.Preset)
		if !ok {
			http.Error(w, "Unknown preset: "+req.Preset, http.StatusBadRequest)
			return
		}
		config = preset
	}
	if err := req.apply(&config); err != nil {
		http.Error(w, "Invalid scenario: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		http.Error(w, "Scenario already running", http.StatusConflict)
		return
	}

	// 同名メトリクスの再登録を避けるため実行ごとにレジストリを作り直す
	reg := newRegistry()
	engine := scenario.New(config)
	engine.SetEventBus(s.bus)
	engine.SetRegisterer(reg)

	ctx, cancel := context.WithCancel(context.Background())
	s.config = config
	s.engine = engine
	s.registry = reg
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	// バックグラウンドで実行
	go s.runScenario(ctx, engine)

	s.writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "started", "scenario": config.Name})
}

func (s *Server) runScenario(ctx context.Context, engine *scenario.Engine) {
	result, err := engine.Run(ctx)

	s.mu.Lock()
	s.running = false
	s.cancel()
	s.cancel = nil
	if err == nil {
		s.lastResult = result
	}
	s.mu.Unlock()

	if err != nil {
		logger.Error("", "Scenario failed: %v", err)
		s.broadcast(map[string]any{
			"type":  "scenario_failed",
			"error": err.Error(),
		})
		return
	}

	logger.Info("", "Scenario completed: %d jobs executed", result.Completed+result.Failed)
	s.broadcast(map[string]any{
		"type":   "scenario_complete",
		"result": result,
	})
}

func (s *Server) handleScenarioStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.stopScenario() {
		http.Error(w, "No scenario running", http.StatusBadRequest)
		return
	}

	s.writeJSON(w, map[string]string{"status": "stop requested"})
}

// stopScenario は実行中シナリオの投入を打ち切る
// 受け付け済みのジョブはプール停止時に実行される
func (s *Server) stopScenario() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

func (s *Server) handleScenarioResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	result := s.lastResult
	s.mu.RUnlock()

	if result == nil {
		http.Error(w, "No result yet", http.StatusNotFound)
		return
	}

	s.writeJSON(w, result)
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, scenario.Presets())
}

// WebSocket handling
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// Keep connection alive
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) broadcast(data any) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

// forwardEvents はプールのイベントをWebSocketクライアントへ転送する
func (s *Server) forwardEvents(ctx context.Context, ch <-chan events.Event) {
	defer s.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(map[string]any{
				"type":  "event",
				"event": e,
			})
		}
	}
}

// broadcastLoop は実行中の状態とメトリクスを定期配信する
// 配信ごとにスループットのウィンドウを開始し直す
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := s.status()
			if !status.Running {
				continue
			}

			s.mu.RLock()
			engine := s.engine
			s.mu.RUnlock()

			s.broadcast(map[string]any{
				"type":    "status",
				"status":  status,
				"metrics": newMetricsResponse(engine.SampleMetrics()),
			})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	s.writeJSONStatus(w, http.StatusOK, data)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("", "Failed to encode JSON: %v", err)
	}
}
