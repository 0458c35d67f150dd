package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"workpool/internal/logger"
	"workpool/internal/pool"
	"workpool/internal/scenario"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer("127.0.0.1:0")
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func postScenario(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/api/scenario/start", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func waitIdle(t *testing.T, url string) {
	t.Helper()
	require.Eventually(t, func() bool {
		var status StatusResponse
		getJSON(t, url+"/api/status", &status)
		return !status.Running
	}, 10*time.Second, 10*time.Millisecond)
}

func TestStatusIdle(t *testing.T) {
	_, ts := newTestServer(t)

	var status StatusResponse
	getJSON(t, ts.URL+"/api/status", &status)

	assert.False(t, status.Running)
	assert.Zero(t, status.Workers)
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/scenario/start")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPresets(t *testing.T) {
	_, ts := newTestServer(t)

	var presets []scenario.PresetInfo
	getJSON(t, ts.URL+"/api/presets", &presets)

	require.Len(t, presets, len(scenario.ListPresets()))
	assert.Equal(t, "quick", presets[0].Name)
}

func TestWorkersIdle(t *testing.T) {
	_, ts := newTestServer(t)

	var workers []pool.WorkerInfo
	getJSON(t, ts.URL+"/api/workers", &workers)
	assert.Empty(t, workers)
}

func TestScenarioStartAndComplete(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postScenario(t, ts.URL, `{"preset":"faulty","workers":3,"jobs":50,"job_duration":"0s"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var started map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	assert.Equal(t, "started", started["status"])
	assert.Equal(t, "faulty", started["scenario"])

	waitIdle(t, ts.URL)

	var status StatusResponse
	getJSON(t, ts.URL+"/api/status", &status)
	assert.Equal(t, "faulty", status.ScenarioName)
	assert.Equal(t, 3, status.Workers)
	assert.Zero(t, status.AliveWorkers)
	assert.True(t, status.Stopped)

	var workers []pool.WorkerInfo
	getJSON(t, ts.URL+"/api/workers", &workers)
	require.Len(t, workers, 3)
	for _, w := range workers {
		assert.Equal(t, "joined", w.Status)
	}

	var metrics MetricsResponse
	getJSON(t, ts.URL+"/api/metrics", &metrics)
	assert.Equal(t, uint64(50), metrics.SubmittedJobs)
	assert.Equal(t, uint64(45), metrics.CompletedJobs)
	assert.Equal(t, uint64(5), metrics.FailedJobs)

	var result scenario.Result
	getJSON(t, ts.URL+"/api/scenario/result", &result)
	assert.Equal(t, "faulty", result.ScenarioName)
	assert.Equal(t, uint64(50), result.Submitted)
}

func TestScenarioStartInvalid(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"unknown preset", `{"preset":"nope"}`},
		{"bad duration", `{"job_duration":"soon"}`},
		{"bad policy", `{"fault_policy":"explode"}`},
		{"propagate", `{"fault_policy":"propagate"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postScenario(t, ts.URL, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestScenarioConflictAndStop(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postScenario(t, ts.URL, `{"preset":"serial","jobs":100000,"interval":"1ms","job_duration":"0s"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = postScenario(t, ts.URL, `{"preset":"quick"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	stop, err := http.Post(ts.URL+"/api/scenario/stop", "application/json", nil)
	require.NoError(t, err)
	stop.Body.Close()
	assert.Equal(t, http.StatusOK, stop.StatusCode)

	waitIdle(t, ts.URL)

	var result scenario.Result
	getJSON(t, ts.URL+"/api/scenario/result", &result)
	assert.True(t, result.Cancelled)
	assert.Less(t, result.Submitted, uint64(100000))
	assert.Equal(t, result.Submitted, result.Completed+result.Failed)
}

func TestScenarioStopWhenIdle(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/scenario/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScenarioResultNotFound(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/scenario/result")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPrometheusEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postScenario(t, ts.URL, `{"preset":"serial","jobs":10,"job_duration":"0s"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	waitIdle(t, ts.URL)

	scrape, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer scrape.Body.Close()
	body, err := io.ReadAll(scrape.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `workpool_jobs_submitted_total{pool="serial"} 10`)
	assert.Contains(t, string(body), "go_goroutines")

	// 2回目の実行でも登録が衝突しない
	resp = postScenario(t, ts.URL, `{"preset":"serial","jobs":5,"job_duration":"0s"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	waitIdle(t, ts.URL)
}

func TestWebSocketEvents(t *testing.T) {
	s, ts := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.startLoops(ctx)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, err := websocket.Dial(wsURL, "", ts.URL)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return s.clientCount() == 1 }, time.Second, time.Millisecond)

	resp := postScenario(t, ts.URL, `{"preset":"serial","jobs":5,"job_duration":"0s"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(10*time.Second)))

	seen := map[string]bool{}
	for !seen["scenario_complete"] || !seen["pool_started"] || !seen["pool_stopped"] {
		var msg string
		require.NoError(t, websocket.Message.Receive(ws, &msg))

		var envelope struct {
			Type  string `json:"type"`
			Event struct {
				Type string `json:"type"`
			} `json:"event"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg), &envelope))
		seen[envelope.Type] = true
		if envelope.Type == "event" {
			seen[envelope.Event.Type] = true
		}
	}

	assert.True(t, seen["event"])
	assert.True(t, seen["worker_joined"])
}

func TestWebSocketStatusSamplesThroughput(t *testing.T) {
	s, ts := newTestServer(t)
	s.statusInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.startLoops(ctx)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, err := websocket.Dial(wsURL, "", ts.URL)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return s.clientCount() == 1 }, time.Second, time.Millisecond)

	resp := postScenario(t, ts.URL, `{"preset":"serial","jobs":100000,"interval":"1ms","job_duration":"0s"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(10*time.Second)))

	var statuses []MetricsResponse
	for len(statuses) < 2 {
		var msg string
		require.NoError(t, websocket.Message.Receive(ws, &msg))

		var envelope struct {
			Type    string          `json:"type"`
			Metrics MetricsResponse `json:"metrics"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg), &envelope))
		if envelope.Type == "status" && envelope.Metrics.CompletedJobs > 0 {
			statuses = append(statuses, envelope.Metrics)
		}
	}

	// 各配信は前回の配信以降のジョブだけを数える
	latest := statuses[len(statuses)-1]
	assert.Positive(t, latest.RecentJobsPerSecond)
	assert.Positive(t, latest.JobsPerSecond)
	assert.Greater(t, latest.CompletedJobs, statuses[0].CompletedJobs)

	stop, err := http.Post(ts.URL+"/api/scenario/stop", "application/json", nil)
	require.NoError(t, err)
	stop.Body.Close()
	waitIdle(t, ts.URL)
}
